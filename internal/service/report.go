package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Reporter builds monthly spending reports from stored transactions.
type Reporter struct {
	store TransactionFinder
	loc   *time.Location
	now   func() time.Time
	log   logrus.FieldLogger
}

// NewReporter returns a Reporter whose month boundaries are taken in loc.
func NewReporter(store TransactionFinder, loc *time.Location, log logrus.FieldLogger) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reporter{
		store: store,
		loc:   loc,
		now:   time.Now,
		log:   log.WithField(logging.FieldComponent, "reporter"),
	}
}

// WithClock replaces the time source used to pick the previous month.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// PreviousMonth is the calendar month before the current one.
func (r *Reporter) PreviousMonth() (int, time.Month) {
	return PreviousMonth(r.now().In(r.loc))
}

// PreviousMonth returns the year and month preceding t's month.
func PreviousMonth(t time.Time) (int, time.Month) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	prev := first.AddDate(0, -1, 0)
	return prev.Year(), prev.Month()
}

// MonthRange returns [first day of month, first day of next month) in loc.
func MonthRange(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}

// Monthly aggregates the given month.
//
// Outgoing transfers are spending. Incoming transfers categorized as
// IncomeCategory are income; any other incoming transfer is a refund and is
// subtracted from spending and from its category.
func (r *Reporter) Monthly(ctx context.Context, year int, month time.Month) (domain.MonthlyReport, error) {
	if month < time.January || month > time.December || year < 1 || year > 9999 {
		return domain.MonthlyReport{}, fmt.Errorf("%w: %d-%02d", domain.ErrInvalidPeriod, year, int(month))
	}

	from, to := MonthRange(year, month, r.loc)
	txs, err := r.store.FindTransactions(ctx, domain.TransactionFilter{DateFrom: &from, DateTo: &to})
	if err != nil {
		return domain.MonthlyReport{}, fmt.Errorf("%w: monthly report: %v", domain.ErrStoreRead, err)
	}

	report := domain.MonthlyReport{
		Year:             year,
		Month:            int(month),
		Label:            from.Format("January 2006"),
		From:             from,
		To:               to,
		HasData:          len(txs) > 0,
		TransactionCount: len(txs),
		ByCategory:       []domain.CategoryTotal{},
	}

	spent := make(map[string]int64)
	for _, tx := range txs {
		category := domain.UncategorizedLabel
		if tx.Category != nil {
			category = *tx.Category
		}
		switch {
		case tx.TransferType == domain.TransferOut:
			spent[category] += tx.TransferAmount
			report.TotalExpense += tx.TransferAmount
		case strings.EqualFold(category, domain.IncomeCategory):
			report.TotalIncome += tx.TransferAmount
		default:
			spent[category] -= tx.TransferAmount
			report.TotalExpense -= tx.TransferAmount
		}
	}
	report.Net = report.TotalIncome - report.TotalExpense

	if report.TotalIncome > 0 {
		rate := decimal.NewFromInt(report.Net).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(report.TotalIncome)).
			Round(1).
			InexactFloat64()
		report.SavingsRate = &rate
	}

	for category, amount := range spent {
		report.ByCategory = append(report.ByCategory, domain.CategoryTotal{Category: category, Amount: amount})
	}
	sort.Slice(report.ByCategory, func(i, j int) bool {
		a, b := report.ByCategory[i], report.ByCategory[j]
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		return a.Category < b.Category
	})

	r.log.WithFields(logrus.Fields{
		"period":           report.Label,
		logging.FieldCount: report.TransactionCount,
	}).Debug("Monthly report built")
	return report, nil
}
