package service

import (
	"context"
	"fmt"
	"time"

	"github.com/punchamoorthee/bankfeed/internal/domain"
)

// ResubmitWindow is how far apart two submissions of an undated transfer may
// arrive and still count as the same transaction.
const ResubmitWindow = 5 * time.Minute

// TransactionFinder looks up stored transactions.
type TransactionFinder interface {
	FindTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error)
}

// DuplicateChecker decides whether a transaction was already recorded, using the
// natural key (transaction_date, transfer_amount, account_number, content).
// The check is advisory: two concurrent identical submissions can both pass it.
type DuplicateChecker struct {
	store TransactionFinder
}

func NewDuplicateChecker(store TransactionFinder) *DuplicateChecker {
	return &DuplicateChecker{store: store}
}

// IsDuplicate reports whether a stored transaction matches all four key fields.
// An absent account number never matches anything. When the date was defaulted
// to processing time, any stored date within ResubmitWindow of it matches.
func (d *DuplicateChecker) IsDuplicate(ctx context.Context, tx domain.Transaction) (bool, error) {
	if tx.AccountNumber == nil {
		return false, nil
	}

	candidates, err := d.store.FindTransactions(ctx, naturalKey(tx))
	if err != nil {
		return false, fmt.Errorf("%w: duplicate lookup: %v", domain.ErrStoreRead, err)
	}
	for _, c := range candidates {
		if sameNaturalKey(c, tx) {
			return true, nil
		}
	}
	return false, nil
}

func naturalKey(tx domain.Transaction) domain.TransactionFilter {
	amount := tx.TransferAmount
	account := *tx.AccountNumber
	content := tx.Content
	f := domain.TransactionFilter{
		TransferAmount: &amount,
		AccountNumber:  &account,
		Content:        &content,
		Limit:          1,
	}
	if tx.DateDefaulted {
		from, to := resubmitWindow(tx.TransactionDate)
		f.DateFrom, f.DateTo = &from, &to
		return f
	}
	date := tx.TransactionDate
	f.TransactionDate = &date
	return f
}

// resubmitWindow returns the [from, to) range a defaulted date matches against.
func resubmitWindow(date time.Time) (time.Time, time.Time) {
	return date.Add(-ResubmitWindow), date.Add(ResubmitWindow)
}

// sameNaturalKey compares a stored row against an incoming transaction.
func sameNaturalKey(stored, tx domain.Transaction) bool {
	if stored.AccountNumber == nil || tx.AccountNumber == nil {
		return false
	}
	if stored.TransferAmount != tx.TransferAmount ||
		*stored.AccountNumber != *tx.AccountNumber ||
		stored.Content != tx.Content {
		return false
	}
	if tx.DateDefaulted {
		from, to := resubmitWindow(tx.TransactionDate)
		return !stored.TransactionDate.Before(from) && stored.TransactionDate.Before(to)
	}
	return stored.TransactionDate.Equal(tx.TransactionDate)
}
