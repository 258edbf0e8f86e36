// Package normalizer turns gateway payloads and extracted email records into
// canonical transactions. It performs no I/O.
package normalizer

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/punchamoorthee/bankfeed/internal/models"
	"github.com/shopspring/decimal"
)

const (
	// DateLayout is the timestamp format used by SePay and requested from the extractor.
	DateLayout = "2006-01-02 15:04:05"

	// UnknownGateway is the account code used when the payload names no gateway.
	UnknownGateway = "Unknown"
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// gatewayCodes is keyed by lowercased gateway display name.
var gatewayCodes = map[string]string{
	"vietcombank": "VCB",
	"bidv":        "BIDV",
	"mb":          "MB",
	"mbbank":      "MB",
	"techcombank": "TCB",
	"vpbank":      "VPB",
	"acb":         "ACB",
	"sacombank":   "STB",
	"agribank":    "AGB",
	"vietinbank":  "CTG",
	"tpbank":      "TPB",
}

// AccountCode maps a gateway display name to its short bank code.
// Unknown names are returned trimmed; a blank name yields UnknownGateway.
func AccountCode(gateway string) string {
	name := strings.TrimSpace(gateway)
	if name == "" {
		return UnknownGateway
	}
	if code, ok := gatewayCodes[strings.ToLower(name)]; ok {
		return code
	}
	return name
}

type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Normalizer that interprets gateway timestamps in loc.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc, now: time.Now}
}

// WithClock overrides the processing-time source used for missing dates.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Normalize decodes a JSON payload and normalizes it.
func (n *Normalizer) Normalize(raw []byte, origin domain.Origin) (domain.Transaction, error) {
	var p models.WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Transaction{}, decodeError(err)
	}
	return n.FromRecord(p, origin)
}

// FromRecord normalizes an already decoded record.
func (n *Normalizer) FromRecord(p models.WebhookPayload, origin domain.Origin) (domain.Transaction, error) {
	if p.Content == nil {
		return domain.Transaction{}, &domain.PayloadError{Field: "content", Reason: "required"}
	}

	if p.TransferType == nil {
		return domain.Transaction{}, &domain.PayloadError{Field: "transferType", Reason: "required"}
	}
	direction := domain.TransferType(strings.ToLower(strings.TrimSpace(*p.TransferType)))
	if direction != domain.TransferIn && direction != domain.TransferOut {
		return domain.Transaction{}, &domain.PayloadError{Field: "transferType", Reason: "must be in or out"}
	}

	amount, err := wholeAmount("transferAmount", p.TransferAmount)
	if err != nil {
		return domain.Transaction{}, err
	}

	gateway := ""
	if p.Gateway != nil {
		gateway = *p.Gateway
	}

	// The account number is part of the duplicate key, so a missing one is
	// recorded as empty (the gateway's own convention) rather than NULL,
	// which would make every resubmission look new.
	accountNumber := ""
	if p.AccountNumber != nil {
		accountNumber = *p.AccountNumber
	}

	date, defaulted := n.transactionDate(p.TransactionDate)
	tx := domain.Transaction{
		Account:         AccountCode(gateway),
		TransactionDate: date,
		DateDefaulted:   defaulted,
		AccountNumber:   &accountNumber,
		Code:            p.Code,
		Content:         *p.Content,
		TransferType:    direction,
		TransferAmount:  amount,
		Description:     p.Description,
		Receiver:        p.Receiver,
		Origin:          origin,
	}
	if p.Accumulated != nil {
		balance := p.Accumulated.Round(0).IntPart()
		tx.Accumulated = &balance
	}
	return tx, nil
}

func wholeAmount(field string, v *decimal.Decimal) (int64, error) {
	if v == nil {
		return 0, &domain.PayloadError{Field: field, Reason: "required"}
	}
	switch {
	case v.IsNegative():
		return 0, &domain.PayloadError{Field: field, Reason: "must not be negative"}
	case !v.IsInteger():
		return 0, &domain.PayloadError{Field: field, Reason: "must be a whole amount"}
	case v.GreaterThan(maxAmount):
		return 0, &domain.PayloadError{Field: field, Reason: "out of range"}
	}
	return v.IntPart(), nil
}

// transactionDate falls back to processing time, at DateLayout precision, when
// the source date is absent or unreadable. The second result reports the fallback.
func (n *Normalizer) transactionDate(raw *string) (time.Time, bool) {
	if raw != nil {
		s := strings.TrimSpace(*raw)
		if t, err := time.ParseInLocation(DateLayout, s, n.loc); err == nil {
			return t, false
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, false
		}
	}
	return n.now().In(n.loc).Truncate(time.Second), true
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return &domain.PayloadError{Reason: "body must be a JSON object", Err: err}
		}
		return &domain.PayloadError{Field: typeErr.Field, Reason: "wrong type " + typeErr.Value, Err: err}
	}
	return &domain.PayloadError{Reason: "invalid JSON", Err: err}
}
