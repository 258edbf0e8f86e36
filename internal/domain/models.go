package domain

import (
	"time"
)

// Origin identifies which inbound channel produced a transaction.
type Origin string

const (
	OriginWebhook Origin = "webhook"
	OriginEmail   Origin = "email"
)

// TransferType is the direction of money movement.
type TransferType string

const (
	TransferIn  TransferType = "in"
	TransferOut TransferType = "out"
)

// Transaction is the canonical record persisted for every accepted notification.
// Content is never rewritten; DisplayContent shadows it for presentation only.
type Transaction struct {
	ID              int64        `json:"id,omitempty"`
	Account         string       `json:"account"`
	TransactionDate time.Time    `json:"transaction_date"`
	AccountNumber   *string      `json:"account_number"`
	Code            *string      `json:"code"`
	Content         string       `json:"content"`
	DisplayContent  *string      `json:"display_content"`
	TransferType    TransferType `json:"transfer_type"`
	TransferAmount  int64        `json:"transfer_amount"`
	Accumulated     *int64       `json:"accumulated"`
	Description     *string      `json:"description"`
	Category        *string      `json:"category"`
	Origin          Origin       `json:"origin"`
	CreatedAt       time.Time    `json:"created_at,omitempty"`

	// Receiver only feeds categorization; it is not stored.
	Receiver *string `json:"-"`

	// DateDefaulted is set when the source carried no usable date and
	// TransactionDate holds the processing time instead.
	DateDefaulted bool `json:"-"`
}

// CategoryRule maps a lowercase substring to a category and optional replacement text.
type CategoryRule struct {
	ID              int64   `json:"id" yaml:"-"`
	ReceiverPattern string  `json:"receiver_pattern" yaml:"receiver_pattern"`
	Category        string  `json:"category" yaml:"category"`
	NewContent      *string `json:"new_content,omitempty" yaml:"new_content,omitempty"`
}

// Match is the outcome of categorization. Both fields are nil when no rule matched.
type Match struct {
	Category       *string
	DisplayContent *string
}

// TransactionFilter selects stored transactions. Nil fields are not constrained.
// DateFrom is inclusive and DateTo exclusive.
type TransactionFilter struct {
	TransactionDate *time.Time
	DateFrom        *time.Time
	DateTo          *time.Time
	TransferAmount  *int64
	AccountNumber   *string
	Content         *string
	Account         *string
	Category        *string
	Limit           int
}

// Stats summarises stored transactions.
type Stats struct {
	Total         int64            `json:"total_transactions"`
	ByAccount     map[string]int64 `json:"by_account"`
	ByCategory    map[string]int64 `json:"by_category"`
	Uncategorized int64            `json:"uncategorized"`
	Categorized   int64            `json:"categorized"`
}
