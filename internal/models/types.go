package models

import (
	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/shopspring/decimal"
)

// WebhookPayload is the SePay-shaped record. The email extractor produces the same shape.
type WebhookPayload struct {
	ID              *int64           `json:"id,omitempty"`
	Gateway         *string          `json:"gateway"`
	TransactionDate *string          `json:"transactionDate"`
	AccountNumber   *string          `json:"accountNumber"`
	SubAccount      *string          `json:"subAccount,omitempty"`
	Code            *string          `json:"code"`
	Content         *string          `json:"content"`
	TransferType    *string          `json:"transferType"`
	TransferAmount  *decimal.Decimal `json:"transferAmount"`
	Accumulated     *decimal.Decimal `json:"accumulated"`
	Description     *string          `json:"description"`
	ReferenceCode   *string          `json:"referenceCode,omitempty"`
	Receiver        *string          `json:"receiver,omitempty"`
}

// EmailMessage is what the mail relay forwards.
type EmailMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from"`
}

// ProcessResponse is the body returned by the webhook endpoints.
type ProcessResponse struct {
	Success        bool                `json:"success"`
	Message        string              `json:"message,omitempty"`
	Duplicate      bool                `json:"duplicate"`
	Category       *string             `json:"category,omitempty"`
	ContentChanged bool                `json:"content_modified"`
	Transaction    *domain.Transaction `json:"transaction,omitempty"`
	Error          string              `json:"error,omitempty"`
	MayHaveWritten bool                `json:"may_have_written,omitempty"`
}

// TransactionList is the body returned by the listing endpoints.
type TransactionList struct {
	Account      string               `json:"account,omitempty"`
	Category     string               `json:"category,omitempty"`
	Transactions []domain.Transaction `json:"transactions"`
	Count        int                  `json:"count"`
}
