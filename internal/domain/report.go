package domain

import "time"

const (
	// UncategorizedLabel is the bucket for transactions without a category.
	UncategorizedLabel = "Uncategorized"

	// IncomeCategory marks incoming transfers that count as income in reports.
	// Other incoming transfers are treated as refunds against spending.
	IncomeCategory = "Income"
)

// CategoryTotal is the net spending of one category in a report.
type CategoryTotal struct {
	Category string `json:"category"`
	Amount   int64  `json:"amount"`
}

// MonthlyReport summarises one calendar month of stored transactions.
// From is inclusive and To exclusive, both in the service's configured location.
type MonthlyReport struct {
	Year             int             `json:"year"`
	Month            int             `json:"month"`
	Label            string          `json:"label"`
	From             time.Time       `json:"from"`
	To               time.Time       `json:"to"`
	HasData          bool            `json:"has_data"`
	TransactionCount int             `json:"transaction_count"`
	TotalIncome      int64           `json:"total_income"`
	TotalExpense     int64           `json:"total_expense"`
	Net              int64           `json:"net"`
	SavingsRate      *float64        `json:"savings_rate,omitempty"`
	ByCategory       []CategoryTotal `json:"expenses_by_category"`
}
