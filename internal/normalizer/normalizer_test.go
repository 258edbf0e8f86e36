package normalizer

import (
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/punchamoorthee/bankfeed/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 10, 1, 10, 0, 0, 123456789, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(time.UTC).WithClock(func() time.Time { return fixedNow })
}

func TestAccountCode(t *testing.T) {
	tests := []struct {
		gateway string
		want    string
	}{
		{"Vietcombank", "VCB"},
		{"BIDV", "BIDV"},
		{"MB", "MB"},
		{"MBBank", "MB"},
		{"Techcombank", "TCB"},
		{"VPBank", "VPB"},
		{"ACB", "ACB"},
		{"Sacombank", "STB"},
		{"Agribank", "AGB"},
		{"VietinBank", "CTG"},
		{"vietcombank", "VCB"},
		{"  Vietcombank ", "VCB"},
		{"Cake", "Cake"},
		{"", UnknownGateway},
		{"   ", UnknownGateway},
	}
	for _, tt := range tests {
		t.Run(tt.gateway, func(t *testing.T) {
			assert.Equal(t, tt.want, AccountCode(tt.gateway))
		})
	}
}

func TestNormalize_Webhook(t *testing.T) {
	raw := []byte(`{
		"id": 92704,
		"gateway": "Vietcombank",
		"transactionDate": "2025-10-01 10:00:00",
		"accountNumber": "0123456789",
		"code": null,
		"content": "Thanh toan Shopee",
		"transferType": "out",
		"transferAmount": 100000,
		"accumulated": 1000000,
		"description": "BankAPINotify Thanh toan Shopee"
	}`)

	tx, err := newTestNormalizer().Normalize(raw, domain.OriginWebhook)
	require.NoError(t, err)

	assert.Equal(t, "VCB", tx.Account)
	assert.Equal(t, time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC), tx.TransactionDate)
	require.NotNil(t, tx.AccountNumber)
	assert.Equal(t, "0123456789", *tx.AccountNumber)
	assert.Nil(t, tx.Code)
	assert.Equal(t, "Thanh toan Shopee", tx.Content)
	assert.Equal(t, domain.TransferOut, tx.TransferType)
	assert.Equal(t, int64(100000), tx.TransferAmount)
	require.NotNil(t, tx.Accumulated)
	assert.Equal(t, int64(1000000), *tx.Accumulated)
	require.NotNil(t, tx.Description)
	assert.Nil(t, tx.Category)
	assert.Nil(t, tx.DisplayContent)
	assert.Equal(t, domain.OriginWebhook, tx.Origin)
	assert.False(t, tx.DateDefaulted)
}

func TestNormalize_OptionalFieldsStayAbsent(t *testing.T) {
	raw := []byte(`{"gateway":"Vietcombank","transferAmount":100000,"transferType":"out","content":"Thanh toan Shopee"}`)

	tx, err := newTestNormalizer().Normalize(raw, domain.OriginWebhook)
	require.NoError(t, err)

	require.NotNil(t, tx.AccountNumber)
	assert.Equal(t, "", *tx.AccountNumber)
	assert.Nil(t, tx.Code)
	assert.Nil(t, tx.Accumulated)
	assert.Nil(t, tx.Description)
	assert.Nil(t, tx.Receiver)
	assert.Equal(t, fixedNow.Truncate(time.Second), tx.TransactionDate)
	assert.True(t, tx.DateDefaulted)
}

func TestNormalize_AmountAsString(t *testing.T) {
	raw := []byte(`{"gateway":"ACB","transferAmount":"250000","transferType":"IN","content":"luong"}`)

	tx, err := newTestNormalizer().Normalize(raw, domain.OriginWebhook)
	require.NoError(t, err)
	assert.Equal(t, int64(250000), tx.TransferAmount)
	assert.Equal(t, domain.TransferIn, tx.TransferType)
}

func TestNormalize_UnparsableDateFallsBack(t *testing.T) {
	raw := []byte(`{"transactionDate":"yesterday","transferAmount":1,"transferType":"in","content":"x"}`)

	tx, err := newTestNormalizer().Normalize(raw, domain.OriginWebhook)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Truncate(time.Second), tx.TransactionDate)
	assert.True(t, tx.DateDefaulted)
	assert.Equal(t, UnknownGateway, tx.Account)
}

func TestNormalize_DateInConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	raw := []byte(`{"transactionDate":"2025-10-08 21:14:13","transferAmount":28000,"transferType":"out","content":"x"}`)

	tx, err := New(loc).Normalize(raw, domain.OriginWebhook)
	require.NoError(t, err)
	assert.True(t, tx.TransactionDate.Equal(time.Date(2025, 10, 8, 14, 14, 13, 0, time.UTC)))
}

func TestNormalize_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing amount", `{"transferType":"out","content":"x"}`, "transferAmount"},
		{"missing type", `{"transferAmount":1,"content":"x"}`, "transferType"},
		{"missing content", `{"transferAmount":1,"transferType":"out"}`, "content"},
		{"null content", `{"transferAmount":1,"transferType":"out","content":null}`, "content"},
		{"content wrong type", `{"transferAmount":1,"transferType":"out","content":42}`, "content"},
		{"amount wrong type", `{"transferAmount":true,"transferType":"out","content":"x"}`, ""},
		{"amount not numeric", `{"transferAmount":"lots","transferType":"out","content":"x"}`, ""},
		{"negative amount", `{"transferAmount":-5,"transferType":"out","content":"x"}`, "transferAmount"},
		{"fractional amount", `{"transferAmount":10.5,"transferType":"out","content":"x"}`, "transferAmount"},
		{"bad direction", `{"transferAmount":1,"transferType":"sideways","content":"x"}`, "transferType"},
		{"array body", `[1,2,3]`, ""},
		{"not json", `hello`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestNormalizer().Normalize([]byte(tt.raw), domain.OriginWebhook)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrMalformedPayload))

			var perr *domain.PayloadError
			require.True(t, errors.As(err, &perr))
			if tt.field != "" {
				assert.Equal(t, tt.field, perr.Field)
			}
		})
	}
}

func TestFromRecord_Email(t *testing.T) {
	gateway := "MBBank"
	content := "Chuyen tien ngoai CAKE"
	direction := "out"
	amount := decimal.NewFromFloat(28000.0)
	receiver := "PHAN THE ANH"

	tx, err := newTestNormalizer().FromRecord(models.WebhookPayload{
		Gateway:        &gateway,
		Content:        &content,
		TransferType:   &direction,
		TransferAmount: &amount,
		Receiver:       &receiver,
	}, domain.OriginEmail)
	require.NoError(t, err)

	assert.Equal(t, "MB", tx.Account)
	assert.Equal(t, int64(28000), tx.TransferAmount)
	assert.Equal(t, domain.OriginEmail, tx.Origin)
	require.NotNil(t, tx.Receiver)
	assert.Equal(t, receiver, *tx.Receiver)
}

func TestFromRecord_AccumulatedRounded(t *testing.T) {
	content := "x"
	direction := "in"
	amount := decimal.NewFromInt(10)
	balance := decimal.RequireFromString("4750000.6")

	tx, err := newTestNormalizer().FromRecord(models.WebhookPayload{
		Content:        &content,
		TransferType:   &direction,
		TransferAmount: &amount,
		Accumulated:    &balance,
	}, domain.OriginWebhook)
	require.NoError(t, err)
	require.NotNil(t, tx.Accumulated)
	assert.Equal(t, int64(4750001), *tx.Accumulated)
}
