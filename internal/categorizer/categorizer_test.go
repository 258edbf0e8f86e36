package categorizer

import (
	"context"
	"errors"
	"testing"

	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRules struct {
	rules []domain.CategoryRule
	err   error
}

func (s staticRules) Rules(ctx context.Context) ([]domain.CategoryRule, error) {
	return s.rules, s.err
}

func strPtr(s string) *string { return &s }

func TestCategorize_FirstMatchWins(t *testing.T) {
	c := New(staticRules{rules: []domain.CategoryRule{
		{ReceiverPattern: "shopee", Category: "Shopping"},
		{ReceiverPattern: "shop", Category: "Misc"},
	}}, logging.Discard())

	match := c.Categorize(context.Background(), domain.Transaction{Content: "Thanh toan Shopee"})

	require.NotNil(t, match.Category)
	assert.Equal(t, "Shopping", *match.Category)
	assert.Nil(t, match.DisplayContent)
}

func TestCategorize_OrderIsStoredOrder(t *testing.T) {
	c := New(staticRules{rules: []domain.CategoryRule{
		{ReceiverPattern: "shop", Category: "Misc"},
		{ReceiverPattern: "shopee", Category: "Shopping"},
	}}, logging.Discard())

	match := c.Categorize(context.Background(), domain.Transaction{Content: "Thanh toan Shopee"})

	require.NotNil(t, match.Category)
	assert.Equal(t, "Misc", *match.Category)
}

func TestCategorize_NoMatch(t *testing.T) {
	c := New(staticRules{rules: []domain.CategoryRule{
		{ReceiverPattern: "grab", Category: "Transport"},
	}}, logging.Discard())

	match := c.Categorize(context.Background(), domain.Transaction{Content: "Thanh toan Shopee"})

	assert.Nil(t, match.Category)
	assert.Nil(t, match.DisplayContent)
}

func TestCategorize_NewContentBecomesDisplayContent(t *testing.T) {
	c := New(staticRules{rules: []domain.CategoryRule{
		{ReceiverPattern: "phan the anh", Category: "Family", NewContent: strPtr("Transfer to Anh")},
	}}, logging.Discard())

	tx := domain.Transaction{Content: "Chuyen tien ngoai CAKE", Receiver: strPtr("PHAN THE ANH")}
	match := c.Categorize(context.Background(), tx)

	require.NotNil(t, match.Category)
	assert.Equal(t, "Family", *match.Category)
	require.NotNil(t, match.DisplayContent)
	assert.Equal(t, "Transfer to Anh", *match.DisplayContent)
	assert.Equal(t, "Chuyen tien ngoai CAKE", tx.Content)
}

func TestCategorize_MatchesDescriptionAndCode(t *testing.T) {
	c := New(staticRules{rules: []domain.CategoryRule{
		{ReceiverPattern: "hd12345", Category: "Bills"},
	}}, logging.Discard())

	match := c.Categorize(context.Background(), domain.Transaction{Content: "payment", Code: strPtr("HD12345")})
	require.NotNil(t, match.Category)
	assert.Equal(t, "Bills", *match.Category)
}

func TestCategorize_NoCrossFieldMatch(t *testing.T) {
	c := New(staticRules{rules: []domain.CategoryRule{
		{ReceiverPattern: "shopee pay", Category: "Shopping"},
	}}, logging.Discard())

	tx := domain.Transaction{Content: "shopee", Description: strPtr("pay")}
	match := c.Categorize(context.Background(), tx)

	assert.Nil(t, match.Category)
}

func TestCategorize_RuleFetchErrorIsUncategorized(t *testing.T) {
	c := New(staticRules{err: domain.ErrRuleFetch}, logging.Discard())

	match := c.Categorize(context.Background(), domain.Transaction{Content: "Thanh toan Shopee"})

	assert.Nil(t, match.Category)
	assert.Nil(t, match.DisplayContent)
}

func TestCategorize_BlankTextSkipsRules(t *testing.T) {
	c := New(staticRules{err: errors.New("must not be called")}, logging.Discard())

	match := c.Categorize(context.Background(), domain.Transaction{Content: "  "})
	assert.Nil(t, match.Category)
}

func TestSearchText(t *testing.T) {
	tx := domain.Transaction{
		Content:     "Thanh toan Shopee",
		Description: strPtr("BankAPINotify"),
		Receiver:    strPtr(""),
		Code:        strPtr("ABC"),
	}
	assert.Equal(t, "thanh toan shopee\nbankapinotify\nabc", SearchText(tx))
}
