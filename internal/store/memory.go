package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/bankfeed/internal/domain"
)

// MemoryStore keeps rules and transactions in process memory. It backs local
// development (STORE_DRIVER=memory) and tests.
type MemoryStore struct {
	mu               sync.RWMutex
	rules            []domain.CategoryRule
	txs              []domain.Transaction
	nextRuleID       int64
	nextTxID         int64
	enforceUniqueKey bool
	now              func() time.Time
}

func NewMemoryStore(enforceUniqueKey bool) *MemoryStore {
	return &MemoryStore{enforceUniqueKey: enforceUniqueKey, now: time.Now}
}

// InsertRules appends rules in order and returns how many were added.
func (s *MemoryStore) InsertRules(ctx context.Context, rules []domain.CategoryRule) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rules {
		s.nextRuleID++
		r.ID = s.nextRuleID
		s.rules = append(s.rules, r)
	}
	return int64(len(rules)), nil
}

func (s *MemoryStore) FetchRules(ctx context.Context) ([]domain.CategoryRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CategoryRule(nil), s.rules...), nil
}

func (s *MemoryStore) FindTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	var out []domain.Transaction
	for _, t := range s.txs {
		if matches(t, f) {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TransactionDate.Equal(out[j].TransactionDate) {
			return out[i].ID > out[j].ID
		}
		return out[i].TransactionDate.After(out[j].TransactionDate)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) InsertTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enforceUniqueKey && tx.AccountNumber != nil {
		key := domain.TransactionFilter{
			TransactionDate: &tx.TransactionDate,
			TransferAmount:  &tx.TransferAmount,
			AccountNumber:   tx.AccountNumber,
			Content:         &tx.Content,
		}
		for _, existing := range s.txs {
			if matches(existing, key) {
				return domain.Transaction{}, domain.ErrDuplicateKey
			}
		}
	}

	s.nextTxID++
	tx.ID = s.nextTxID
	tx.CreatedAt = s.now()
	s.txs = append(s.txs, tx)
	return tx, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.Stats{
		Total:      int64(len(s.txs)),
		ByAccount:  make(map[string]int64),
		ByCategory: make(map[string]int64),
	}
	for _, t := range s.txs {
		stats.ByAccount[t.Account]++
		if t.Category == nil {
			stats.ByCategory[domain.UncategorizedLabel]++
			stats.Uncategorized++
			continue
		}
		stats.ByCategory[*t.Category]++
	}
	stats.Categorized = stats.Total - stats.Uncategorized
	return stats, nil
}

// matches applies SQL equality semantics: a constrained column that is NULL never matches.
func matches(t domain.Transaction, f domain.TransactionFilter) bool {
	if f.TransactionDate != nil && !t.TransactionDate.Equal(*f.TransactionDate) {
		return false
	}
	if f.DateFrom != nil && t.TransactionDate.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && !t.TransactionDate.Before(*f.DateTo) {
		return false
	}
	if f.TransferAmount != nil && t.TransferAmount != *f.TransferAmount {
		return false
	}
	if f.Content != nil && t.Content != *f.Content {
		return false
	}
	if f.Account != nil && t.Account != *f.Account {
		return false
	}
	if f.AccountNumber != nil && (t.AccountNumber == nil || *t.AccountNumber != *f.AccountNumber) {
		return false
	}
	if f.Category != nil && (t.Category == nil || *t.Category != *f.Category) {
		return false
	}
	return true
}
