package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/bankfeed/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

const (
	naturalKeyUnique = `CREATE UNIQUE INDEX IF NOT EXISTS transactions_natural_key
		ON transactions (transaction_date, transfer_amount, account_number, content)`
	naturalKeyLookup = `CREATE INDEX IF NOT EXISTS transactions_natural_key_lookup
		ON transactions (transaction_date, transfer_amount, account_number, content)`

	transactionColumns = `id, account, transaction_date, account_number, code, content, display_content,
		transfer_type, transfer_amount, accumulated, description, category, origin, created_at`

	uniqueViolation = "23505"
)

type PostgresStore struct {
	Db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

// Migrate creates the tables. With enforceUniqueKey the natural key
// (transaction_date, transfer_amount, account_number, content) gets a unique
// index; NULL account numbers never collide because Postgres treats NULLs as distinct.
func (s *PostgresStore) Migrate(ctx context.Context, enforceUniqueKey bool) error {
	if _, err := s.Db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	index := naturalKeyLookup
	if enforceUniqueKey {
		index = naturalKeyUnique
	}
	if _, err := s.Db.Exec(ctx, index); err != nil {
		return fmt.Errorf("natural key index failed: %w", err)
	}
	return nil
}

// FetchRules returns all category rules in stored (id) order.
func (s *PostgresStore) FetchRules(ctx context.Context) ([]domain.CategoryRule, error) {
	rows, err := s.Db.Query(ctx,
		"SELECT id, receiver_pattern, category, new_content FROM category_rules ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("rule query failed: %w", err)
	}
	defer rows.Close()

	var rules []domain.CategoryRule
	for rows.Next() {
		var r domain.CategoryRule
		if err := rows.Scan(&r.ID, &r.ReceiverPattern, &r.Category, &r.NewContent); err != nil {
			return nil, fmt.Errorf("rule scan failed: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// InsertRules bulk-loads rules with COPY and returns the number of rows written.
func (s *PostgresStore) InsertRules(ctx context.Context, rules []domain.CategoryRule) (int64, error) {
	n, err := s.Db.CopyFrom(ctx,
		pgx.Identifier{"category_rules"},
		[]string{"receiver_pattern", "category", "new_content"},
		pgx.CopyFromRows(ruleRows(rules)),
	)
	if err != nil {
		return 0, fmt.Errorf("rule copy failed: %w", err)
	}
	return n, nil
}

// ReplaceRules swaps the whole rule table in one transaction so readers never see it empty.
func (s *PostgresStore) ReplaceRules(ctx context.Context, rules []domain.CategoryRule) (int64, error) {
	tx, err := s.Db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM category_rules"); err != nil {
		return 0, fmt.Errorf("rule delete failed: %w", err)
	}
	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{"category_rules"},
		[]string{"receiver_pattern", "category", "new_content"},
		pgx.CopyFromRows(ruleRows(rules)),
	)
	if err != nil {
		return 0, fmt.Errorf("rule copy failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit failed: %w", err)
	}
	return n, nil
}

func ruleRows(rules []domain.CategoryRule) [][]interface{} {
	rows := make([][]interface{}, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, []interface{}{r.ReceiverPattern, r.Category, r.NewContent})
	}
	return rows
}

// FindTransactions returns matching transactions, newest first.
func (s *PostgresStore) FindTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(column, op string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s %s $%d", column, op, len(args)))
	}
	if f.TransactionDate != nil {
		add("transaction_date", "=", *f.TransactionDate)
	}
	if f.DateFrom != nil {
		add("transaction_date", ">=", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("transaction_date", "<", *f.DateTo)
	}
	if f.TransferAmount != nil {
		add("transfer_amount", "=", *f.TransferAmount)
	}
	if f.AccountNumber != nil {
		add("account_number", "=", *f.AccountNumber)
	}
	if f.Content != nil {
		add("content", "=", *f.Content)
	}
	if f.Account != nil {
		add("account", "=", *f.Account)
	}
	if f.Category != nil {
		add("category", "=", *f.Category)
	}

	query := "SELECT " + transactionColumns + " FROM transactions"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY transaction_date DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.Db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transaction query failed: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("transaction scan failed: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// InsertTransaction writes tx and returns it with the generated id and timestamp.
// A unique-index hit is reported as domain.ErrDuplicateKey.
func (s *PostgresStore) InsertTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	err := s.Db.QueryRow(ctx,
		`INSERT INTO transactions (account, transaction_date, account_number, code, content, display_content,
			transfer_type, transfer_amount, accumulated, description, category, origin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`,
		tx.Account, tx.TransactionDate, tx.AccountNumber, tx.Code, tx.Content, tx.DisplayContent,
		string(tx.TransferType), tx.TransferAmount, tx.Accumulated, tx.Description, tx.Category, string(tx.Origin),
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Transaction{}, domain.ErrDuplicateKey
		}
		return domain.Transaction{}, fmt.Errorf("transaction insert failed: %w", err)
	}
	return tx, nil
}

// Stats counts transactions by account and by category.
func (s *PostgresStore) Stats(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{
		ByAccount:  make(map[string]int64),
		ByCategory: make(map[string]int64),
	}

	if err := s.Db.QueryRow(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE category IS NULL) FROM transactions",
	).Scan(&stats.Total, &stats.Uncategorized); err != nil {
		return stats, fmt.Errorf("stats query failed: %w", err)
	}
	stats.Categorized = stats.Total - stats.Uncategorized

	if err := s.countInto(ctx, "SELECT account, COUNT(*) FROM transactions GROUP BY account", stats.ByAccount); err != nil {
		return stats, err
	}
	if err := s.countInto(ctx,
		"SELECT COALESCE(category, '"+domain.UncategorizedLabel+"'), COUNT(*) FROM transactions GROUP BY 1",
		stats.ByCategory); err != nil {
		return stats, err
	}
	return stats, nil
}

func (s *PostgresStore) countInto(ctx context.Context, query string, into map[string]int64) error {
	rows, err := s.Db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("stats query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("stats scan failed: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		t            domain.Transaction
		transferType string
		origin       string
	)
	err := row.Scan(&t.ID, &t.Account, &t.TransactionDate, &t.AccountNumber, &t.Code, &t.Content,
		&t.DisplayContent, &transferType, &t.TransferAmount, &t.Accumulated, &t.Description,
		&t.Category, &origin, &t.CreatedAt)
	t.TransferType = domain.TransferType(transferType)
	t.Origin = domain.Origin(origin)
	return t, err
}
