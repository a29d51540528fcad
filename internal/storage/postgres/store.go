package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/lib/pq"
	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// queryer is the part of *sql.DB and *sql.Tx the reads need.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres error codes reported as models.ErrBusy.
const (
	codeLockNotAvailable = "55P03"
	codeDeadlock         = "40P01"
)

type PostgresLedgerStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

type Option func(*PostgresLedgerStore)

// WithLockTimeout bounds how long a transaction waits for balance row locks
// held by another process.
func WithLockTimeout(d time.Duration) Option {
	return func(p *PostgresLedgerStore) { p.lockTimeout = d }
}

func NewPostgresLedgerStore(db *sql.DB, opts ...Option) *PostgresLedgerStore {
	p := &PostgresLedgerStore{
		db: db,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the ledger tables if they do not exist.
func (p *PostgresLedgerStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

func (p *PostgresLedgerStore) Atomic(ctx context.Context, fn func(tx interfaces.StoreTx) error) (err error) {
	dbTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	if err = fn(&postgresTx{tx: dbTx, lockTimeout: p.lockTimeout}); err != nil {
		return asBusy(err)
	}
	if err = dbTx.Commit(); err != nil {
		return asBusy(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// asBusy turns lock timeouts and deadlock aborts into models.ErrBusy so
// callers can retry them.
func asBusy(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeLockNotAvailable, codeDeadlock:
		return models.Errorf(models.ErrBusy, "postgres: %s", pqErr.Message).With("code", string(pqErr.Code))
	}
	return err
}

func (p *PostgresLedgerStore) Entries(ctx context.Context, filter models.EntryFilter) iter.Seq2[models.LedgerEntry, error] {
	return func(yield func(models.LedgerEntry, error) bool) {
		query, args := entriesQuery(filter)
		rows, err := p.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(models.LedgerEntry{}, fmt.Errorf("query entries: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			entry, err := scanEntry(rows)
			if err != nil {
				yield(models.LedgerEntry{}, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.LedgerEntry{}, fmt.Errorf("iterate entries: %w", err))
		}
	}
}

func (p *PostgresLedgerStore) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return balance(ctx, p.db, accountID, false)
}

func (p *PostgresLedgerStore) Position(ctx context.Context, accountID, securityID string) (models.Position, bool, error) {
	return position(ctx, p.db, accountID, securityID)
}

func (p *PostgresLedgerStore) Positions(ctx context.Context, accountID string) ([]models.Position, error) {
	const query = `SELECT account_id, security_id, quantity, average_cost, updated_at
	FROM positions WHERE account_id = $1 ORDER BY security_id`

	rows, err := p.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var result []models.Position
	for rows.Next() {
		var pos models.Position
		if err := rows.Scan(&pos.AccountID, &pos.SecurityID, &pos.Quantity, &pos.AverageCost, &pos.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		result = append(result, pos)
	}
	return result, rows.Err()
}

func (p *PostgresLedgerStore) AccountIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT account_id FROM account_balances ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type postgresTx struct {
	tx          *sql.Tx
	lockTimeout time.Duration
}

// Lock takes the balance rows of every account in ascending id order, so
// writers in different processes queue in the same order.
func (t *postgresTx) Lock(ctx context.Context, accountIDs []string) error {
	ids := slices.Compact(slices.Sorted(slices.Values(accountIDs)))
	if len(ids) == 0 {
		return nil
	}
	if t.lockTimeout > 0 {
		if _, err := t.tx.ExecContext(ctx, lockTimeoutStatement(t.lockTimeout)); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	const ensure = `INSERT INTO account_balances (account_id, balance)
	SELECT id, 0 FROM unnest($1::text[]) AS id ORDER BY id
	ON CONFLICT (account_id) DO NOTHING`
	if _, err := t.tx.ExecContext(ctx, ensure, pq.Array(ids)); err != nil {
		return fmt.Errorf("ensure balance rows: %w", err)
	}

	const lock = `SELECT account_id FROM account_balances
	WHERE account_id = ANY($1) ORDER BY account_id FOR UPDATE`
	if _, err := t.tx.ExecContext(ctx, lock, pq.Array(ids)); err != nil {
		return fmt.Errorf("lock balance rows: %w", err)
	}
	return nil
}

// lockTimeoutStatement renders SET LOCAL, which takes no bind parameters.
func lockTimeoutStatement(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return fmt.Sprintf("SET LOCAL lock_timeout = %d", ms)
}

// Balance locks the counter row for the rest of the transaction, so a second
// writer on the same account waits even across processes.
func (t *postgresTx) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	const ensure = `INSERT INTO account_balances (account_id, balance) VALUES ($1, 0)
	ON CONFLICT (account_id) DO NOTHING`

	if _, err := t.tx.ExecContext(ctx, ensure, accountID); err != nil {
		return decimal.Zero, fmt.Errorf("ensure balance row: %w", err)
	}
	return balance(ctx, t.tx, accountID, true)
}

func (t *postgresTx) InsertEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	const insert = `INSERT INTO ledger_entries
	(account_id, kind, amount, security_id, quantity, price, description, correlation_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`

	err := t.tx.QueryRowContext(ctx, insert,
		e.AccountID, string(e.Kind), e.Amount, nullString(e.SecurityID), e.Quantity, e.Price,
		nullString(e.Description), nullString(e.CorrelationID), e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("insert entry: %w", err)
	}

	const bump = `INSERT INTO account_balances (account_id, balance, updated_at) VALUES ($1, $2, $3)
	ON CONFLICT (account_id) DO UPDATE
	SET balance = account_balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`

	if _, err := t.tx.ExecContext(ctx, bump, e.AccountID, e.SignedAmount(), e.CreatedAt); err != nil {
		return models.LedgerEntry{}, fmt.Errorf("update balance: %w", err)
	}
	return e, nil
}

func (t *postgresTx) Position(ctx context.Context, accountID, securityID string) (models.Position, bool, error) {
	return position(ctx, t.tx, accountID, securityID)
}

func (t *postgresTx) PutPosition(ctx context.Context, pos models.Position) error {
	const upsert = `INSERT INTO positions (account_id, security_id, quantity, average_cost, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (account_id, security_id) DO UPDATE
	SET quantity = EXCLUDED.quantity, average_cost = EXCLUDED.average_cost, updated_at = EXCLUDED.updated_at`

	_, err := t.tx.ExecContext(ctx, upsert, pos.AccountID, pos.SecurityID, pos.Quantity, pos.AverageCost, pos.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (t *postgresTx) Entries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	query, args := entriesQuery(filter)
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func balance(ctx context.Context, q queryer, accountID string, forUpdate bool) (decimal.Decimal, error) {
	query := `SELECT balance FROM account_balances WHERE account_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var b decimal.Decimal
	err := q.QueryRowContext(ctx, query, accountID).Scan(&b)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query balance: %w", err)
	}
	return b, nil
}

func position(ctx context.Context, q queryer, accountID, securityID string) (models.Position, bool, error) {
	const query = `SELECT account_id, security_id, quantity, average_cost, updated_at
	FROM positions WHERE account_id = $1 AND security_id = $2`

	var pos models.Position
	err := q.QueryRowContext(ctx, query, accountID, securityID).
		Scan(&pos.AccountID, &pos.SecurityID, &pos.Quantity, &pos.AverageCost, &pos.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Position{}, false, nil
	}
	if err != nil {
		return models.Position{}, false, fmt.Errorf("query position: %w", err)
	}
	return pos, true, nil
}

func entriesQuery(f models.EntryFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.AccountIDs) > 0 {
		where = append(where, "account_id = ANY("+arg(pq.Array(f.AccountIDs))+")")
	}
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		where = append(where, "kind = ANY("+arg(pq.Array(kinds))+")")
	}
	if f.SecurityID != "" {
		where = append(where, "security_id = "+arg(f.SecurityID))
	}
	if len(f.CorrelationIDs) > 0 {
		where = append(where, "correlation_id = ANY("+arg(pq.Array(f.CorrelationIDs))+")")
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= "+arg(f.Since))
	}
	if !f.Until.IsZero() {
		where = append(where, "created_at < "+arg(f.Until))
	}

	var b strings.Builder
	b.WriteString(`SELECT id, account_id, kind, amount, security_id, quantity, price, description, correlation_id, created_at FROM ledger_entries`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if f.Descending {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	} else {
		b.WriteString(" ORDER BY created_at ASC, id ASC")
	}
	if f.Limit > 0 {
		b.WriteString(" LIMIT " + arg(f.Limit))
	}
	return b.String(), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (models.LedgerEntry, error) {
	var (
		e                                  models.LedgerEntry
		kind                               string
		security, description, correlation sql.NullString
	)
	err := s.Scan(&e.ID, &e.AccountID, &kind, &e.Amount, &security, &e.Quantity, &e.Price,
		&description, &correlation, &e.CreatedAt)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("scan entry: %w", err)
	}
	e.Kind = models.EntryKind(kind)
	e.SecurityID = security.String
	e.Description = description.String
	e.CorrelationID = correlation.String
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
