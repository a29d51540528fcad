// Package postgres reads account metadata and security prices from the
// tables owned by the account and market-data services.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// Schema creates the directory tables for development databases. In
// production they belong to other services.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id),
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS accounts_user_idx ON accounts (user_id);

CREATE TABLE IF NOT EXISTS securities (
	id     TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	name   TEXT NOT NULL,
	price  NUMERIC NOT NULL CHECK (price >= 0)
);
`

type Directory struct {
	db *sql.DB
}

func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate directory schema: %w", err)
	}
	return nil
}

func (d *Directory) Account(ctx context.Context, accountID string) (models.Account, error) {
	var a models.Account
	err := d.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at FROM accounts WHERE id = $1`, accountID,
	).Scan(&a.ID, &a.UserID, &a.Name, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, models.Errorf(models.ErrUnknownAccount, "no account %q", accountID)
	}
	if err != nil {
		return models.Account{}, fmt.Errorf("query account: %w", err)
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (d *Directory) User(ctx context.Context, userID string) (models.User, error) {
	var u models.User
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Name, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.Errorf(models.ErrUnknownAccount, "no user %q", userID)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (d *Directory) Users(ctx context.Context) ([]models.User, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

func (d *Directory) AccountsOf(ctx context.Context, userID string) ([]models.Account, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, name, created_at FROM accounts WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (d *Directory) Security(ctx context.Context, securityID string) (models.Security, error) {
	var s models.Security
	err := d.db.QueryRowContext(ctx,
		`SELECT id, symbol, name, price FROM securities WHERE id = $1`, securityID,
	).Scan(&s.ID, &s.Symbol, &s.Name, &s.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Security{}, models.Errorf(models.ErrUnknownSecurity, "no security %q", securityID)
	}
	if err != nil {
		return models.Security{}, fmt.Errorf("query security: %w", err)
	}
	return s, nil
}

// SetPrice records a new current price.
func (d *Directory) SetPrice(ctx context.Context, securityID string, price decimal.Decimal) error {
	res, err := d.db.ExecContext(ctx, `UPDATE securities SET price = $2 WHERE id = $1`, securityID, price)
	if err != nil {
		return fmt.Errorf("update price: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Errorf(models.ErrUnknownSecurity, "no security %q", securityID)
	}
	return nil
}

var (
	_ interfaces.AccountDirectory = (*Directory)(nil)
	_ interfaces.MarketData       = (*Directory)(nil)
)
