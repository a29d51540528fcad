package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
users:
  - id: u-2
    name: Bob
  - id: u-1
    name: Ada
    created_at: 2024-01-02T03:04:05Z
accounts:
  - id: acc-2
    user_id: u-1
    name: Savings
  - id: acc-1
    user_id: u-1
    name: Main
  - id: acc-3
    user_id: u-2
    name: Bob Main
securities:
  - id: AAPL
    symbol: AAPL
    name: Apple Inc.
    price: 10.5
`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadSeed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	c, err := LoadSeed(writeSeed(t, seedYAML))
	require.NoError(t, err)

	users, err := c.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "u-1", users[0].ID)
	assert.Equal(t, 2024, users[0].CreatedAt.Year())

	accounts, err := c.AccountsOf(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "acc-1", accounts[0].ID)
	assert.Equal(t, "acc-2", accounts[1].ID)

	sec, err := c.Security(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.5").Equal(sec.Price))
	assert.Equal(t, "Apple Inc.", sec.Name)
}

func TestLoadSeedErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read seed file")

	_, err = LoadSeed(writeSeed(t, "users: [unclosed"))
	assert.ErrorContains(t, err, "parse seed file")

	_, err = LoadSeed(writeSeed(t, "accounts:\n  - id: a\n    user_id: ghost\n"))
	assert.ErrorContains(t, err, `unknown user "ghost"`)
}

func TestUnknownLookups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewCatalog()

	_, err := c.Account(ctx, "nope")
	assert.True(t, errors.Is(err, models.ErrUnknownAccount))
	_, err = c.User(ctx, "nope")
	assert.True(t, errors.Is(err, models.ErrUnknownAccount))
	_, err = c.Security(ctx, "nope")
	assert.True(t, errors.Is(err, models.ErrUnknownSecurity))
	assert.True(t, errors.Is(c.SetPrice("nope", decimal.NewFromInt(1)), models.ErrUnknownSecurity))

	accounts, err := c.AccountsOf(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSetPrice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewCatalog()
	c.PutSecurity(models.Security{ID: "S", Symbol: "S", Price: decimal.NewFromInt(1)})

	require.NoError(t, c.SetPrice("S", decimal.RequireFromString("2.25")))
	sec, err := c.Security(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "2.25", sec.Price.String())
	assert.Equal(t, "S", sec.Symbol)
}
