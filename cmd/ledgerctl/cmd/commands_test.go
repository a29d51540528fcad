package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sheikh-saqib/brokerage-ledger/internal/ledger"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReportsShowsSubCentMismatch(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	failed, err := writeReports(&buf, []ledger.Report{
		{AccountID: "acc-1", Cached: decimal.RequireFromString("12.5"), Replayed: decimal.RequireFromString("12.5"), Positions: 1},
		{
			AccountID: "acc-2",
			Cached:    decimal.RequireFromString("10.004"),
			Replayed:  decimal.RequireFromString("10.001"),
			Err:       models.Errorf(models.ErrReconciliationMismatch, "balance counter diverges"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "REPLAYED")
	assert.Contains(t, lines[1], "12.5")
	assert.Contains(t, lines[1], "ok")
	assert.Contains(t, lines[2], "10.004")
	assert.Contains(t, lines[2], "10.001")
	assert.Contains(t, lines[2], "reconciliation mismatch")
}
