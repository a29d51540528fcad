package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sheikh-saqib/brokerage-ledger/internal/brokerage"
	"github.com/sheikh-saqib/brokerage-ledger/internal/config"
	dirmemory "github.com/sheikh-saqib/brokerage-ledger/internal/directory/memory"
	"github.com/sheikh-saqib/brokerage-ledger/internal/ledger"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/sheikh-saqib/brokerage-ledger/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	ledger  *ledger.Ledger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log, _ := test.NewNullLogger()
	catalog := dirmemory.NewCatalog()
	require.NoError(t, catalog.Apply(dirmemory.Seed{
		Users: []models.User{{ID: "u-1", Name: "Ada"}},
		Accounts: []models.Account{
			{ID: "acc-1", UserID: "u-1", Name: "Main"},
			{ID: "acc-2", UserID: "u-1", Name: "Savings"},
		},
		Securities: []models.Security{{ID: "S", Symbol: "SSS", Name: "Ess", Price: decimal.NewFromInt(10)}},
	}))
	l := ledger.NewLedger(memory.NewMemoryLedgerStore(), catalog,
		ledger.WithLogger(log),
		ledger.WithLockTimeout(20*time.Millisecond),
	)
	svc := brokerage.NewService(l, catalog, catalog, brokerage.WithLogger(log))
	return &testServer{
		handler: NewRouter(svc, config.FeedConfig{DefaultLimit: 10, DefaultDays: 7}, log),
		ledger:  l,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDepositTradeAndBalance(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/accounts/acc-1/deposits", `{"amount":"100","description":"payday"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entry := decode[models.LedgerEntry](t, rec)
	assert.Equal(t, models.KindDeposit, entry.Kind)

	rec = s.do(t, http.MethodPost, "/trades", `{"account_id":"acc-1","security_id":"S","side":"BUY","quantity":"3"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[models.TradeResult](t, rec)
	assert.Equal(t, models.TradeCommitted, result.State)

	rec = s.do(t, http.MethodGet, "/accounts/acc-1/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decode[balanceResponse](t, rec)
	assert.True(t, decimal.NewFromInt(70).Equal(balance.Balance))

	rec = s.do(t, http.MethodGet, "/accounts/acc-1/history?kind=BUY_STOCK&order=desc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]models.LedgerEntry](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "S", history[0].SecurityID)

	rec = s.do(t, http.MethodGet, "/accounts/acc-1/positions/S/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/accounts/acc-1/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/feed/top-traders?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)
}

func TestTransferRoute(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/accounts/acc-1/deposits", `{"amount":50}`).Code)

	rec := s.do(t, http.MethodPost, "/transfers", `{"from_account":"acc-1","to_account":"acc-2","amount":"20"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/accounts/acc-2/transfers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	transfers := decode[[]models.Transfer](t, rec)
	require.Len(t, transfers, 1)
	assert.Equal(t, "Main", transfers[0].CounterpartyName)
}

func TestErrorStatuses(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"unknown account", http.MethodPost, "/accounts/nope/deposits", `{"amount":"1"}`, http.StatusNotFound, "unknown account"},
		{"unknown security", http.MethodGet, "/accounts/acc-1/positions/NOPE/history", "", http.StatusNotFound, "unknown security"},
		{"malformed body", http.MethodPost, "/accounts/acc-1/deposits", `{"amount":`, http.StatusBadRequest, "bad request"},
		{"zero amount", http.MethodPost, "/accounts/acc-1/deposits", `{"amount":"0"}`, http.StatusBadRequest, "invalid amount"},
		{"overdraft", http.MethodPost, "/accounts/acc-1/withdrawals", `{"amount":"5"}`, http.StatusUnprocessableEntity, "insufficient funds"},
		{"oversell", http.MethodPost, "/trades", `{"account_id":"acc-1","security_id":"S","side":"SELL","quantity":"1"}`, http.StatusUnprocessableEntity, "insufficient position"},
		{"amount and quantity", http.MethodPost, "/trades", `{"account_id":"acc-1","security_id":"S","side":"BUY","quantity":"1","amount":"10"}`, http.StatusBadRequest, "invalid quantity"},
		{"same account", http.MethodPost, "/transfers", `{"from_account":"acc-1","to_account":"acc-1","amount":"1"}`, http.StatusBadRequest, "source and destination account are the same"},
		{"missing transfer target", http.MethodPost, "/transfers", `{"from_account":"acc-1","amount":"1"}`, http.StatusBadRequest, "bad request"},
		{"bad kind filter", http.MethodGet, "/accounts/acc-1/history?kind=BOGUS", "", http.StatusBadRequest, "bad request"},
		{"bad order", http.MethodGet, "/accounts/acc-1/history?order=sideways", "", http.StatusBadRequest, "bad request"},
		{"bad since", http.MethodGet, "/accounts/acc-1/history?since=yesterday", "", http.StatusBadRequest, "bad request"},
		{"negative limit", http.MethodGet, "/feed/recent-trades?limit=-1", "", http.StatusBadRequest, "bad request"},
		{"unknown trader", http.MethodGet, "/feed/traders/ghost", "", http.StatusNotFound, "unknown account"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode[errorResponse](t, rec).Kind)
		})
	}
}

func TestBusyAccountAdvertisesRetry(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	held, done := make(chan struct{}), make(chan struct{})
	go func() {
		_ = s.ledger.Write(context.Background(), []string{"acc-1"}, func(context.Context, *ledger.Writer) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	rec := s.do(t, http.MethodPost, "/accounts/acc-1/deposits", `{"amount":"1"}`)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "account busy", decode[errorResponse](t, rec).Kind)
}

func TestHoldingsRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/accounts/acc-1/deposits", `{"amount":"100"}`).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/trades", `{"account_id":"acc-1","security_id":"S","side":"BUY","quantity":"2"}`).Code)

	rec := s.do(t, http.MethodGet, "/accounts/acc-1/positions/S/performance", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	perf := decode[map[string]any](t, rec)
	assert.Equal(t, "S", perf["security_id"])
	assert.EqualValues(t, 0, perf["days_held"])

	rec = s.do(t, http.MethodGet, "/accounts/acc-2/positions/S/performance", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/securities/S/holders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	holders := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, holders["total_holders"])

	rec = s.do(t, http.MethodGet, "/securities/NOPE/holders", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/feed/most-traded-stocks?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)
}
