package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/passvault/internal/adapter/driven/codec"
	"github.com/ericfisherdev/passvault/internal/adapter/driven/leveldb"
	"github.com/ericfisherdev/passvault/internal/adapter/driven/metrics"
	httphandler "github.com/ericfisherdev/passvault/internal/adapter/driving/http"
	"github.com/ericfisherdev/passvault/internal/application"
	"github.com/ericfisherdev/passvault/internal/domain/model"
)

// --- Mock implementations ---

type mockLedger struct {
	mu        sync.Mutex
	transfers []model.Transfer
	listErr   error
}

func (m *mockLedger) Transfer(_ context.Context, t model.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = int64(len(m.transfers) + 1)
	t.CreatedAt = testTime
	m.transfers = append(m.transfers, t)
	return nil
}

func (m *mockLedger) List(_ context.Context, recipient string) ([]model.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Transfer
	for i := len(m.transfers) - 1; i >= 0; i-- {
		if recipient == "" || m.transfers[i].Recipient == recipient {
			out = append(out, m.transfers[i])
		}
	}
	return out, nil
}

// --- Test helpers ---

var testTime = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

const (
	testCaller = "milos21.testnet"
	testUser   = "1.milos21.testnet"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type testServer struct {
	mux     http.Handler
	ledger  *mockLedger
	manager *application.AccountManager
}

// setupMux wires a real AccountManager over in-memory leveldb with a byte
// cost of 10 units and a refund floor of 1.
func setupMux(t *testing.T) *testServer {
	t.Helper()
	kv, err := leveldb.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	ledger := &mockLedger{}
	accountant := application.NewStorageAccountant(uint256.NewInt(10), uint256.NewInt(1))
	manager := application.NewAccountManager("vault.testnet", kv, codec.Base64{}, accountant,
		application.NewSyncPayer(ledger, discardLogger), nil, discardLogger)
	require.NoError(t, manager.Initialize(context.Background()))

	h := httphandler.NewHandler(manager, ledger, application.NewHealthService(kv, nil), discardLogger)
	return &testServer{
		mux:     httphandler.NewServeMux(h, nil, nil, discardLogger),
		ledger:  ledger,
		manager: manager,
	}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func addRequest(user, body, deposit string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/"+user+"/accounts", strings.NewReader(body))
	req.Header.Set(httphandler.HeaderCallerID, testCaller)
	if deposit != "" {
		req.Header.Set(httphandler.HeaderDeposit, deposit)
	}
	return req
}

func (s *testServer) add(t *testing.T, user, website, username, password string) {
	t.Helper()
	body := `{"website":"` + website + `","username":"` + username + `","password":"` + password + `"}`
	rec := s.do(t, addRequest(user, body, "1000000"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

// --- Tests ---

func TestAddAccount(t *testing.T) {
	s := setupMux(t)

	rec := s.do(t, addRequest(testUser, `{"website":"instagram","username":"user1","password":"pass1"}`, "1000000"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got httphandler.ReceiptResponse
	decodeJSON(t, rec, &got)
	assert.Equal(t, uint64(1), got.AccountID)
	assert.True(t, got.Created)
	assert.Positive(t, got.StorageDelta)

	cost := uint256.NewInt(uint64(got.StorageDelta) * 10)
	assert.Equal(t, cost.Dec(), got.Cost)
	assert.Equal(t, new(uint256.Int).Sub(uint256.NewInt(1000000), cost).Dec(), got.Refund)

	require.Len(t, s.ledger.transfers, 1)
	assert.Equal(t, testCaller, s.ledger.transfers[0].Recipient)
}

func TestAddAccount_Errors(t *testing.T) {
	tests := []struct {
		name       string
		req        func() *http.Request
		wantStatus int
		wantKind   string
		wantError  string
	}{
		{
			name: "no deposit header",
			req: func() *http.Request {
				return addRequest(testUser, `{"website":"w","username":"u","password":"p"}`, "")
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   "validation",
		},
		{
			name: "zero deposit",
			req: func() *http.Request {
				return addRequest(testUser, `{"website":"w","username":"u","password":"p"}`, "0")
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   "validation",
		},
		{
			name: "malformed deposit",
			req: func() *http.Request {
				return addRequest(testUser, `{"website":"w","username":"u","password":"p"}`, "ten")
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid X-Attached-Deposit header: expected a decimal amount",
		},
		{
			name: "missing caller",
			req: func() *http.Request {
				req := addRequest(testUser, `{"website":"w","username":"u","password":"p"}`, "100")
				req.Header.Del(httphandler.HeaderCallerID)
				return req
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "missing X-Caller-ID header",
		},
		{
			name: "invalid body",
			req: func() *http.Request {
				return addRequest(testUser, `{not json`, "100")
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupMux(t)
			rec := s.do(t, tt.req())
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]string
			decodeJSON(t, rec, &body)
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, body["kind"])
			}
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body["error"])
			}
		})
	}
}

func TestAddAccount_InsufficientPayment(t *testing.T) {
	s := setupMux(t)

	rec := s.do(t, addRequest(testUser, `{"website":"instagram","username":"user1","password":"pass1"}`, "5"))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "payment", body["kind"])
	assert.Equal(t, "5", body["attached"])
	assert.NotEmpty(t, body["required"])
	assert.Empty(t, s.ledger.transfers)

	// Nothing was stored.
	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/users/count", nil))
	var count httphandler.CountResponse
	decodeJSON(t, rec, &count)
	assert.Equal(t, 0, count.Count)
}

func TestGetAccounts_GetOne(t *testing.T) {
	s := setupMux(t)
	s.add(t, testUser, "instagram", "user1", "pass1")

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/users/"+testUser+"/accounts?website=instagram", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got httphandler.AccountResponse
	decodeJSON(t, rec, &got)
	assert.Equal(t, httphandler.AccountResponse{
		ID:       1,
		UserID:   testUser,
		Website:  "instagram",
		Username: "user1",
		Password: "pass1",
	}, got)
}

func TestGetAccounts_GetOneMissingIsNull(t *testing.T) {
	s := setupMux(t)
	s.add(t, testUser, "instagram", "user1", "pass1")

	for _, path := range []string{
		"/api/v1/users/" + testUser + "/accounts?website=facebook",
		"/api/v1/users/2.milos21.testnet/accounts?website=instagram",
	} {
		rec := s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "null", rec.Body.String())
	}
}

func TestGetAccounts_List(t *testing.T) {
	s := setupMux(t)
	for _, site := range []string{"instagram", "facebook", "reddit", "twitter"} {
		s.add(t, testUser, site, "u-"+site, "p-"+site)
	}

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/users/"+testUser+"/accounts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []httphandler.AccountResponse
	decodeJSON(t, rec, &got)
	require.Len(t, got, 4)
	for i, site := range []string{"instagram", "facebook", "reddit", "twitter"} {
		assert.Equal(t, uint64(i+1), got[i].ID)
		assert.Equal(t, site, got[i].Website)
		assert.Equal(t, "p-"+site, got[i].Password)
	}
}

func TestGetAccounts_ListUnknownUser(t *testing.T) {
	s := setupMux(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/users/nobody/accounts", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	assert.Equal(t, "not_found", body["kind"])
}

func TestRemoveAccount(t *testing.T) {
	s := setupMux(t)
	s.add(t, testUser, "instagram", "user1", "pass1")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/users/"+testUser+"/accounts/1", nil)
	req.Header.Set(httphandler.HeaderCallerID, "remover.testnet")
	rec := s.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got httphandler.ReceiptResponse
	decodeJSON(t, rec, &got)
	assert.Negative(t, got.StorageDelta)
	assert.Equal(t, "0", got.Cost)
	assert.Equal(t, uint256.NewInt(uint64(-got.StorageDelta)*10).Dec(), got.Refund)

	require.Len(t, s.ledger.transfers, 2)
	assert.Equal(t, "remover.testnet", s.ledger.transfers[1].Recipient)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/users/"+testUser+"/accounts?website=instagram", nil))
	assert.Equal(t, "null", rec.Body.String())
}

func TestRemoveAccount_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		caller     string
		wantStatus int
	}{
		{name: "unknown user", path: "/api/v1/users/nobody/accounts/1", caller: testCaller, wantStatus: http.StatusNotFound},
		{name: "unknown id", path: "/api/v1/users/" + testUser + "/accounts/9", caller: testCaller, wantStatus: http.StatusNotFound},
		{name: "invalid id", path: "/api/v1/users/" + testUser + "/accounts/abc", caller: testCaller, wantStatus: http.StatusBadRequest},
		{name: "negative id", path: "/api/v1/users/" + testUser + "/accounts/-1", caller: testCaller, wantStatus: http.StatusBadRequest},
		{name: "missing caller", path: "/api/v1/users/" + testUser + "/accounts/1", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupMux(t)
			s.add(t, testUser, "instagram", "user1", "pass1")

			req := httptest.NewRequest(http.MethodDelete, tt.path, nil)
			if tt.caller != "" {
				req.Header.Set(httphandler.HeaderCallerID, tt.caller)
			}
			rec := s.do(t, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestCountUsers(t *testing.T) {
	s := setupMux(t)
	s.add(t, "alice", "a", "u", "p")
	s.add(t, "alice", "b", "u", "p")
	s.add(t, "bob", "a", "u", "p")

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/users/count", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got httphandler.CountResponse
	decodeJSON(t, rec, &got)
	assert.Equal(t, 2, got.Count)
}

func TestListTransfers(t *testing.T) {
	s := setupMux(t)
	s.add(t, "alice", "a", "u", "p")

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/transfers?recipient="+testCaller, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got []httphandler.TransferResponse
	decodeJSON(t, rec, &got)
	require.Len(t, got, 1)
	assert.Equal(t, testCaller, got[0].Recipient)
	assert.Equal(t, "surplus_refund", got[0].Reason)
	assert.Equal(t, uint64(1), got[0].AccountID)
	assert.Equal(t, "2026-02-10T12:00:00Z", got[0].CreatedAt)

	rec = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/transfers?recipient=someone.else", nil))
	var none []httphandler.TransferResponse
	decodeJSON(t, rec, &none)
	assert.Empty(t, none)
	assert.NotNil(t, none, "empty result is an array, not null")
}

func TestListTransfers_LedgerError(t *testing.T) {
	s := setupMux(t)
	s.ledger.listErr = errors.New("db closed")

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/transfers", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	s := setupMux(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got httphandler.HealthResponse
	decodeJSON(t, rec, &got)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "vault.testnet", got.Owner)
	assert.Positive(t, got.StorageBytes)
	require.Len(t, got.Components, 1)
	assert.Equal(t, "store", got.Components[0].Name)
}

func TestRequestID(t *testing.T) {
	s := setupMux(t)

	rec := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Len(t, rec.Header().Get(httphandler.HeaderRequestID), 36)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(httphandler.HeaderRequestID, "abc-123")
	rec = s.do(t, req)
	assert.Equal(t, "abc-123", rec.Header().Get(httphandler.HeaderRequestID))
}

func TestRateLimit(t *testing.T) {
	s := setupMux(t)
	h := httphandler.NewHandler(s.manager, s.ledger, nil, discardLogger)
	mux := httphandler.NewServeMux(h, nil, httphandler.NewRateLimiter(0.001, 2), discardLogger)

	statuses := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/count", nil)
		req.Header.Set(httphandler.HeaderCallerID, "greedy")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)

	// Another caller has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/count", nil)
	req.Header.Set(httphandler.HeaderCallerID, "polite")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	kv, err := leveldb.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	reg := prometheus.NewRegistry()
	ledger := &mockLedger{}
	manager := application.NewAccountManager("vault.testnet", kv, codec.Base64{},
		application.NewStorageAccountant(uint256.NewInt(10), uint256.NewInt(1)),
		application.NewSyncPayer(ledger, discardLogger), metrics.NewPrometheus(reg), discardLogger)
	require.NoError(t, manager.Initialize(context.Background()))

	h := httphandler.NewHandler(manager, ledger, application.NewHealthService(kv, nil), discardLogger)
	mux := httphandler.NewServeMux(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil, discardLogger)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/count", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `passvault_accounts_calls_total{op="count",outcome="ok"} 1`)
}

func TestRecoveryMiddleware(t *testing.T) {
	// A nil health service makes the health handler panic.
	s := setupMux(t)
	h := httphandler.NewHandler(s.manager, s.ledger, nil, discardLogger)
	mux := httphandler.NewServeMux(h, nil, nil, discardLogger)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
