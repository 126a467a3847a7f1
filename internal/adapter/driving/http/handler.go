// Package httphandler is the HTTP driving adapter that serves the JSON API
// over the account manager.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"github.com/ericfisherdev/passvault/internal/application"
	"github.com/ericfisherdev/passvault/internal/domain/model"
	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// Request headers carrying the platform-verified call context.
const (
	HeaderCallerID = "X-Caller-ID"
	HeaderDeposit  = "X-Attached-Deposit"
)

const maxBodyBytes = 64 << 10

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	manager *application.AccountManager
	ledger  driven.Ledger
	health  *application.HealthService
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	manager *application.AccountManager,
	ledger driven.Ledger,
	health *application.HealthService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		manager: manager,
		ledger:  ledger,
		health:  health,
		logger:  logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request-id, logging, rate-limit and recovery middleware. metrics and
// limiter may be nil.
func NewServeMux(h *Handler, metrics http.Handler, limiter *RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/users/{user}/accounts", h.AddAccount)
	mux.HandleFunc("GET /api/v1/users/{user}/accounts", h.GetAccounts)
	mux.HandleFunc("DELETE /api/v1/users/{user}/accounts/{id}", h.RemoveAccount)
	mux.HandleFunc("GET /api/v1/users/count", h.CountUsers)
	mux.HandleFunc("GET /api/v1/transfers", h.ListTransfers)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	if limiter != nil {
		wrapped = limiter.Middleware(wrapped)
	}
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// AddAccount stores or updates a credential for the user in the path. The
// caller and deposit come from the X-Caller-ID and X-Attached-Deposit headers.
func (h *Handler) AddAccount(w http.ResponseWriter, r *http.Request) {
	call, ok := h.callFromRequest(w, r)
	if !ok {
		return
	}

	var req AddAccountRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user := model.UserID(r.PathValue("user"))
	receipt, err := h.manager.Add(r.Context(), call, user, req.Website, req.Username, req.Password)
	if err != nil {
		h.writeDomainError(w, "add account", err)
		return
	}

	writeJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

// GetAccounts serves both get_one and list. With a website query parameter it
// returns the matching account or null; without one it lists every account
// of the user.
func (h *Handler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	user := model.UserID(r.PathValue("user"))

	if r.URL.Query().Has("website") {
		account, err := h.manager.GetOne(r.Context(), user, r.URL.Query().Get("website"))
		if err != nil {
			h.writeDomainError(w, "get account", err)
			return
		}
		if account == nil {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeJSON(w, http.StatusOK, toAccountResponse(*account))
		return
	}

	accounts, err := h.manager.List(r.Context(), user)
	if err != nil {
		h.writeDomainError(w, "list accounts", err)
		return
	}

	resp := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RemoveAccount deletes one account of the user and refunds the released
// storage to the caller.
func (h *Handler) RemoveAccount(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	caller := r.Header.Get(HeaderCallerID)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "missing "+HeaderCallerID+" header")
		return
	}

	user := model.UserID(r.PathValue("user"))
	receipt, err := h.manager.Remove(r.Context(), model.Call{Predecessor: caller}, user, model.AccountID(id))
	if err != nil {
		h.writeDomainError(w, "remove account", err)
		return
	}

	writeJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

// CountUsers returns the number of users that hold at least one account.
func (h *Handler) CountUsers(w http.ResponseWriter, r *http.Request) {
	n, err := h.manager.Count(r.Context())
	if err != nil {
		h.writeDomainError(w, "count users", err)
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// ListTransfers returns refund history, optionally filtered by recipient.
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.ledger.List(r.Context(), r.URL.Query().Get("recipient"))
	if err != nil {
		h.logger.Error("failed to list transfers", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]TransferResponse, 0, len(transfers))
	for _, t := range transfers {
		resp = append(resp, toTransferResponse(t))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health reports store reachability and refund queue pressure. A failing
// store answers 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	summary := h.health.Check(r.Context())

	status := http.StatusOK
	if summary.Status == application.HealthFailing {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthResponse{
		Status:       string(summary.Status),
		Owner:        h.manager.Owner(),
		StorageBytes: summary.StorageBytes,
		Components:   summary.Components,
		Time:         summary.CheckedAt.Format(time.RFC3339),
	})
}

// callFromRequest builds the call context from request headers. It writes a
// 400 and returns false when a header is missing or malformed. A missing
// deposit header means nothing was attached.
func (h *Handler) callFromRequest(w http.ResponseWriter, r *http.Request) (model.Call, bool) {
	call := model.Call{Predecessor: r.Header.Get(HeaderCallerID)}
	if call.Predecessor == "" {
		writeError(w, http.StatusBadRequest, "missing "+HeaderCallerID+" header")
		return model.Call{}, false
	}

	if raw := r.Header.Get(HeaderDeposit); raw != "" {
		deposit, err := uint256.FromDecimal(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+HeaderDeposit+" header: expected a decimal amount")
			return model.Call{}, false
		}
		call.Deposit.Set(deposit)
	}

	return call, true
}

// writeDomainError maps err onto an HTTP status through application.KindOf.
// Internal and encoding failures are logged and reported without detail.
func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	kind := application.KindOf(err)
	switch kind {
	case application.KindValidation:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: kind.String()})
	case application.KindPayment:
		var payErr *application.InsufficientPaymentError
		errors.As(err, &payErr)
		writeJSON(w, http.StatusPaymentRequired, errorResponse{
			Error:    err.Error(),
			Kind:     kind.String(),
			Required: payErr.Required.Dec(),
			Attached: payErr.Attached.Dec(),
		})
	case application.KindNotFound:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: kind.String()})
	case application.KindEncoding:
		h.logger.Error("stored credential could not be decoded", "op", op, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "stored credential could not be decoded", Kind: kind.String()})
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
