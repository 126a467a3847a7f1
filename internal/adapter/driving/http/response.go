package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/passvault/internal/application"
	"github.com/ericfisherdev/passvault/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body. Required and Attached
// are set only for 402 responses.
type errorResponse struct {
	Error    string `json:"error"`
	Kind     string `json:"kind,omitempty"`
	Required string `json:"required,omitempty"`
	Attached string `json:"attached,omitempty"`
}

// AddAccountRequest is the JSON body for the add account endpoint.
type AddAccountRequest struct {
	Website  string `json:"website"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// AccountResponse is the JSON representation of a decoded credential.
type AccountResponse struct {
	ID       uint64 `json:"id"`
	UserID   string `json:"user_id"`
	Website  string `json:"website"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ReceiptResponse is the JSON representation of a mutation receipt. Amounts
// are decimal strings because they exceed the range of a JSON number.
type ReceiptResponse struct {
	AccountID    uint64 `json:"account_id"`
	Created      bool   `json:"created"`
	StorageDelta int64  `json:"storage_delta"`
	Cost         string `json:"cost"`
	Refund       string `json:"refund"`
}

// TransferResponse is the JSON representation of a ledger transfer.
type TransferResponse struct {
	ID        int64  `json:"id"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
	AccountID uint64 `json:"account_id"`
	CreatedAt string `json:"created_at"`
}

// CountResponse is the JSON body of the user count endpoint.
type CountResponse struct {
	Count int `json:"count"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status       string                        `json:"status"`
	Owner        string                        `json:"owner"`
	StorageBytes uint64                        `json:"storage_bytes"`
	Components   []application.ComponentHealth `json:"components"`
	Time         string                        `json:"time"`
}

// toAccountResponse converts a domain Account to its JSON representation.
func toAccountResponse(a model.Account) AccountResponse {
	return AccountResponse{
		ID:       uint64(a.ID),
		UserID:   string(a.UserID),
		Website:  a.Website,
		Username: a.Username,
		Password: a.Password,
	}
}

// toReceiptResponse converts a domain Receipt to its JSON representation.
func toReceiptResponse(r model.Receipt) ReceiptResponse {
	return ReceiptResponse{
		AccountID:    uint64(r.AccountID),
		Created:      r.Created,
		StorageDelta: r.StorageDelta,
		Cost:         r.Cost.Dec(),
		Refund:       r.Refund.Dec(),
	}
}

// toTransferResponse converts a domain Transfer to its JSON representation.
func toTransferResponse(t model.Transfer) TransferResponse {
	return TransferResponse{
		ID:        t.ID,
		Recipient: t.Recipient,
		Amount:    t.Amount.Dec(),
		Reason:    string(t.Reason),
		AccountID: uint64(t.AccountID),
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
	}
}
