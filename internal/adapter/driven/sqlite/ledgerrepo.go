package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/ericfisherdev/passvault/internal/domain/model"
	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Ledger = (*LedgerRepo)(nil)

// LedgerRepo is the SQLite implementation of the Ledger port interface. It
// records each refund in the transfers table; settlement with the payment
// network happens downstream of this table.
type LedgerRepo struct {
	db *DB
}

// NewLedgerRepo creates a new LedgerRepo backed by the given DB.
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// Transfer records a refund of t.Amount to t.Recipient.
func (r *LedgerRepo) Transfer(ctx context.Context, t model.Transfer) error {
	const query = `INSERT INTO transfers (recipient, amount, reason, account_id) VALUES (?, ?, ?, ?)`
	_, err := r.db.Writer.ExecContext(ctx, query, t.Recipient, t.Amount.Dec(), string(t.Reason), int64(t.AccountID))
	if err != nil {
		return fmt.Errorf("record transfer to %q: %w", t.Recipient, err)
	}
	return nil
}

// List returns recorded transfers newest first, optionally filtered by recipient.
func (r *LedgerRepo) List(ctx context.Context, recipient string) ([]model.Transfer, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if recipient == "" {
		const query = `SELECT id, recipient, amount, reason, account_id, created_at FROM transfers ORDER BY id DESC`
		rows, err = r.db.Reader.QueryContext(ctx, query)
	} else {
		const query = `SELECT id, recipient, amount, reason, account_id, created_at FROM transfers WHERE recipient = ? ORDER BY id DESC`
		rows, err = r.db.Reader.QueryContext(ctx, query, recipient)
	}
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []model.Transfer
	for rows.Next() {
		var (
			t         model.Transfer
			amount    string
			reason    string
			accountID int64
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.Recipient, &amount, &reason, &accountID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}

		parsed, err := uint256.FromDecimal(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount of transfer %d: %w", t.ID, err)
		}
		t.Amount.Set(parsed)
		t.Reason = model.TransferReason(reason)
		t.AccountID = model.AccountID(accountID)

		t.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for transfer %d: %w", t.ID, err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return transfers, nil
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
