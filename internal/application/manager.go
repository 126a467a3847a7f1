// Package application contains the credential storage engine: the account
// table, user index, id allocator and storage accountant, orchestrated by
// AccountManager.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/ericfisherdev/passvault/internal/domain/model"
	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// Operation names reported to metrics.
const (
	OpAdd    = "add"
	OpGetOne = "get_one"
	OpList   = "list"
	OpCount  = "count"
	OpRemove = "remove"
)

// AccountManager owns the persisted partitions and keeps the account table and
// user index consistent. Calls are serialised: each runs to completion,
// including any rollback, before the next observes state.
type AccountManager struct {
	mu sync.Mutex

	owner      string
	kv         driven.KVStore
	table      *AccountTable
	index      *UserIndex
	ids        *IDAllocator
	codec      driven.Codec
	accountant *StorageAccountant
	payer      Payer
	metrics    driven.Metrics
	logger     *slog.Logger
}

// NewAccountManager creates an AccountManager for the owning system owner.
// metrics may be nil.
func NewAccountManager(
	owner string,
	kv driven.KVStore,
	codec driven.Codec,
	accountant *StorageAccountant,
	payer Payer,
	metrics driven.Metrics,
	logger *slog.Logger,
) *AccountManager {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	table := NewAccountTable(kv)
	return &AccountManager{
		owner:      owner,
		kv:         kv,
		table:      table,
		index:      NewUserIndex(kv, table),
		ids:        NewIDAllocator(kv),
		codec:      codec,
		accountant: accountant,
		payer:      payer,
		metrics:    metrics,
		logger:     logger,
	}
}

// Owner returns the identifier of the owning system.
func (m *AccountManager) Owner() string {
	return m.owner
}

// Initialize persists the owner id and a zero id counter if they are absent.
// It is safe to call on every startup. A store initialised by a different
// owner is rejected with ErrOwnerMismatch.
func (m *AccountManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok, err := m.kv.Get(ctx, ownerKey)
	if err != nil {
		return fmt.Errorf("get owner: %w", err)
	}
	if ok && string(raw) != m.owner {
		return fmt.Errorf("%w: have %q, want %q", ErrOwnerMismatch, raw, m.owner)
	}
	if !ok {
		if err := m.kv.Put(ctx, ownerKey, []byte(m.owner)); err != nil {
			return fmt.Errorf("put owner: %w", err)
		}
	}

	_, present, err := m.ids.Current(ctx)
	if err != nil {
		return err
	}
	if !present {
		if err := m.ids.Reset(ctx, 0, true); err != nil {
			return err
		}
	}
	return nil
}

// Add stores the credential for (user, website), or updates it in place if
// one exists. The call's deposit must cover the storage consumed; otherwise
// every write is undone and an *InsufficientPaymentError is returned. Any
// surplus above the refund floor is paid back to the predecessor.
func (m *AccountManager) Add(ctx context.Context, call model.Call, user model.UserID, website, username, password string) (receipt model.Receipt, err error) {
	defer m.observe(OpAdd, time.Now(), &err)

	if call.Deposit.IsZero() {
		return model.Receipt{}, ErrNoDeposit
	}

	encUsername, err := m.codec.Encode(username)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("encode username: %w", err)
	}
	encPassword, err := m.codec.Encode(password)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("encode password: %w", err)
	}

	receipt, payout, err := m.add(ctx, call, user, website, encUsername, encPassword)
	if err != nil {
		return model.Receipt{}, err
	}
	m.pay(ctx, payout)
	return receipt, nil
}

// add applies an Add under the call lock. The refund it returns is paid by
// the caller once the lock is released.
func (m *AccountManager) add(ctx context.Context, call model.Call, user model.UserID, website, encUsername, encPassword string) (model.Receipt, *model.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before, err := m.kv.Usage(ctx)
	if err != nil {
		return model.Receipt{}, nil, fmt.Errorf("measure storage: %w", err)
	}

	id, found, err := m.index.Find(ctx, user, website)
	if err != nil {
		return model.Receipt{}, nil, err
	}

	var undo undoLog
	var prev *model.Account
	if found {
		if prev, err = m.table.Get(ctx, id); err != nil {
			return model.Receipt{}, nil, err
		}
	} else {
		counter, present, err := m.ids.Current(ctx)
		if err != nil {
			return model.Receipt{}, nil, err
		}
		if id, err = m.ids.Next(ctx); err != nil {
			return model.Receipt{}, nil, m.abort(ctx, undo, OpAdd, err)
		}
		undo.push(func(ctx context.Context) error { return m.ids.Reset(ctx, counter, present) })
	}

	account := model.Account{
		ID:       id,
		UserID:   user,
		Website:  website,
		Username: encUsername,
		Password: encPassword,
	}
	if err := m.table.Put(ctx, account); err != nil {
		return model.Receipt{}, nil, m.abort(ctx, undo, OpAdd, err)
	}
	undo.push(func(ctx context.Context) error {
		if prev != nil {
			return m.table.Put(ctx, *prev)
		}
		return m.table.Delete(ctx, id)
	})

	prevIDs, _, err := m.index.load(ctx, user)
	if err != nil {
		return model.Receipt{}, nil, m.abort(ctx, undo, OpAdd, err)
	}
	attached, err := m.index.Attach(ctx, user, id)
	if err != nil {
		return model.Receipt{}, nil, m.abort(ctx, undo, OpAdd, err)
	}
	if attached {
		undo.push(func(ctx context.Context) error { return m.index.store(ctx, user, prevIDs) })
	}

	after, err := m.kv.Usage(ctx)
	if err != nil {
		return model.Receipt{}, nil, m.abort(ctx, undo, OpAdd, fmt.Errorf("measure storage: %w", err))
	}
	delta := m.accountant.Measure(before, after)

	settlement, err := m.accountant.Settle(&call.Deposit, delta)
	if err != nil {
		return model.Receipt{}, nil, m.abort(ctx, undo, OpAdd, err)
	}

	m.logger.Debug("account stored",
		"user", user,
		"account_id", id,
		"created", !found,
		"storage_delta", delta,
		"cost", settlement.Required.Dec(),
	)
	m.metrics.ObserveStorage(OpAdd, delta)

	receipt := model.Receipt{AccountID: id, Created: !found, StorageDelta: delta}
	receipt.Cost.Set(&settlement.Required)
	receipt.Refund.Set(&settlement.Refund)
	reason := model.TransferSurplusRefund
	if delta < 0 {
		reason = model.TransferStorageFreed
	}
	return receipt, m.payout(call, id, &settlement.Refund, reason), nil
}

// GetOne returns the decoded credential for (user, website), or nil when the
// user is unknown or has no account for website.
func (m *AccountManager) GetOne(ctx context.Context, user model.UserID, website string) (account *model.Account, err error) {
	defer m.observe(OpGetOne, time.Now(), &err)

	m.mu.Lock()
	defer m.mu.Unlock()

	id, found, err := m.index.Find(ctx, user, website)
	if err != nil || !found {
		return nil, err
	}
	a, err := m.mustGet(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err := m.decode(a); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns every decoded credential of user in insertion order. An unknown
// user fails with ErrUnknownUser.
func (m *AccountManager) List(ctx context.Context, user model.UserID) (accounts []model.Account, err error) {
	defer m.observe(OpList, time.Now(), &err)

	m.mu.Lock()
	defer m.mu.Unlock()

	ids, err := m.index.List(ctx, user)
	if err != nil {
		return nil, err
	}
	accounts = make([]model.Account, 0, len(ids))
	for _, id := range ids {
		a, err := m.mustGet(ctx, user, id)
		if err != nil {
			return nil, err
		}
		if err := m.decode(a); err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, nil
}

// Count returns the number of users that own at least one account.
func (m *AccountManager) Count(ctx context.Context) (n int, err error) {
	defer m.observe(OpCount, time.Now(), &err)

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.index.Count(ctx)
}

// Remove deletes account id of user and refunds the released storage to the
// predecessor. It fails with ErrUnknownUser when the user has no entry and
// with ErrAccountNotFound when the id is not among the user's accounts.
func (m *AccountManager) Remove(ctx context.Context, call model.Call, user model.UserID, id model.AccountID) (receipt model.Receipt, err error) {
	defer m.observe(OpRemove, time.Now(), &err)

	receipt, payout, err := m.remove(ctx, call, user, id)
	if err != nil {
		return model.Receipt{}, err
	}
	m.pay(ctx, payout)
	return receipt, nil
}

func (m *AccountManager) remove(ctx context.Context, call model.Call, user model.UserID, id model.AccountID) (model.Receipt, *model.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before, err := m.kv.Usage(ctx)
	if err != nil {
		return model.Receipt{}, nil, fmt.Errorf("measure storage: %w", err)
	}

	prevIDs, _, err := m.index.load(ctx, user)
	if err != nil {
		return model.Receipt{}, nil, err
	}
	detached, err := m.index.Detach(ctx, user, id)
	if err != nil {
		return model.Receipt{}, nil, err
	}
	if !detached {
		return model.Receipt{}, nil, fmt.Errorf("remove %d from %q: %w", id, user, ErrAccountNotFound)
	}

	var undo undoLog
	undo.push(func(ctx context.Context) error { return m.index.store(ctx, user, prevIDs) })

	prev, err := m.mustGet(ctx, user, id)
	if err != nil {
		return model.Receipt{}, nil, m.abort(ctx, undo, OpRemove, err)
	}
	if err := m.table.Delete(ctx, id); err != nil {
		return model.Receipt{}, nil, m.abort(ctx, undo, OpRemove, err)
	}
	undo.push(func(ctx context.Context) error { return m.table.Put(ctx, *prev) })

	after, err := m.kv.Usage(ctx)
	if err != nil {
		return model.Receipt{}, nil, m.abort(ctx, undo, OpRemove, fmt.Errorf("measure storage: %w", err))
	}
	delta := m.accountant.Measure(before, after)

	var noDeposit uint256.Int
	settlement, err := m.accountant.Settle(&noDeposit, delta)
	if err != nil {
		return model.Receipt{}, nil, m.abort(ctx, undo, OpRemove, err)
	}

	m.logger.Debug("account removed", "user", user, "account_id", id, "storage_delta", delta)
	m.metrics.ObserveStorage(OpRemove, delta)

	receipt := model.Receipt{AccountID: id, StorageDelta: delta}
	receipt.Refund.Set(&settlement.Refund)
	return receipt, m.payout(call, id, &settlement.Refund, model.TransferStorageFreed), nil
}

// mustGet loads a record the user index claims exists and checks its owner.
func (m *AccountManager) mustGet(ctx context.Context, user model.UserID, id model.AccountID) (*model.Account, error) {
	a, err := m.table.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: user %q indexes missing account %d", ErrCorruptState, user, id)
	}
	if a.UserID != user {
		return nil, fmt.Errorf("%w: account %d belongs to %q, indexed under %q", ErrCorruptState, id, a.UserID, user)
	}
	return a, nil
}

func (m *AccountManager) decode(a *model.Account) error {
	username, err := m.codec.Decode(a.Username)
	if err != nil {
		return fmt.Errorf("decode username of account %d: %w", a.ID, err)
	}
	password, err := m.codec.Decode(a.Password)
	if err != nil {
		return fmt.Errorf("decode password of account %d: %w", a.ID, err)
	}
	a.Username = username
	a.Password = password
	return nil
}

// abort rolls back the writes recorded in undo and returns cause, joined with
// any rollback failure.
func (m *AccountManager) abort(ctx context.Context, undo undoLog, op string, cause error) error {
	if err := undo.rollback(ctx); err != nil {
		m.logger.Error("rollback failed", "op", op, "cause", cause, "error", err)
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	m.logger.Warn("call rolled back", "op", op, "cause", cause)
	return cause
}

// payout builds the refund for a committed call, or nil when there is
// nothing to pay.
func (m *AccountManager) payout(call model.Call, id model.AccountID, amount *uint256.Int, reason model.TransferReason) *model.Transfer {
	if amount.IsZero() {
		return nil
	}
	t := &model.Transfer{Recipient: call.Predecessor, Reason: reason, AccountID: id}
	t.Amount.Set(amount)
	return t
}

// pay hands a refund to the payer. It must be called without m.mu held.
func (m *AccountManager) pay(ctx context.Context, t *model.Transfer) {
	if t == nil {
		return
	}
	m.metrics.ObserveRefund(string(t.Reason), &t.Amount)
	m.payer.Pay(ctx, *t)
}

func (m *AccountManager) observe(op string, start time.Time, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = KindOf(*err).String()
	}
	m.metrics.ObserveCall(op, outcome, time.Since(start))
}

type nopMetrics struct{}

func (nopMetrics) ObserveCall(string, string, time.Duration) {}
func (nopMetrics) ObserveStorage(string, int64)              {}
func (nopMetrics) ObserveRefund(string, *uint256.Int)        {}
