package application

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/passvault/internal/adapter/driven/codec"
	"github.com/ericfisherdev/passvault/internal/adapter/driven/leveldb"
	"github.com/ericfisherdev/passvault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/passvault/internal/domain/model"
	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// testByteCost mirrors the default production rate of 10^19 units per byte.
var testByteCost = uint256.NewInt(10_000_000_000_000_000_000)

const testCaller = "milos21.testnet"

// ampleDeposit is 10^22 units, enough for any single test record.
func ampleDeposit() model.Call {
	c := model.Call{Predecessor: testCaller}
	c.Deposit.Mul(uint256.NewInt(10_000), uint256.NewInt(1_000_000_000_000_000_000))
	return c
}

func depositCall(amount *uint256.Int) model.Call {
	c := model.Call{Predecessor: testCaller}
	c.Deposit.Set(amount)
	return c
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// --- Mock implementations ---

// mockLedger records transfers in memory. Like a database driver it refuses
// work on a cancelled context.
type mockLedger struct {
	mu        sync.Mutex
	transfers []model.Transfer
	err       error
}

func (m *mockLedger) Transfer(ctx context.Context, t model.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.transfers = append(m.transfers, t)
	return nil
}

func (m *mockLedger) List(_ context.Context, recipient string) ([]model.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Transfer
	for _, t := range m.transfers {
		if recipient == "" || t.Recipient == recipient {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockLedger) all() []model.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Transfer(nil), m.transfers...)
}

// faultyKV wraps a KVStore and fails the first Put whose key has failPrefix.
type faultyKV struct {
	driven.KVStore
	failPrefix []byte
	fired      bool
}

var errInjected = errors.New("injected write failure")

func (f *faultyKV) Put(ctx context.Context, key, value []byte) error {
	if !f.fired && f.failPrefix != nil && bytes.HasPrefix(key, f.failPrefix) {
		f.fired = true
		return errInjected
	}
	return f.KVStore.Put(ctx, key, value)
}

// --- Test helpers ---

type testEnv struct {
	kv      driven.KVStore
	ledger  *mockLedger
	manager *AccountManager
}

func newTestKV(t *testing.T) *leveldb.Store {
	t.Helper()
	kv, err := leveldb.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func newSQLiteKV(t *testing.T) *sqlite.StateRepo {
	t.Helper()
	db, err := sqlite.NewDB(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.RunMigrations(db.Writer))
	return sqlite.NewStateRepo(db)
}

// stateBackends lists every KVStore the manager runs on in production.
var stateBackends = []struct {
	name string
	open func(t *testing.T) driven.KVStore
}{
	{name: "leveldb", open: func(t *testing.T) driven.KVStore { return newTestKV(t) }},
	{name: "sqlite", open: func(t *testing.T) driven.KVStore { return newSQLiteKV(t) }},
}

func newTestEnvWithKV(t *testing.T, kv driven.KVStore) *testEnv {
	t.Helper()
	ledger := &mockLedger{}
	accountant := NewStorageAccountant(testByteCost, uint256.NewInt(1))
	m := NewAccountManager("milos21.testnet", kv, codec.Base64{}, accountant, NewSyncPayer(ledger, discardLogger), nil, discardLogger)
	require.NoError(t, m.Initialize(context.Background()))
	return &testEnv{kv: kv, ledger: ledger, manager: m}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithKV(t, newTestKV(t))
}

// snapshot copies every persisted entry so tests can compare whole states.
func snapshot(t *testing.T, kv driven.KVStore) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := kv.Scan(context.Background(), nil, func(key, value []byte) error {
		out[string(key)] = string(value)
		return nil
	})
	require.NoError(t, err)
	return out
}

// recordBytes is the storage charged for a fresh record of user/website with
// base64 username/password of the given encoded lengths.
func recordBytes(user, website string, encUser, encPass int) int64 {
	key := len(accountTablePrefix) + 8
	value := 8 + 4*4 + len(user) + len(website) + encUser + encPass
	return int64(key + value + driven.EntryOverheadBytes)
}

// indexBytes is the storage charged for a user index entry holding n ids.
func indexBytes(user string, n int) int64 {
	return int64(len(userIndexPrefix) + len(user) + 4 + 8*n + driven.EntryOverheadBytes)
}
