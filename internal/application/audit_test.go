package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/passvault/internal/domain/model"
)

func TestAudit_CleanStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, w := range []string{"instagram", "facebook"} {
		_, err := env.manager.Add(ctx, ampleDeposit(), "alice", w, "u", "p")
		require.NoError(t, err)
	}
	_, err := env.manager.Add(ctx, ampleDeposit(), "bob", "reddit", "u", "p")
	require.NoError(t, err)
	_, err = env.manager.Remove(ctx, model.NewCall(testCaller, 0), "alice", 1)
	require.NoError(t, err)

	report, err := env.manager.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), "problems: %v", report.Problems)
	assert.Equal(t, 2, report.Users)
	assert.Equal(t, 2, report.Accounts)
	assert.Equal(t, uint64(3), report.Counter)
}

func TestAudit_DetectsViolations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.manager.Add(ctx, ampleDeposit(), "alice", "instagram", "u", "p")
	require.NoError(t, err)

	// Stray record that no user indexes, with an id beyond the counter.
	require.NoError(t, env.manager.table.Put(ctx, model.Account{ID: 50, UserID: "mallory", Website: "x"}))
	// Bob indexes alice's account and a record that does not exist.
	require.NoError(t, env.manager.index.store(ctx, "bob", []model.AccountID{1, 60}))

	report, err := env.manager.Audit(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{
		`account 1 indexed under both "alice" and "bob"`,
		`account 50 is above the id counter 1`,
		`account 50 of "mallory" is not indexed`,
		`user "bob" indexes missing account 60`,
	}, report.Problems)
}
