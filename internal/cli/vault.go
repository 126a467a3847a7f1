package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/passvault/internal/adapter/driven/codec"
	"github.com/ericfisherdev/passvault/internal/adapter/driven/leveldb"
	"github.com/ericfisherdev/passvault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/passvault/internal/application"
	"github.com/ericfisherdev/passvault/internal/config"
	"github.com/ericfisherdev/passvault/internal/domain/port/driven"
)

// vault is an opened store with the account manager wired over it.
type vault struct {
	manager *application.AccountManager
	ledger  driven.Ledger
	closers []func() error
}

func (v *vault) Close() error {
	var errs []error
	for i := len(v.closers) - 1; i >= 0; i-- {
		errs = append(errs, v.closers[i]())
	}
	return errors.Join(errs...)
}

// openVault opens the configured backend, migrates the ledger database and
// initialises the store for the owner.
func openVault(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*vault, error) {
	byteCost, err := uint256.FromDecimal(opts.ByteCost)
	if err != nil || byteCost.IsZero() {
		return nil, usageError("invalid --byte-cost: expected a positive decimal amount", err)
	}

	level := slog.LevelError
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	c, err := codec.New(opts.Codec, os.Getenv("PASSVAULT_SECRET"), opts.Owner)
	if err != nil {
		return nil, usageError("invalid --codec", err)
	}

	v := &vault{}
	db, err := sqlite.NewDB(ctx, opts.DB)
	if err != nil {
		return nil, usageError("open database", err)
	}
	v.closers = append(v.closers, db.Close)

	if err := sqlite.RunMigrations(db.Writer); err != nil {
		_ = v.Close()
		return nil, usageError("migrate database", err)
	}

	var kv driven.KVStore
	switch opts.Backend {
	case config.BackendLevelDB:
		store, err := leveldb.Open(opts.LevelDB)
		if err != nil {
			_ = v.Close()
			return nil, usageError("open leveldb", err)
		}
		v.closers = append(v.closers, store.Close)
		kv = store
	default:
		kv = sqlite.NewStateRepo(db)
	}

	v.ledger = sqlite.NewLedgerRepo(db)
	accountant := application.NewStorageAccountant(byteCost, uint256.NewInt(1))
	v.manager = application.NewAccountManager(opts.Owner, kv, c, accountant,
		application.NewSyncPayer(v.ledger, logger), nil, logger)

	if err := v.manager.Initialize(ctx); err != nil {
		_ = v.Close()
		return nil, usageError("initialize store", err)
	}
	return v, nil
}

// withVault opens the vault for the duration of fn.
func withVault(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, v *vault) error) error {
	ctx := cmd.Context()
	v, err := openVault(ctx, opts, cmd)
	if err != nil {
		return err
	}
	runErr := fn(ctx, v)
	if err := v.Close(); err != nil && runErr == nil {
		return usageError("close store", err)
	}
	return runErr
}
