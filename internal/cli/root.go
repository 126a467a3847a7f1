// Package cli implements passvaultctl, a local administration tool that
// drives the account manager directly against a store on disk.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/passvault/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DB       string // SQLite file: ledger, and state for the sqlite backend
	LevelDB  string // LevelDB directory for the leveldb backend
	Backend  string
	Owner    string
	Caller   string
	Codec    string
	ByteCost string
	Format   string // "json" | "text"
	Verbose  bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for passvaultctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "passvaultctl",
		Short: "passvaultctl - administer a passvault store",
		Long: `Administer a passvault credential store on local disk.

Commands run the same storage engine as the server, including deposits,
refunds and rollback, so the server should be stopped while they run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return usageError(fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			if opts.Backend != config.BackendSQLite && opts.Backend != config.BackendLevelDB {
				return usageError(fmt.Sprintf("invalid backend %q: must be %s or %s", opts.Backend, config.BackendSQLite, config.BackendLevelDB), nil)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.DB, "db", defaults.DBPath, "SQLite database path")
	flags.StringVar(&opts.LevelDB, "leveldb", defaults.LevelDBPath, "LevelDB directory (leveldb backend)")
	flags.StringVar(&opts.Backend, "backend", defaults.StoreBackend, "state backend (sqlite|leveldb)")
	flags.StringVar(&opts.Owner, "owner", defaults.OwnerID, "owning system id")
	flags.StringVar(&opts.Caller, "caller", "passvaultctl", "caller id that receives refunds")
	flags.StringVar(&opts.Codec, "codec", defaults.Codec, "credential codec (base64|aesgcm); aesgcm reads PASSVAULT_SECRET")
	flags.StringVar(&opts.ByteCost, "byte-cost", defaults.StorageByteCost, "price of one byte of state")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "log storage engine activity to stderr")

	// Add subcommands
	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newRemoveCommand(opts))
	cmd.AddCommand(newCountCommand(opts))
	cmd.AddCommand(newTransfersCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))

	return cmd
}

// Run executes passvaultctl with args and returns the process exit code.
// Errors are written in the selected format: JSON to stdout, text to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr}
	if !slices.Contains(ValidFormats, opts.Format) {
		formatter.Format = "text"
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		exitErr = usageError(err.Error(), nil)
	}
	_ = formatter.Error(exitErr.Kind, exitErr.Error(), exitErr.Details)
	return exitErr.Code
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
	}
}
