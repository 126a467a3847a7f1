package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// TransferView is the CLI representation of a ledger transfer.
type TransferView struct {
	ID        int64  `json:"id"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
	AccountID uint64 `json:"account_id"`
	CreatedAt string `json:"created_at"`
}

// AuditView is the CLI representation of an integrity audit.
type AuditView struct {
	OK       bool     `json:"ok"`
	Users    int      `json:"users"`
	Accounts int      `json:"accounts"`
	Counter  uint64   `json:"counter"`
	Problems []string `json:"problems"`
}

func newTransfersCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transfers [recipient]",
		Short: "Show refund history, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient := ""
			if len(args) == 1 {
				recipient = args[0]
			}

			return withVault(opts, cmd, func(ctx context.Context, v *vault) error {
				transfers, err := v.ledger.List(ctx, recipient)
				if err != nil {
					return domainError("transfers", err)
				}

				views := make([]TransferView, 0, len(transfers))
				var b strings.Builder
				for _, t := range transfers {
					view := TransferView{
						ID:        t.ID,
						Recipient: t.Recipient,
						Amount:    t.Amount.Dec(),
						Reason:    string(t.Reason),
						AccountID: uint64(t.AccountID),
						CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
					}
					views = append(views, view)
					fmt.Fprintf(&b, "%d %s %s %s account=%d %s\n",
						view.ID, view.CreatedAt, view.Recipient, view.Amount, view.AccountID, view.Reason)
				}
				return newFormatter(opts, cmd).Success(views, b.String())
			})
		},
	}
}

func newVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check referential integrity between accounts and the user index",
		Long: `Walk the account table and the user index and report every record that
is missing, unindexed, indexed twice, owned by another user or above the
id counter. Exits 1 when any problem is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withVault(opts, cmd, func(ctx context.Context, v *vault) error {
				report, err := v.manager.Audit(ctx)
				if err != nil {
					return domainError("verify", err)
				}

				view := AuditView{
					OK:       report.OK(),
					Users:    report.Users,
					Accounts: report.Accounts,
					Counter:  report.Counter,
					Problems: report.Problems,
				}
				if view.Problems == nil {
					view.Problems = []string{}
				}

				if !report.OK() {
					if opts.Format != "json" {
						for _, p := range report.Problems {
							fmt.Fprintln(cmd.OutOrStdout(), p)
						}
					}
					return &ExitError{
						Code:    ExitFailure,
						Kind:    "integrity",
						Message: fmt.Sprintf("%d integrity problem(s)", len(report.Problems)),
						Details: view,
					}
				}

				text := fmt.Sprintf("ok: %d users, %d accounts, counter %d\n", view.Users, view.Accounts, view.Counter)
				return newFormatter(opts, cmd).Success(view, text)
			})
		},
	}
}
