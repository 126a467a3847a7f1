package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/passvault/internal/domain/model"
)

// ReceiptView is the CLI representation of a mutation receipt.
type ReceiptView struct {
	AccountID    uint64 `json:"account_id"`
	Created      bool   `json:"created"`
	StorageDelta int64  `json:"storage_delta"`
	Cost         string `json:"cost"`
	Refund       string `json:"refund"`
}

func toReceiptView(r model.Receipt) ReceiptView {
	return ReceiptView{
		AccountID:    uint64(r.AccountID),
		Created:      r.Created,
		StorageDelta: r.StorageDelta,
		Cost:         r.Cost.Dec(),
		Refund:       r.Refund.Dec(),
	}
}

// CountView is the CLI representation of the user count.
type CountView struct {
	Count int `json:"count"`
}

func newAddCommand(opts *RootOptions) *cobra.Command {
	var deposit string

	cmd := &cobra.Command{
		Use:   "add <user> <website> <username> <password>",
		Short: "Store or update a credential",
		Long: `Store the credential for (user, website), or update it if one exists.

The deposit must cover the bytes the call adds to the store. Any surplus
is refunded to --caller.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			call := model.Call{Predecessor: opts.Caller}
			if deposit != "" {
				amount, err := uint256.FromDecimal(deposit)
				if err != nil {
					return usageError("invalid --deposit: expected a decimal amount", err)
				}
				call.Deposit.Set(amount)
			}

			return withVault(opts, cmd, func(ctx context.Context, v *vault) error {
				receipt, err := v.manager.Add(ctx, call, model.UserID(args[0]), args[1], args[2], args[3])
				if err != nil {
					return domainError("add", err)
				}

				verb := "updated"
				if receipt.Created {
					verb = "stored"
				}
				text := fmt.Sprintf("%s account %d (%+d bytes, cost %s, refund %s)\n",
					verb, receipt.AccountID, receipt.StorageDelta, receipt.Cost.Dec(), receipt.Refund.Dec())
				return newFormatter(opts, cmd).Success(toReceiptView(receipt), text)
			})
		},
	}

	cmd.Flags().StringVar(&deposit, "deposit", "", "amount attached to pay for storage")

	return cmd
}

func newGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <user> <website>",
		Short: "Show the credential for a website",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(opts, cmd, func(ctx context.Context, v *vault) error {
				account, err := v.manager.GetOne(ctx, model.UserID(args[0]), args[1])
				if err != nil {
					return domainError("get", err)
				}
				if account == nil {
					return newFormatter(opts, cmd).Success(account, fmt.Sprintf("no account for %s\n", args[1]))
				}
				return newFormatter(opts, cmd).Success(account, formatAccount(*account))
			})
		},
	}
}

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <user>",
		Short: "List every credential of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(opts, cmd, func(ctx context.Context, v *vault) error {
				accounts, err := v.manager.List(ctx, model.UserID(args[0]))
				if err != nil {
					return domainError("list", err)
				}
				return newFormatter(opts, cmd).Success(accounts, formatAccountTable(accounts))
			})
		},
	}
}

func newRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user> <id>",
		Short: "Delete a credential and refund its storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return usageError(fmt.Sprintf("invalid account id %q", args[1]), err)
			}

			return withVault(opts, cmd, func(ctx context.Context, v *vault) error {
				receipt, err := v.manager.Remove(ctx, model.Call{Predecessor: opts.Caller}, model.UserID(args[0]), model.AccountID(id))
				if err != nil {
					return domainError("remove", err)
				}
				text := fmt.Sprintf("removed account %d (%+d bytes, refund %s)\n",
					receipt.AccountID, receipt.StorageDelta, receipt.Refund.Dec())
				return newFormatter(opts, cmd).Success(toReceiptView(receipt), text)
			})
		},
	}
}

func newCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count users that hold at least one credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withVault(opts, cmd, func(ctx context.Context, v *vault) error {
				n, err := v.manager.Count(ctx)
				if err != nil {
					return domainError("count", err)
				}
				return newFormatter(opts, cmd).Success(CountView{Count: n}, fmt.Sprintf("%d\n", n))
			})
		},
	}
}

func formatAccount(a model.Account) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id:       %d\n", a.ID)
	fmt.Fprintf(&b, "user:     %s\n", a.UserID)
	fmt.Fprintf(&b, "website:  %s\n", a.Website)
	fmt.Fprintf(&b, "username: %s\n", a.Username)
	fmt.Fprintf(&b, "password: %s\n", a.Password)
	return b.String()
}

func formatAccountTable(accounts []model.Account) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWEBSITE\tUSERNAME\tPASSWORD")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", a.ID, a.Website, a.Username, a.Password)
	}
	_ = tw.Flush()
	return b.String()
}
