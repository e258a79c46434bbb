package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"budgetsync/internal/core"
	"budgetsync/internal/export"
	"budgetsync/internal/services"
)

func newImportCmd(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the local snapshot with a document of any supported shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readRawFile(cmd, args[0])
			if err != nil {
				return err
			}
			return env.withApp(cmd, func(ctx context.Context, app *App) error {
				imported, err := app.Ledger.Import(ctx, raw)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d accounts, %d transactions (revision %d)\n",
					len(imported.Accounts), len(imported.Transactions), imported.Revision)
				return nil
			})
		},
	}
}

func newExportCmd(env *commandEnv) *cobra.Command {
	var format, ruleID, output string
	var record bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the local snapshot as JSON or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !export.IsFormat(format) {
				return fmt.Errorf("unsupported format %q (use json or csv)", format)
			}
			return env.withApp(cmd, func(ctx context.Context, app *App) error {
				snap, err := app.Ledger.Snapshot(ctx)
				if err != nil {
					return err
				}
				filter, err := export.RuleFilter(snap, ruleID, format)
				if err != nil {
					return err
				}

				var buf bytes.Buffer
				count, err := export.Write(&buf, format, snap, filter)
				if err != nil {
					return err
				}
				fileName := export.FileName(format, env.now())
				if output == "" {
					_, err = cmd.OutOrStdout().Write(buf.Bytes())
				} else {
					fileName = output
					err = os.WriteFile(output, buf.Bytes(), 0o600)
				}
				if err != nil {
					return fmt.Errorf("write export: %w", err)
				}

				if record {
					_, err := app.Ledger.RecordExport(ctx, core.ExportRecord{
						RuleID:    ruleID,
						Format:    format,
						FileName:  fileName,
						ItemCount: count,
					})
					return err
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", export.FormatJSON, "Output format: json or csv")
	cmd.Flags().StringVar(&ruleID, "rule", "", "Apply the filters of a smart export rule")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	cmd.Flags().BoolVar(&record, "record", false, "Append the export to the snapshot's history")
	return cmd
}

func newSyncCmd(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local snapshot with the configured remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withApp(cmd, func(ctx context.Context, app *App) error {
				result, err := app.Ledger.Sync(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced revision %d (remote found: %t, local changed: %t, pushed: %t)\n",
					result.Snapshot.Revision, result.RemoteFound, result.LocalChanged, result.Pushed)
				return nil
			})
		},
	}
}

func newTxCmd(env *commandEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Manage transactions",
	}
	cmd.AddCommand(newTxAddCmd(env), newTxRemoveCmd(env))
	return cmd
}

func newTxAddCmd(env *commandEnv) *cobra.Command {
	var tx core.Transaction
	var amount, txType string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := core.ParseAmount(amount)
			if err != nil {
				return fmt.Errorf("amount %q: %w", amount, err)
			}
			tx.Amount, _ = parsed.Float64()
			tx.Type = core.TransactionType(txType)
			if tx.Date == "" {
				tx.Date = env.now().UTC().Format("2006-01-02")
			}
			return env.withApp(cmd, func(ctx context.Context, app *App) error {
				saved, err := app.Ledger.SaveTransaction(ctx, tx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved transaction %s: %s %s on %s\n",
					saved.ID, saved.Type, core.FormatAmount(saved.Amount), saved.Date)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "Amount, e.g. 12.34 or 12,34 (required)")
	cmd.Flags().StringVar(&txType, "type", string(core.TransactionExpense), "expense, income or transfer")
	cmd.Flags().StringVar(&tx.Date, "date", "", "Date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&tx.Description, "description", "", "Description")
	cmd.Flags().StringVar(&tx.CategoryID, "category", "", "Category id")
	cmd.Flags().StringVar(&tx.AccountID, "account", "", "Account id")
	cmd.Flags().StringVar(&tx.ID, "id", "", "Transaction id (default generated)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newTxRemoveCmd(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withApp(cmd, func(ctx context.Context, app *App) error {
				if err := app.Ledger.DeleteTransaction(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted transaction %s\n", args[0])
				return nil
			})
		},
	}
}

func newRecurringCmd(env *commandEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Recurring expenses",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "post",
		Short: "Post every recurring expense that is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			return env.withApp(cmd, func(ctx context.Context, app *App) error {
				posted, err := services.NewRecurringProcessor(app.Ledger).ProcessDueExpenses(ctx, env.now())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Posted %d recurring transactions\n", posted)
				return nil
			})
		},
	})
	return cmd
}

func newQueueCmd(env *commandEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the sync outbox",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show sync queue counts by status",
			RunE: func(cmd *cobra.Command, args []string) error {
				return env.withApp(cmd, func(ctx context.Context, app *App) error {
					stats, err := app.Repo.GetSyncQueueStats(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "pending=%d processing=%d completed=%d failed=%d\n",
						stats.Pending, stats.Processing, stats.Completed, stats.Failed)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "retry",
			Short: "Move failed sync requests back to pending",
			RunE: func(cmd *cobra.Command, args []string) error {
				return env.withApp(cmd, func(ctx context.Context, app *App) error {
					return app.Repo.RetryFailedSyncs(ctx)
				})
			},
		},
	)
	return cmd
}

// IsUserError reports whether err comes from bad input rather than a
// failing dependency.
func IsUserError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidAmount, core.ErrInvalidDate, core.ErrEmptyName,
		core.ErrMissingID, core.ErrUnknownType, core.ErrTooLong, services.ErrNotFound,
		export.ErrRuleNotFound, export.ErrRuleDisabled, export.ErrRuleFormat,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
