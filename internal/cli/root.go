package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// OpenFunc builds the App a command runs against. Commands that only read
// files never call it.
type OpenFunc func(ctx context.Context) (*App, error)

type commandEnv struct {
	open OpenFunc
	now  func() time.Time
}

// withApp opens the App, runs fn and closes it again.
func (e *commandEnv) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

// NewRootCmd creates the top-level "budgetctl" command and registers all
// subcommands.
func NewRootCmd(open OpenFunc) *cobra.Command {
	env := &commandEnv{open: open, now: time.Now}

	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Inspect, reconcile and edit budget snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newNormalizeCmd(env),
		newMergeCmd(env),
		newDeriveCmd(env),
		newImportCmd(env),
		newExportCmd(env),
		newSyncCmd(env),
		newTxCmd(env),
		newRecurringCmd(env),
		newQueueCmd(env),
	)
	return root
}
