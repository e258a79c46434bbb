package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"budgetsync/internal/core"
	"budgetsync/internal/export"
	"budgetsync/internal/snapshot"
)

// readRawFile parses a JSON document without interpreting it; "-" reads
// stdin.
func readRawFile(cmd *cobra.Command, path string) (snapshot.Raw, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	raw, err := export.Import(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raw, nil
}

func readSnapshotFile(cmd *cobra.Command, env *commandEnv, path string) (core.Snapshot, error) {
	raw, err := readRawFile(cmd, path)
	if err != nil {
		return core.Snapshot{}, err
	}
	return snapshot.Normalize(raw, env.now()), nil
}

func newNormalizeCmd(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <file>",
		Short: "Print the canonical form of a snapshot document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshotFile(cmd, env, args[0])
			if err != nil {
				return err
			}
			return export.JSON(cmd.OutOrStdout(), snap)
		},
	}
}

func newMergeCmd(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <local> <remote>",
		Short: "Reconcile two snapshot documents and print the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := readSnapshotFile(cmd, env, args[0])
			if err != nil {
				return err
			}
			remote, err := readSnapshotFile(cmd, env, args[1])
			if err != nil {
				return err
			}
			return export.JSON(cmd.OutOrStdout(), snapshot.Merge(local, remote))
		},
	}
}

func newDeriveCmd(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "derive <file>",
		Short: "Recompute wealth metrics and insights for a snapshot document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshotFile(cmd, env, args[0])
			if err != nil {
				return err
			}
			metrics, insights := snapshot.Derive(snap, env.now())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				WealthMetrics core.WealthMetrics `json:"wealthMetrics"`
				Insights      []core.Insight     `json:"insights"`
			}{metrics, insights})
		},
	}
}
