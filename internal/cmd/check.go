package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/render"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Type check the workspace once and print the diagnostics",
	Long: `Check starts the compiler, adds every source, package and jar found in
the workspace, asks for a full check and prints the diagnostics grouped by
file. The command fails when the compiler reports at least one error.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

var (
	checkWorkspace string
	checkStorage   string
	checkJSON      bool
	checkTimeout   time.Duration
)

func init() {
	checkCmd.Flags().StringVarP(&checkWorkspace, "workspace", "w", ".", "workspace root to check")
	checkCmd.Flags().StringVar(&checkStorage, "storage", "", "compiler storage directory (overrides compiler.storage_path)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the raw compiler result as JSON")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 0, "bound for the check request (default requests.timeout)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := startRuntime(ctx, checkWorkspace, checkStorage)
	if err != nil {
		return err
	}
	defer rt.Close()

	if checkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, checkTimeout)
		defer cancel()
	}
	res, err := rt.bridge.Request(ctx, job.KindCheck, nil)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	reporter := render.NewReporter(cmd.OutOrStdout(), render.TerminalWidth(os.Stdout))
	if checkJSON {
		return reporter.JSON(res.Data)
	}
	if !res.OK() {
		_ = reporter.JSON(res.Data)
		return fmt.Errorf("compiler reported failure for %s", job.KindCheck)
	}
	errCount, err := reporter.Check(res.Data)
	if err != nil {
		return err
	}
	if errCount > 0 {
		return fmt.Errorf("%d error(s) found", errCount)
	}
	return nil
}
