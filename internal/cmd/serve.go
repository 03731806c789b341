package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the compiler and keep it in sync with the workspace",
	Long: `Serve starts the Flix compiler, sends it every source, package and jar
in the workspace, and then watches the workspace so that added and removed
files reach the compiler as they happen. A crashed compiler is restarted
with backoff. Serve runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveWorkspace string
	serveStorage   string
)

func init() {
	serveCmd.Flags().StringVarP(&serveWorkspace, "workspace", "w", ".", "workspace root to discover and watch")
	serveCmd.Flags().StringVar(&serveStorage, "storage", "", "compiler storage directory (overrides compiler.storage_path)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cmd, serveWorkspace, serveStorage)
}

// serve blocks until ctx is done.
func serve(ctx context.Context, cmd *cobra.Command, workspace, storage string) error {
	rt, err := startRuntime(ctx, workspace, storage)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.bus.SubscribeAll(func(e event.Event) {
		rt.logger.Debug("event", "type", e.EventType())
	})

	w, err := watcher.New(workspace, rt.bridge, watcherOptions(rt.cfg, rt.logger, rt.bus)...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Stop()
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "compiler ready at %s, watching %s\n", rt.bridge.Address(), w.Root())
	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
	return nil
}
