package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/render"
)

var requestCmd = &cobra.Command{
	Use:   "request KIND",
	Short: "Send one request to the compiler and print the result",
	Long: `Request starts the compiler with the workspace loaded, sends a single job
of the given kind and prints the compiler's result as JSON.

Kinds:
  ` + kindList(),
	Args: cobra.ExactArgs(1),
	RunE: runRequest,
}

var (
	requestWorkspace string
	requestStorage   string
	requestPayload   string
)

func init() {
	requestCmd.Flags().StringVarP(&requestWorkspace, "workspace", "w", ".", "workspace root to load")
	requestCmd.Flags().StringVar(&requestStorage, "storage", "", "compiler storage directory (overrides compiler.storage_path)")
	requestCmd.Flags().StringVarP(&requestPayload, "payload", "p", "", "request payload as a JSON object")
	rootCmd.AddCommand(requestCmd)
}

func kindList() string {
	kinds := job.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, "\n  ")
}

// parsePayload accepts an empty string or a JSON object.
func parsePayload(raw string) (json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	if !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		return nil, fmt.Errorf("payload must be a JSON object")
	}
	return json.RawMessage(raw), nil
}

func runRequest(cmd *cobra.Command, args []string) error {
	kind, err := job.ParseKind(args[0])
	if err != nil {
		return err
	}
	payload, err := parsePayload(requestPayload)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := startRuntime(ctx, requestWorkspace, requestStorage)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.bridge.Request(ctx, kind, payload)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	reporter := render.NewReporter(cmd.OutOrStdout(), render.TerminalWidth(os.Stdout))
	if err := reporter.JSON(res.Data); err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("compiler reported failure for %s", kind)
	}
	return nil
}
