package cli

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/marusama/semaphore/v2"
	"github.com/spf13/cobra"

	"github.com/microsoft/durablefunctions-go/backend"
	"github.com/microsoft/durablefunctions-go/internal/helpers"
)

// InspectResult is what inspect reports for one payload file.
type InspectResult struct {
	File       string
	InstanceID string
	Events     int
	Summary    string
	Err        error
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Summarize orchestration request payloads",
		Long: `Parse replay envelopes as the host sends them and print the instance ID,
the number of history events and a one-line summary of the history.

The command fails on the first payload, in argument order, that can't be parsed.

Examples:
  durabletask inspect request.json
  durabletask inspect -p 8 payloads/*.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := InspectFiles(cmd.Context(), args, rootOpts.Parallelism)
			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.Err != nil {
					return fmt.Errorf("%s: %w", r.File, r.Err)
				}
				fmt.Fprintf(out, "%s\t%s\t%d events\t%s\n", r.File, r.InstanceID, r.Events, r.Summary)
			}
			return nil
		},
	}
}

// InspectFiles parses the files with at most parallelism reads in flight. Results are in the
// order of files.
func InspectFiles(ctx context.Context, files []string, parallelism int) []InspectResult {
	results := make([]InspectResult, len(files))
	sem := semaphore.New(parallelism)
	var wg sync.WaitGroup
	for i, file := range files {
		results[i].File = file
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Err = err
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			inspectFile(&results[i])
		}()
	}
	wg.Wait()
	return results
}

func inspectFile(r *InspectResult) {
	payload, err := os.ReadFile(r.File)
	if err != nil {
		r.Err = err
		return
	}
	req, err := backend.ParseOrchestrationRequest(payload)
	if err != nil {
		r.Err = err
		return
	}
	r.InstanceID = string(req.InstanceID)
	r.Events = len(req.History)
	r.Summary = helpers.HistoryListSummary(req.History)
}
