package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/microsoft/durablefunctions-go/samples"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	WallClock bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [SAMPLE]",
		Short: "Run a sample orchestration on the in-memory host",
		Long: `Run one of the bundled samples to completion and print the final status of
the instance. Without an argument, list the samples.

Timers run on a virtual clock unless --wall-clock is set.

Examples:
  durabletask run
  durabletask run parallel -v
  durabletask run external-events-timeout --wall-clock`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, s := range samples.All() {
					fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Description)
				}
				return tw.Flush()
			}

			s, ok := samples.Find(args[0])
			if !ok {
				return fmt.Errorf("no sample named '%s'; run without arguments to list them", args[0])
			}
			md, err := samples.Run(cmd.Context(), s, samples.Options{
				Logger:      opts.logger(cmd),
				Parallelism: opts.Parallelism,
				Wall:        opts.WallClock,
			})
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(md, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.WallClock, "wall-clock", false, "run timers in real time")
	return cmd
}
