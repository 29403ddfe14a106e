package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/microsoft/durablefunctions-go/backend"
)

// NewDecodeErrorCommand creates the decode-error command.
func NewDecodeErrorCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decode-error [FILE]",
		Short: "Split an out-of-proc orchestration error into message and state",
		Long: `Read the error string of a failed orchestration, as the host received it, from
FILE or standard input. Print the error message and the orchestrator state that
follows the $OutOfProcData$ marker.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			rootOpts.logger(cmd).Debugf("decoding %d bytes", len(data))
			return DecodeError(cmd.OutOrStdout(), string(data))
		},
	}
}

// DecodeError writes the message and the indented state carried by an out-of-proc error string.
func DecodeError(w io.Writer, s string) error {
	oe, err := backend.ParseOrchestrationError(strings.TrimRight(s, "\r\n"))
	if err != nil {
		return err
	}
	var state bytes.Buffer
	if err := json.Indent(&state, oe.State, "", "  "); err != nil {
		return fmt.Errorf("failed to format orchestrator state: %w", err)
	}
	fmt.Fprintf(w, "message: %s\nstate:\n%s\n", oe.Message, state.String())
	return nil
}
