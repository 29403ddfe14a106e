// Package cli implements the durabletask command line, a toolbox for debugging the payloads
// exchanged with the host and for running the samples on the in-memory host.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/microsoft/durablefunctions-go/backend"
)

// Config is the content of the --config file. Flags that are set explicitly take precedence.
type Config struct {
	Parallelism int    `yaml:"parallelism"`
	Verbose     bool   `yaml:"verbose"`
	Zipkin      string `yaml:"zipkin"`
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Config
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// NewRootCommand creates the root command of the durabletask CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: Config{Parallelism: 4}}
	var shutdownTracing func(context.Context) error

	cmd := &cobra.Command{
		Use:   "durabletask",
		Short: "Inspect orchestration payloads and run sample orchestrations",
		Long: `Tools for the durable orchestration replay engine.

Inspect the replay envelopes a host sends, decode the out-of-proc error strings it
gets back, and run the bundled samples on an in-memory host.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.applyConfigFile(cmd); err != nil {
				return err
			}
			if opts.Parallelism < 1 {
				return fmt.Errorf("invalid parallelism %d: must be at least 1", opts.Parallelism)
			}
			if opts.Zipkin != "" {
				shutdown, err := ConfigureZipkinTracing(opts.Zipkin)
				if err != nil {
					return err
				}
				shutdownTracing = shutdown
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdownTracing == nil {
				return nil
			}
			return shutdownTracing(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log debug messages")
	cmd.PersistentFlags().IntVarP(&opts.Parallelism, "parallelism", "p", opts.Parallelism, "how many payloads or activities to process at once")
	cmd.PersistentFlags().StringVar(&opts.Zipkin, "zipkin", "", "export replay spans to this Zipkin endpoint, e.g. http://localhost:9411/api/v2/spans")

	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewDecodeErrorCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

// applyConfigFile loads --config and copies its values into every option whose flag wasn't set.
func (opts *RootOptions) applyConfigFile(cmd *cobra.Command) error {
	if opts.ConfigFile == "" {
		return nil
	}
	cfg, err := LoadConfig(opts.ConfigFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if !flags.Changed("verbose") {
		opts.Verbose = cfg.Verbose
	}
	if !flags.Changed("parallelism") && cfg.Parallelism != 0 {
		opts.Parallelism = cfg.Parallelism
	}
	if !flags.Changed("zipkin") && cfg.Zipkin != "" {
		opts.Zipkin = cfg.Zipkin
	}
	return nil
}

func (opts *RootOptions) logger(cmd *cobra.Command) backend.Logger {
	return backend.NewLogger(cmd.ErrOrStderr(), opts.Verbose)
}
