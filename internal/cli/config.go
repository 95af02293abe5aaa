package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/scaffolding/internal/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and show configuration",
		Long: `Validate a YAML config file against the embedded schema, or show the
effective configuration with defaults applied.

Example:
  scaffold config validate ./scaffold.yaml
  scaffold config show --config ./scaffold.yaml`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Check a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			if _, err := config.Load(args[0]); err != nil {
				return out.Fail(ExitFailure, "config invalid", err)
			}
			return out.Success(configValid{Path: args[0], Valid: true})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return out.Fail(ExitCommandError, "failed to load config", err)
			}
			return out.Success(effectiveConfig{cfg})
		},
	})

	return cmd
}

type configValid struct {
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
}

func (c configValid) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s: valid\n", c.Path)
	return err
}

type effectiveConfig struct {
	config.Config
}

func (c effectiveConfig) WriteText(w io.Writer) error {
	b, err := c.YAML()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
