// Package cli implements the labcore command line.
package cli

import (
	"fmt"
	"labcore/internal/config"
	"os"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every command.
type RootOptions struct {
	ConfigPath string
	Actor      string
	Output     string // "json" | "text"

	// Lookup reads LABCORE_* overrides; nil uses the process environment.
	Lookup config.LookupFunc
}

// ValidOutputs lists the accepted --output values.
var ValidOutputs = []string{"json", "text"}

// NewRootCommand creates the labcore command tree reading the process
// environment.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{Lookup: os.LookupEnv})
}

// NewRootCommandWith creates the command tree around opts.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}
	cmd := &cobra.Command{
		Use:   "labcore",
		Short: "labcore - lab data association engine",
		Long: `Manage lab entities, collections and attribute templates.

Origin/product links and collection membership are kept bidirectional;
audit reports broken links and repair restores them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(ValidOutputs, opts.Output) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid output %q: must be one of %v", opts.Output, ValidOutputs))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "", "user recorded as owner and in the activity log")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "json", "output format (json|text)")

	cmd.AddCommand(newEntityCommand(opts))
	cmd.AddCommand(newCollectionCommand(opts))
	cmd.AddCommand(newAttributeCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))
	cmd.AddCommand(newRepairCommand(opts))
	return cmd
}
