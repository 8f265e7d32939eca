package cli

import (
	"context"
	"fmt"
	"io"
	"labcore/pkg/domain"

	"github.com/spf13/cobra"
)

func newAttributeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "attribute",
		Aliases: []string{"attributes"},
		Short:   "Manage attribute templates",
	}
	cmd.AddCommand(
		newAttributeCreateCommand(opts),
		newAttributeListCommand(opts),
		newAttributeArchiveCommand(opts),
	)
	return cmd
}

func newAttributeCreateCommand(opts *RootOptions) *cobra.Command {
	var attr domain.Attribute
	var values []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an attribute template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseValues(values)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --value", err)
			}
			attr.Values = parsed
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.CreateAttribute(ctx, attr)
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
	cmd.Flags().StringVar(&attr.Name, "name", "", "template name")
	cmd.Flags().StringVar(&attr.Description, "description", "", "template description")
	cmd.Flags().StringArrayVar(&values, "value", nil, "value as name=type:data (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newAttributeListCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List attribute templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				attrs, err := a.resolvers.Attributes(ctx, limit)
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).value(attrs, func(w io.Writer) {
					for _, attr := range attrs {
						state := ""
						if attr.Archived {
							state = " (archived)"
						}
						fmt.Fprintf(w, "%s\t%s%s\n", attr.ID, attr.Name, state)
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of templates (0 lists all)")
	return cmd
}

func newAttributeArchiveCommand(opts *RootOptions) *cobra.Command {
	var restore bool
	cmd := &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive, or with --restore un-archive, a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.ArchiveAttribute(ctx, args[0], !restore)
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
	cmd.Flags().BoolVar(&restore, "restore", false, "clear the archived flag")
	return cmd
}
