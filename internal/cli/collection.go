package cli

import (
	"context"
	"fmt"
	"io"
	"labcore/pkg/domain"
	"strings"

	"github.com/spf13/cobra"
)

func newCollectionCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"collections"},
		Short:   "Manage collections, projects and their nesting",
	}
	cmd.AddCommand(
		newCollectionCreateCommand(opts),
		newCollectionGetCommand(opts),
		newCollectionListCommand(opts),
		newCollectionDeleteCommand(opts),
		newCollectionNestCommand(opts, true),
		newCollectionNestCommand(opts, false),
	)
	return cmd
}

func printCollection(w io.Writer, c domain.Collection) {
	fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Type, c.Name)
	if len(c.Entities) > 0 {
		fmt.Fprintf(w, "  entities: %s\n", strings.Join(c.Entities, ", "))
	}
	if len(c.Collections) > 0 {
		fmt.Fprintf(w, "  collections: %s\n", strings.Join(c.Collections, ", "))
	}
}

func newCollectionCreateCommand(opts *RootOptions) *cobra.Command {
	var in domain.NewCollection
	var kind string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a collection and link its member entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Type = domain.CollectionType(kind)
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.CreateCollection(ctx, in)
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "collection name")
	cmd.Flags().StringVar(&kind, "type", string(domain.CollectionTypeCollection), "collection or project")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Owner, "owner", "", "owner (defaults to --actor)")
	cmd.Flags().StringSliceVar(&in.Entities, "entity", nil, "member entity id (repeatable)")
	cmd.Flags().StringSliceVar(&in.Collections, "child", nil, "child collection id (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newCollectionGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				c, ok, err := a.resolvers.Collection(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return NewExitError(ExitFailure, "Collection not found")
				}
				return newPrinter(opts, cmd.OutOrStdout()).value(c, func(w io.Writer) { printCollection(w, c) })
			})
		},
	}
}

func newCollectionListCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				collections, err := a.resolvers.Collections(ctx, limit)
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).value(collections, func(w io.Writer) {
					for _, c := range collections {
						printCollection(w, c)
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of collections (0 lists all)")
	return cmd
}

func newCollectionDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a collection; members and parents drop their references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.DeleteCollection(ctx, args[0])
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
}

// newCollectionNestCommand builds add-child, or remove-child when add is false.
func newCollectionNestCommand(opts *RootOptions, add bool) *cobra.Command {
	use, short := "add-child <parent> <child>", "Nest a collection under another"
	if !add {
		use, short = "remove-child <parent> <child>", "Remove a nested collection"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				nest := a.resolvers.AddCollectionChild
				if !add {
					nest = a.resolvers.RemoveCollectionChild
				}
				res, err := nest(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
}
