package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"labcore/internal/resolvers"
	"labcore/pkg/domain"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newEntityCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entity",
		Aliases: []string{"entities"},
		Short:   "Create, link and inspect entities",
	}
	cmd.AddCommand(
		newEntityCreateCommand(opts),
		newEntityGetCommand(opts),
		newEntityListCommand(opts),
		newEntityUpdateCommand(opts),
		newEntityDeleteCommand(opts),
		newEntityLinkCommand(opts),
		newEntityUnlinkCommand(opts),
		newEntityJoinCommand(opts),
		newEntityLeaveCommand(opts),
		newEntityAddAttributeCommand(opts),
		newEntityRemoveAttributeCommand(opts),
		newEntityAttachCommand(opts),
		newEntityDetachCommand(opts),
		newEntityDownloadCommand(opts),
	)
	return cmd
}

func printEntity(w io.Writer, e domain.Entity) {
	fmt.Fprintf(w, "%s\t%s\n", e.ID, e.Name)
	if e.Description != "" {
		fmt.Fprintf(w, "  description: %s\n", e.Description)
	}
	list := func(label string, refs []domain.Reference) {
		if len(refs) == 0 {
			return
		}
		ids := make([]string, len(refs))
		for i, r := range refs {
			ids[i] = r.ID
		}
		fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(ids, ", "))
	}
	list("origins", e.Associations.Origins)
	list("products", e.Associations.Products)
	if len(e.Collections) > 0 {
		fmt.Fprintf(w, "  collections: %s\n", strings.Join(e.Collections, ", "))
	}
	for _, a := range e.Attributes {
		fmt.Fprintf(w, "  attribute %s: %s (%d values)\n", a.ID, a.Name, len(a.Values))
	}
	list("attachments", e.Attachments)
}

func newEntityCreateCommand(opts *RootOptions) *cobra.Command {
	var in domain.NewEntity
	var origins, products []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an entity and link it to its origins, products and collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Associations = domain.Associations{Origins: references(origins), Products: references(products)}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.CreateEntity(ctx, in)
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "entity name")
	cmd.Flags().StringVar(&in.Description, "description", "", "entity description")
	cmd.Flags().StringVar(&in.Owner, "owner", "", "owner (defaults to --actor)")
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "origin entity id (repeatable)")
	cmd.Flags().StringSliceVar(&products, "product", nil, "product entity id (repeatable)")
	cmd.Flags().StringSliceVar(&in.Collections, "collection", nil, "collection id (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newEntityGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				e, ok, err := a.resolvers.Entity(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return NewExitError(ExitFailure, "Entity not found")
				}
				return newPrinter(opts, cmd.OutOrStdout()).value(e, func(w io.Writer) { printEntity(w, e) })
			})
		},
	}
}

func newEntityListCommand(opts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				entities, err := a.resolvers.Entities(ctx, limit)
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).value(entities, func(w io.Writer) {
					for _, e := range entities {
						fmt.Fprintf(w, "%s\t%s\n", e.ID, e.Name)
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entities (0 lists all)")
	return cmd
}

func newEntityUpdateCommand(opts *RootOptions) *cobra.Command {
	var name, description string
	var origins, products, collections []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of an entity; list flags replace the whole list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				desired, ok, err := a.resolvers.Entity(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return NewExitError(ExitFailure, "Entity not found")
				}
				if flags.Changed("name") {
					desired.Name = name
				}
				if flags.Changed("description") {
					desired.Description = description
				}
				if flags.Changed("origin") {
					desired.Associations.Origins = references(origins)
				}
				if flags.Changed("product") {
					desired.Associations.Products = references(products)
				}
				if flags.Changed("collection") {
					desired.Collections = collections
				}
				res, err := a.resolvers.UpdateEntity(ctx, desired)
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "complete list of origin ids")
	cmd.Flags().StringSliceVar(&products, "product", nil, "complete list of product ids")
	cmd.Flags().StringSliceVar(&collections, "collection", nil, "complete list of collection ids")
	return cmd
}

func newEntityDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entity and remove every reference to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.DeleteEntity(ctx, args[0])
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
}

// linkFlags are the --origin and --product lists of link and unlink.
type linkFlags struct {
	origins, products []string
}

func (f *linkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.origins, "origin", nil, "origin entity id (repeatable)")
	cmd.Flags().StringSliceVar(&f.products, "product", nil, "product entity id (repeatable)")
}

func (f *linkFlags) empty() bool { return len(f.origins) == 0 && len(f.products) == 0 }

func newEntityLinkCommand(opts *RootOptions) *cobra.Command {
	var f linkFlags
	cmd := &cobra.Command{
		Use:   "link <id>",
		Short: "Add origins or products to an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.empty() {
				return NewExitError(ExitCommandError, "link needs --origin or --product")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				p := newPrinter(opts, cmd.OutOrStdout())
				if len(f.origins) > 0 {
					res, err := a.resolvers.AddEntityOrigins(ctx, args[0], references(f.origins))
					if err != nil {
						return err
					}
					if err := p.response(res); err != nil {
						return err
					}
				}
				if len(f.products) > 0 {
					res, err := a.resolvers.AddEntityProducts(ctx, args[0], references(f.products))
					if err != nil {
						return err
					}
					return p.response(res)
				}
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newEntityUnlinkCommand(opts *RootOptions) *cobra.Command {
	var f linkFlags
	cmd := &cobra.Command{
		Use:   "unlink <id>",
		Short: "Remove origins or products from an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.empty() {
				return NewExitError(ExitCommandError, "unlink needs --origin or --product")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				p := newPrinter(opts, cmd.OutOrStdout())
				type removal struct {
					id     string
					remove func(context.Context, string, domain.Reference) (resolvers.Response, error)
				}
				var removals []removal
				for _, id := range f.origins {
					removals = append(removals, removal{id, a.resolvers.RemoveEntityOrigin})
				}
				for _, id := range f.products {
					removals = append(removals, removal{id, a.resolvers.RemoveEntityProduct})
				}
				for _, r := range removals {
					res, err := r.remove(ctx, args[0], domain.Reference{ID: r.id})
					if err != nil {
						return err
					}
					if err := p.response(res); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newEntityJoinCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <id> <collection>",
		Short: "Add an entity to a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.AddEntityCollection(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
}

func newEntityLeaveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "leave <id> <collection>",
		Short: "Remove an entity from a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.RemoveEntityCollection(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
}

func newEntityAddAttributeCommand(opts *RootOptions) *cobra.Command {
	var attr domain.Attribute
	var values []string
	cmd := &cobra.Command{
		Use:   "add-attribute <id>",
		Short: "Attach an attribute to an entity",
		Long: `Attach an attribute to an entity.

Values are given as name=type:data where type is one of number, text, url,
date, entity or select. Select options are separated by "|" and the first is
selected, e.g. --value "dye=select:SYBR|FAM".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseValues(values)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --value", err)
			}
			attr.Values = parsed
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.AddEntityAttribute(ctx, args[0], attr)
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
	cmd.Flags().StringVar(&attr.Name, "name", "", "attribute name")
	cmd.Flags().StringVar(&attr.Description, "description", "", "attribute description")
	cmd.Flags().StringArrayVar(&values, "value", nil, "value as name=type:data (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newEntityRemoveAttributeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-attribute <id> <attribute-id>",
		Short: "Remove an attribute from an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.RemoveEntityAttribute(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
}

func newEntityAttachCommand(opts *RootOptions) *cobra.Command {
	var contentType, filename string
	cmd := &cobra.Command{
		Use:   "attach <id> <file>",
		Short: "Upload a file and attach it to an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1]) // #nosec G304 -- operator supplied upload path
			if err != nil {
				return WrapExitError(ExitCommandError, "open attachment", err)
			}
			defer f.Close()
			if filename == "" {
				filename = filepath.Base(args[1])
			}
			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(filename))
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.UploadEntityAttachment(ctx, args[0], filename, contentType, f)
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "MIME type (guessed from the extension when empty)")
	cmd.Flags().StringVar(&filename, "filename", "", "stored file name (defaults to the base name)")
	return cmd
}

func newEntityDetachCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <id> <attachment-id>",
		Short: "Remove an attachment and its stored file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.resolvers.RemoveEntityAttachment(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).response(res)
			})
		},
	}
}

func newEntityDownloadCommand(opts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <id> <attachment-id>",
		Short: "Write an attachment to a file or stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				_, body, err := a.svc.OpenAttachment(ctx, args[0], args[1])
				if errors.Is(err, domain.ErrNotFound) {
					return WrapExitError(ExitFailure, "Attachment not found", err)
				}
				if err != nil {
					return err
				}
				defer body.Close()
				var w io.Writer = cmd.OutOrStdout()
				if out != "" && out != "-" {
					f, err := os.Create(out) // #nosec G304 -- operator supplied output path
					if err != nil {
						return WrapExitError(ExitCommandError, "create output", err)
					}
					defer f.Close()
					w = f
				}
				_, err = io.Copy(w, body)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&out, "out", "-", "output path; - writes to stdout")
	return cmd
}
