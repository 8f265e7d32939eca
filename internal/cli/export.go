package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"labcore/internal/adapters/export"
	"labcore/pkg/domain"

	"github.com/spf13/cobra"
)

func newExportCommand(opts *RootOptions) *cobra.Command {
	var format string
	var fields []string
	var publish bool
	cmd := &cobra.Command{
		Use:   "export <entity-id>",
		Short: "Render an entity as JSON or CSV",
		Long: `Render an entity as JSON or CSV.

Without --publish the document is written to stdout. With --publish it is
stored in the blob store under exports/ and the artifact description,
including a download URL when the driver can sign one, is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --format", err)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if !publish {
					res, err := a.resolvers.ExportEntity(ctx, args[0], string(f), fields)
					if err != nil {
						return err
					}
					if !res.Success {
						return newPrinter(opts, cmd.ErrOrStderr()).response(res)
					}
					_, err = io.WriteString(cmd.OutOrStdout(), res.Data.(string))
					return err
				}
				art, err := export.New(a.svc, export.WithBlobStore(a.blobs)).Publish(ctx, args[0], f, fields)
				switch {
				case errors.Is(err, domain.ErrNotFound):
					return WrapExitError(ExitFailure, "Entity not found", err)
				case errors.Is(err, domain.ErrInvalid):
					return WrapExitError(ExitCommandError, "Unable to export Entity", err)
				case err != nil:
					return err
				}
				return newPrinter(opts, cmd.OutOrStdout()).value(art, func(w io.Writer) {
					fmt.Fprintf(w, "%s\t%d bytes\n", art.Key, art.SizeBytes)
					if art.URL != "" {
						fmt.Fprintln(w, art.URL)
					}
				})
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or csv")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "fields to include (default: all but attachments)")
	cmd.Flags().BoolVar(&publish, "publish", false, "store the export in the blob store")
	return cmd
}
