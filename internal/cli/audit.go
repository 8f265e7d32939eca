package cli

import (
	"context"
	"fmt"
	"io"
	"labcore/pkg/domain"

	"github.com/spf13/cobra"
)

func printViolations(w io.Writer, violations []domain.Violation) {
	for _, v := range violations {
		fmt.Fprintf(w, "%s\t%s\t%s/%s", v.Severity, v.Rule, v.Kind, v.ID)
		if v.TargetID != "" {
			fmt.Fprintf(w, " %s -> %s", v.Relation, v.TargetID)
		}
		fmt.Fprintf(w, "\t%s\n", v.Message)
	}
}

func newAuditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check link symmetry, collection nesting and attribute ids",
		Long: `Evaluate the integrity rules over every stored entity and collection.

Exits 1 when any violation is found; "repair" heals the warn level ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.svc.Audit(ctx)
				if err != nil {
					return err
				}
				violations := res.Violations
				if violations == nil {
					violations = []domain.Violation{}
				}
				err = newPrinter(opts, cmd.OutOrStdout()).value(violations, func(w io.Writer) {
					if len(violations) == 0 {
						fmt.Fprintln(w, "no violations")
						return
					}
					printViolations(w, violations)
				})
				if err != nil {
					return err
				}
				if len(violations) > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%d violation(s) found", len(violations)))
				}
				return nil
			})
		},
	}
}
