package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/specialistvlad/esxigrid/internal/app"
	"github.com/specialistvlad/esxigrid/internal/engine"
	"github.com/specialistvlad/esxigrid/internal/graph"
	"github.com/specialistvlad/esxigrid/internal/state"
	"github.com/spf13/cobra"
)

type runFunc func(*app.App, context.Context) (*engine.Result, error)

// newRunCommand wires one engine run to a subcommand and prints its report.
func newRunCommand(opts *options, use, short string, run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, args, func(ctx context.Context, a *app.App) error {
				res, err := run(a, ctx)
				if res != nil {
					printResult(cmd.OutOrStdout(), res)
				}
				return err
			})
		},
	}
}

func newUpCommand(opts *options) *cobra.Command {
	return newRunCommand(opts, "up [PATH...]", "Create, update or delete resources to match the configuration", (*app.App).Up)
}

func newPreviewCommand(opts *options) *cobra.Command {
	return newRunCommand(opts, "preview [PATH...]", "Show what up would change without touching the host", (*app.App).Preview)
}

func newDestroyCommand(opts *options) *cobra.Command {
	return newRunCommand(opts, "destroy", "Delete every resource recorded in state", (*app.App).Destroy)
}

func newRefreshCommand(opts *options) *cobra.Command {
	return newRunCommand(opts, "refresh", "Read recorded resources back from the host", (*app.App).Refresh)
}

var graphFormats = []string{"dot", "mermaid", "order", "teardown"}

func newGraphCommand(opts *options) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "graph [PATH...]",
		Short: "Print the resource dependency graph",
		Long:  "Print the resource dependency graph as DOT or Mermaid, or list resources in the order up creates them ('order') or destroy deletes them ('teardown').",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(graphFormats, format) {
				return &ExitError{Code: ExitInvalidConfig, Message: fmt.Sprintf("invalid format %q: must be one of %s", format, strings.Join(graphFormats, ", "))}
			}
			return withApp(cmd, opts, args, func(ctx context.Context, a *app.App) error {
				g, err := a.Graph(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				switch format {
				case "mermaid":
					fmt.Fprint(w, g.Mermaid())
				case "order", "teardown":
					return printOrder(w, g, format == "teardown")
				default:
					fmt.Fprint(w, g.DOT())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "dot", "Output format: "+strings.Join(graphFormats, ", "))
	return cmd
}

// printOrder lists the nodes of g one per line, dependencies first or, for
// teardown, dependents first.
func printOrder(w io.Writer, g *graph.Graph, teardown bool) error {
	order, err := g.TopologicalOrder()
	if teardown {
		order, err = g.ReverseTopologicalOrder()
	}
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, id := range order {
		label, _ := g.Label(id)
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, id, label)
	}
	return tw.Flush()
}

func newStateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect the state store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, args, func(ctx context.Context, a *app.App) error {
				records, err := a.Records(ctx)
				if err != nil {
					return err
				}
				printRecords(cmd.OutOrStdout(), records)
				return nil
			})
		},
	})
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the esxigrid version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "esxigrid %s\n", Version)
		},
	}
}

func printResult(w io.Writer, res *engine.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tACTION\tSTATUS\tDETAIL")
	for _, o := range res.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", o.Name, o.Kind, o.Action, o.Status, outcomeDetail(o))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%s: %s (%s)\n", res.Command, res.Summary(), res.Elapsed.Round(time.Millisecond))
}

func outcomeDetail(o *engine.Outcome) string {
	var parts []string
	if o.Identity != "" {
		parts = append(parts, "id="+o.Identity)
	}
	if len(o.ReplaceKeys) > 0 {
		parts = append(parts, "replace on "+strings.Join(o.ReplaceKeys, ","))
	}
	if o.Unknown {
		parts = append(parts, "(known after up)")
	}
	if o.Err != nil && o.Status == engine.StatusFailed {
		parts = append(parts, o.Err.Error())
	}
	return strings.Join(parts, " ")
}

func printRecords(w io.Writer, records []*state.Record) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tIDENTITY\tSTATUS\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Kind, r.Identity, r.Status, r.UpdatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}
