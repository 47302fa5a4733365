package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Alyfish/spacestest-v0-mvp/internal/bootstrap"
	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/retention"
)

type appOpener func(ctx context.Context) (*bootstrap.App, error)

type cli struct {
	open   appOpener
	output string
}

func newRootCmd(open appOpener) *cobra.Command {
	c := &cli{open: open}
	root := &cobra.Command{
		Use:           "spacesctl",
		Short:         "Operate the spaces project store",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "json", "output format: json or yaml")

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(app *bootstrap.App) error {
				items, err := app.Service.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSTATUS\tUPDATED")
				for _, it := range items {
					fmt.Fprintf(w, "%s\t%s\t%s\n", it.ID, it.Status, it.UpdatedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "inspect [project-id]",
		Short: "Print a project snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(app *bootstrap.App) error {
				p, err := app.Service.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), p)
			})
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "gates [project-id]",
		Short: "Print the readiness gates of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(app *bootstrap.App) error {
				g, err := app.Service.Gates(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.print(cmd.OutOrStdout(), g)
			})
		},
	})

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete projects not updated within --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(app *bootstrap.App) error {
				n, err := retention.NewScheduler(app.Service, olderThan, "", app.Log).Purge(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d project(s)\n", n)
				return err
			})
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "retention period")
	root.AddCommand(purge)

	return root
}

func (c *cli) withApp(cmd *cobra.Command, fn func(app *bootstrap.App) error) error {
	app, err := c.open(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

// print goes through JSON first so YAML output carries the same field names
// as the API.
func (c *cli) print(w io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	switch c.output {
	case "json":
		_, err = fmt.Fprintln(w, string(raw))
		return err
	case "yaml":
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", c.output)
	}
}
