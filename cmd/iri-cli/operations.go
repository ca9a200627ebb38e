package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func (a *app) operationsCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "operations",
		Short: "List catalog operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.loadCatalog(a.clientConfig())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(a.stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Operation", "Method", "Path"})
			ops := cat.Filter(filter)
			for _, op := range ops {
				t.AppendRow(table.Row{op.ID, op.Method, op.PathTemplate})
			}
			t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d of %d operations", len(ops), cat.Len())})
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only operations whose id contains this text")
	return cmd
}
