package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pagi-framework/fleetcheck/internal/registry"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "List the units fleetcheck knows about",
	RunE: func(cmd *cobra.Command, args []string) error {
		renderUnits(app.registry)
		return nil
	},
}

func renderUnits(reg *registry.Registry) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Unit", "Kind", "Address", "Critical"})
	for _, ep := range reg.All() {
		addr := ep.Addr()
		if ep.HTTP() {
			addr = ep.HealthURL()
		}
		critical := ""
		if ep.Critical {
			critical = "yes"
		}
		t.AppendRow(table.Row{ep.Name, ep.Kind, addr, critical})
	}
	t.Render()
}
