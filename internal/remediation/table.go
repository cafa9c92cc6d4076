package remediation

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderOutcomes writes one row per unit.
func RenderOutcomes(w io.Writer, outcomes []Outcome) {
	if len(outcomes) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Remediation outcome")
	t.AppendHeader(table.Row{"Unit", "Kind", "State", "Attempts", "Detail"})
	for _, o := range outcomes {
		t.AppendRow(table.Row{o.Unit, o.Kind, o.State, o.Attempts, o.Detail})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, WidthMax: 60},
	})
	t.Render()
}
