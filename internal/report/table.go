package report

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RenderSummary prints per-phase counts and the slowest probe of each phase,
// followed by the run totals.
func RenderSummary(w io.Writer, doc Document) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Validation summary")
	t.AppendHeader(table.Row{"Phase", "Passed", "Failed", "Skipped", "Total", "Slowest (ms)"})

	for _, p := range doc.Phases {
		s := p.Summary()
		t.AppendRow(table.Row{p.Name, s.Passed, s.Failed, s.Skipped, s.Total, p.Slowest()})
	}

	t.AppendFooter(table.Row{"Total", doc.Summary.Passed, doc.Summary.Failed, doc.Summary.Skipped, doc.Summary.Total, ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 4, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 5, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	t.Render()
}
