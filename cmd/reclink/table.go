package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"reclink/internal/labeler"
	"reclink/internal/linkage"
)

// count is one row of a count table.
type count struct {
	label string
	value int
}

// newTableWriter keeps header case, since headers carry record ids and
// field names.
func newTableWriter(header ...string) table.Writer {
	style := table.StyleRounded
	style.Format.Header = text.FormatDefault
	tw := table.NewWriter()
	tw.SetStyle(style)
	row := make(table.Row, len(header))
	for i, h := range header {
		row[i] = h
	}
	tw.AppendHeader(row)
	return tw
}

// rightAlign right-aligns the given 1-based columns, keeping headers left.
func rightAlign(tw table.Writer, columns ...int) {
	configs := make([]table.ColumnConfig, 0, len(columns))
	for _, n := range columns {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
}

// renderPairTable shows every configured field of both records side by side,
// headed by their record ids.
func renderPairTable(prompt labeler.Prompt) string {
	tw := newTableWriter("Field", prompt.Pair.Left.String(), prompt.Pair.Right.String())
	for _, field := range prompt.Fields {
		tw.AppendRow(table.Row{field.Field, displayValue(prompt.Left, field.Field), displayValue(prompt.Right, field.Field)})
	}
	return tw.Render()
}

// renderExampleTable lists labeled examples in training-set order. A
// non-empty preview field adds that field's value from both snapshots.
func renderExampleTable(examples []linkage.LabeledExample, preview string) string {
	header := []string{"#", "Left", "Right", "Judgment", "Labeled"}
	if preview != "" {
		header = append(header, "Left "+preview, "Right "+preview)
	}
	tw := newTableWriter(header...)
	for i, ex := range examples {
		row := table.Row{i + 1, ex.Left.String(), ex.Right.String(), string(ex.Judgment), formatLabeledAt(ex.LabeledAt)}
		if preview != "" {
			row = append(row, displayValue(ex.LeftRecord, preview), displayValue(ex.RightRecord, preview))
		}
		tw.AppendRow(row)
	}
	rightAlign(tw, 1)
	return tw.Render()
}

// renderCountTable renders labeled counts with the values right-aligned.
func renderCountTable(labelHeader, valueHeader string, counts []count) string {
	tw := newTableWriter(labelHeader, valueHeader)
	for _, c := range counts {
		tw.AppendRow(table.Row{c.label, c.value})
	}
	rightAlign(tw, 2)
	return tw.Render()
}
