package display

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableData holds a table's headers, rows and optional footer.
type TableData struct {
	headers []string
	rows    [][]string
	footer  []string
	right   map[int]bool
}

// NewTableData creates a table with the given headers.
func NewTableData(headers ...string) *TableData {
	return &TableData{
		headers: headers,
		rows:    make([][]string, 0),
		right:   make(map[int]bool),
	}
}

// AddRow appends a row.
func (t *TableData) AddRow(row ...string) {
	t.rows = append(t.rows, row)
}

// SetFooter sets the footer row.
func (t *TableData) SetFooter(footer ...string) {
	t.footer = footer
}

// AlignRight right-aligns the column at index col.
func (t *TableData) AlignRight(col int) {
	t.right[col] = true
}

func (t *TableData) Headers() []string { return t.headers }

func (t *TableData) Rows() [][]string { return t.rows }

// PrintTable writes t to w.
func PrintTable(w io.Writer, t *TableData) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(t.headers)
	if len(t.footer) > 0 {
		table.SetFooter(t.footer)
	}

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetFooterAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("─")
	table.SetBorder(false)
	table.SetTablePadding("  ")

	align := make([]int, len(t.headers))
	for i := range align {
		align[i] = tablewriter.ALIGN_LEFT
		if t.right[i] {
			align[i] = tablewriter.ALIGN_RIGHT
		}
	}
	table.SetColumnAlignment(align)

	table.AppendBulk(t.rows)
	table.Render()
}
