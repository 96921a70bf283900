package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/mattjoyce/filedrop/internal/ledger"
)

var columns = []table.Column{
	{Title: "ST", Width: 2},
	{Title: "File", Width: 12},
	{Title: "Name", Width: 28},
	{Title: "Size", Width: 10},
	{Title: "Status", Width: 16},
	{Title: "When", Width: 19},
}

func entryRows(theme Theme, entries []*ledger.Entry) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		size := "-"
		if e.Status == ledger.StatusStored {
			size = formatBytes(e.Size)
		}
		rows = append(rows, table.Row{
			theme.StatusSymbol(e.Status),
			e.FileID,
			e.Name,
			size,
			string(e.Status),
			e.CompletedAt.Local().Format(time.DateTime),
		})
	}
	return rows
}

// RenderEntries renders retrieval history as a static table.
func RenderEntries(theme Theme, entries []*ledger.Entry) string {
	if len(entries) == 0 {
		return theme.Dim.Render("No retrievals recorded.") + "\n"
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(entryRows(theme, entries)),
		table.WithHeight(len(entries)+3),
	)
	s := theme.tableStyles()
	s.Selected = s.Cell
	t.SetStyles(s)

	var b strings.Builder
	b.WriteString(t.View())
	b.WriteString("\n")
	for _, e := range entries {
		if e.LastError != nil {
			fmt.Fprintf(&b, "%s %s\n", theme.StatusFailed.Render(e.FileID+":"), *e.LastError)
		}
	}
	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
