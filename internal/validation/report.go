package validation

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Render writes the per-file results and the date gaps as tables.
func (r *Report) Render(w io.Writer) {
	files := table.NewWriter()
	files.SetOutputMirror(w)
	files.SetStyle(table.StyleRounded)
	files.SetTitle("Data quality")
	files.AppendHeader(table.Row{"Status", "File", "Rows", "Columns", "Issues"})
	for _, f := range r.Files {
		status := "PASS"
		if !f.Passed() {
			status = "FAIL"
		}
		files.AppendRow(table.Row{status, filepath.Base(f.Path), f.Rows, f.Columns, strings.Join(f.Issues, "; ")})
	}
	files.AppendFooter(table.Row{"", fmt.Sprintf("%d files", len(r.Files)), "", "", fmt.Sprintf("%d failed", r.Failed())})
	files.Render()

	if len(r.Gaps) == 0 {
		return
	}
	tasks := make([]string, 0, len(r.Gaps))
	for task := range r.Gaps {
		tasks = append(tasks, task)
	}
	sort.Strings(tasks)

	gaps := table.NewWriter()
	gaps.SetOutputMirror(w)
	gaps.SetStyle(table.StyleRounded)
	gaps.SetTitle("Missing dates")
	gaps.AppendHeader(table.Row{"Task", "Missing"})
	for _, task := range tasks {
		parts := make([]string, len(r.Gaps[task]))
		for i, g := range r.Gaps[task] {
			parts[i] = g.String()
		}
		gaps.AppendRow(table.Row{task, strings.Join(parts, "; ")})
	}
	gaps.Render()
}
