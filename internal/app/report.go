package app

import (
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"spotcrawl/internal/config"
	"spotcrawl/internal/runner"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

// RenderReport prints one row per task of a finished run.
func RenderReport(w io.Writer, report *runner.Report) {
	t := newTable(w)
	t.SetTitle("Run " + report.RunID + " " + report.Range)
	t.AppendHeader(table.Row{"Task", "Dates", "Skipped", "Saved", "Exported", "Empty", "Failed", "Rows", "Degraded", "Duration"})

	failed := make(map[string]bool, len(report.Failed))
	for _, name := range report.Failed {
		failed[name] = true
	}
	for _, s := range report.Summaries {
		name := s.Task
		if failed[name] {
			name += " (aborted)"
		}
		t.AppendRow(table.Row{
			name, s.Dates, s.SkippedDates, s.Saved, s.Exported, s.Empty, s.Failed, s.Rows,
			yesNo(s.Degraded), s.Duration.Round(time.Second),
		})
	}
	footer := "completed"
	if report.Interrupted {
		footer = "interrupted"
	}
	t.AppendFooter(table.Row{footer, "", "", "", "", "", "", "", "", report.Duration.Round(time.Second)})
	t.Render()
}

// ListTasks prints the configured tasks in run order.
func (a *Application) ListTasks() {
	RenderTasks(a.stdout, a.Config.Tasks)
}

// RenderTasks prints status, location and capabilities of each task.
func RenderTasks(w io.Writer, tasks config.Tasks) {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Status", "Category", "Task", "Subcategory", "Capabilities"})
	for i, task := range tasks {
		status := "enabled"
		if !task.IsEnabled() {
			status = "disabled"
		}
		t.AppendRow(table.Row{i + 1, status, task.Category, task.Name, task.Subcategory, capabilities(task)})
	}
	t.Render()
}

func capabilities(task config.Task) string {
	var caps []string
	if task.HasDropdown {
		caps = append(caps, "dropdown:"+task.DropdownLabel)
	}
	if task.HasExport {
		caps = append(caps, "export:"+task.ExportType)
	}
	if task.HasPagination {
		caps = append(caps, "pagination")
	}
	if task.HasPageSize {
		caps = append(caps, "page-size")
	}
	if task.PostProcess != "" && task.PostProcess != config.PostProcessNone {
		caps = append(caps, "post:"+task.PostProcess)
	}
	return strings.Join(caps, ", ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
