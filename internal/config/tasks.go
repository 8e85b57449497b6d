package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	// DefaultExportType is the export menu entry used when a task names none.
	DefaultExportType = "原样导出"
	// DefaultPageSize is applied to tasks that expose a page-size control.
	DefaultPageSize = 50

	// PostProcessClearingSummary selects the clearing-summary text parser.
	PostProcessClearingSummary = "clearing_summary"
	// PostProcessNone disables post-processing even when the name matches.
	PostProcessNone = "none"
	// ClearingSummaryMarker in a task name selects the clearing-summary parser.
	ClearingSummaryMarker = "出清概况"

	subcategorySeparator = ">"
)

// Task is one crawl target page and its capabilities. It is immutable after
// loading.
type Task struct {
	Name          string `yaml:"-" validate:"required"`
	Category      string `yaml:"category" validate:"required"`
	Subcategory   string `yaml:"subcategory"`
	HasDropdown   bool   `yaml:"has_dropdown"`
	DropdownLabel string `yaml:"dropdown_label"`
	HasExport     bool   `yaml:"has_export"`
	ExportType    string `yaml:"export_type"`
	HasPagination bool   `yaml:"has_pagination"`
	HasPageSize   bool   `yaml:"has_page_size"`
	PageSize      int    `yaml:"page_size" validate:"gte=0,lte=1000"`
	PostProcess   string `yaml:"post_process" validate:"omitempty,oneof=clearing_summary none"`
	Enabled       *bool  `yaml:"enabled"`
}

// IsEnabled reports whether the task runs by default. Tasks are enabled
// unless explicitly disabled.
func (t Task) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// SubcategoryPath splits the ">"-separated subcategory into tree labels.
func (t Task) SubcategoryPath() []string {
	if strings.TrimSpace(t.Subcategory) == "" {
		return nil
	}
	var path []string
	for _, seg := range strings.Split(t.Subcategory, subcategorySeparator) {
		if seg = strings.TrimSpace(seg); seg != "" {
			path = append(path, seg)
		}
	}
	return path
}

// Tasks keeps task definitions in the order they appear in the file.
type Tasks []Task

// UnmarshalYAML decodes a mapping of task name to definition, preserving
// key order.
func (ts *Tasks) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var order yaml.MapSlice
	if err := unmarshal(&order); err != nil {
		return err
	}
	var byName map[string]Task
	if err := unmarshal(&byName); err != nil {
		return err
	}

	out := make(Tasks, 0, len(order))
	for _, item := range order {
		name, ok := item.Key.(string)
		if !ok {
			return fmt.Errorf("task name %v is not a string", item.Key)
		}
		t := byName[name]
		t.Name = name
		out = append(out, t)
	}
	*ts = out
	return nil
}

// Enabled returns the tasks that run by default.
func (ts Tasks) Enabled() Tasks {
	var out Tasks
	for _, t := range ts {
		if t.IsEnabled() {
			out = append(out, t)
		}
	}
	return out
}

// Find returns the task with the given name.
func (ts Tasks) Find(name string) (Task, bool) {
	for _, t := range ts {
		if t.Name == name {
			return t, true
		}
	}
	return Task{}, false
}

// Select picks tasks by name in the order given. Explicitly named tasks run
// even when disabled. Unknown names are returned separately.
func (ts Tasks) Select(names []string) (selected Tasks, unknown []string) {
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if t, ok := ts.Find(name); ok {
			selected = append(selected, t)
		} else {
			unknown = append(unknown, name)
		}
	}
	return selected, unknown
}

// SplitNames parses a comma-separated --task value.
func SplitNames(list string) []string {
	var names []string
	for _, n := range strings.Split(list, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
