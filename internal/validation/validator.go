package validation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"spotcrawl/internal/infrastructure"
	"spotcrawl/internal/storage"
)

const dateLayout = "2006-01-02"

// FileResult is the outcome of checking one stored file.
type FileResult struct {
	Path    string
	Task    string
	Rows    int
	Columns int
	Issues  []string
}

// Passed reports whether the file had no issues.
func (r FileResult) Passed() bool { return len(r.Issues) == 0 }

// Gap is a run of consecutive days missing from a task's outputs.
type Gap struct {
	From string
	To   string
}

func (g Gap) String() string {
	if g.From == g.To {
		return g.From
	}
	return g.From + " ~ " + g.To
}

// Report collects every check of one validation run.
type Report struct {
	Files []FileResult
	Gaps  map[string][]Gap
}

// Failed counts files with at least one issue.
func (r *Report) Failed() int {
	n := 0
	for _, f := range r.Files {
		if !f.Passed() {
			n++
		}
	}
	return n
}

// Validator checks the quality of stored outputs and exports.
type Validator struct {
	outputDir  string
	exportsDir string
	logger     *slog.Logger
}

// NewValidator creates a validator over the given directories.
func NewValidator(outputDir, exportsDir string, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Validator{
		outputDir:  outputDir,
		exportsDir: exportsDir,
		logger:     infrastructure.WithComponent(logger, "validation"),
	}
}

// Run checks every CSV output and xlsx export, then the date continuity of
// each task.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	report := &Report{Gaps: make(map[string][]Gap)}
	dates := make(map[string][]string)

	csvFiles, err := filesUnder(v.outputDir, ".csv")
	if err != nil {
		return nil, err
	}
	for _, f := range csvFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := CheckCSV(f.Path)
		report.Files = append(report.Files, res)
		v.logResult(ctx, res)
		if d, ok := storage.DateOf(f.Name); ok && res.Task != "" {
			key := taskKey(v.outputDir, f.Path, res.Task)
			dates[key] = append(dates[key], d)
		}
	}

	xlsxFiles, err := filesUnder(v.exportsDir, ".xlsx")
	if err != nil {
		return nil, err
	}
	for _, f := range xlsxFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := CheckXLSX(f.Path)
		report.Files = append(report.Files, res)
		v.logResult(ctx, res)
	}

	for key, ds := range dates {
		if gaps := DateGaps(ds); len(gaps) > 0 {
			report.Gaps[key] = gaps
			v.logger.WarnContext(ctx, "dates not continuous",
				slog.String("task", key),
				slog.Int("gaps", len(gaps)))
		}
	}

	v.logger.InfoContext(ctx, "validation finished",
		slog.Int("files", len(report.Files)),
		slog.Int("failed", report.Failed()))
	return report, nil
}

func (v *Validator) logResult(ctx context.Context, res FileResult) {
	if res.Passed() {
		v.logger.DebugContext(ctx, "file passed",
			slog.String("file", res.Path),
			slog.Int("rows", res.Rows),
			slog.Int("columns", res.Columns))
		return
	}
	v.logger.WarnContext(ctx, "file failed",
		slog.String("file", res.Path),
		slog.String("issues", strings.Join(res.Issues, "; ")))
}

// CheckCSV flags empty files, rows whose fields are all empty and duplicate
// rows.
func CheckCSV(path string) FileResult {
	res := FileResult{Path: path, Task: TaskOf(filepath.Base(path))}
	headers, records, err := storage.ReadCSV(path)
	if err != nil {
		res.Issues = append(res.Issues, fmt.Sprintf("unreadable: %v", err))
		return res
	}
	res.Rows = len(records)
	res.Columns = len(headers)
	if len(records) == 0 {
		res.Issues = append(res.Issues, "file is empty")
		return res
	}

	blank, dup := 0, 0
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if allEmpty(rec) {
			blank++
		}
		key := strings.Join(rec, "\x1f")
		if _, ok := seen[key]; ok {
			dup++
			continue
		}
		seen[key] = struct{}{}
	}
	if blank > 0 {
		res.Issues = append(res.Issues, fmt.Sprintf("%d rows with all fields empty", blank))
	}
	if dup > 0 {
		res.Issues = append(res.Issues, fmt.Sprintf("%d duplicate rows", dup))
	}
	return res
}

// CheckXLSX verifies an export opens and its first sheet has a data row
// below the header.
func CheckXLSX(path string) FileResult {
	res := FileResult{Path: path, Task: TaskOf(filepath.Base(path))}
	f, err := excelize.OpenFile(path)
	if err != nil {
		res.Issues = append(res.Issues, fmt.Sprintf("unreadable: %v", err))
		return res
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		res.Issues = append(res.Issues, "workbook has no sheets")
		return res
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		res.Issues = append(res.Issues, fmt.Sprintf("failed to read sheet %s: %v", sheets[0], err))
		return res
	}
	for _, r := range rows {
		if len(r) > res.Columns {
			res.Columns = len(r)
		}
	}
	if len(rows) > 0 {
		res.Rows = len(rows) - 1
	}
	if res.Rows == 0 {
		res.Issues = append(res.Issues, "no data rows")
	}
	return res
}

// DateGaps returns the runs of days missing between the earliest and latest
// of dates. Unparseable dates are ignored.
func DateGaps(dates []string) []Gap {
	var days []time.Time
	seen := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		t, err := time.Parse(dateLayout, d)
		if err != nil {
			continue
		}
		days = append(days, t)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var gaps []Gap
	for i := 1; i < len(days); i++ {
		expected := days[i-1].AddDate(0, 0, 1)
		if days[i].After(expected) {
			gaps = append(gaps, Gap{
				From: expected.Format(dateLayout),
				To:   days[i].AddDate(0, 0, -1).Format(dateLayout),
			})
		}
	}
	return gaps
}

// TaskOf returns the task part of a stored file name, the text before
// "_YYYY-MM-DD". Names without a date yield "".
func TaskOf(name string) string {
	d, ok := storage.DateOf(name)
	if !ok {
		return ""
	}
	idx := strings.Index(name, "_"+d)
	if idx <= 0 {
		return ""
	}
	return name[:idx]
}

// taskKey qualifies a task by its category directory.
func taskKey(root, path, task string) string {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return task
	}
	return filepath.ToSlash(rel) + "/" + task
}

func allEmpty(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// filesUnder lists files with ext in root and its category directories.
func filesUnder(root, ext string) ([]storage.FileInfo, error) {
	if root == "" {
		return nil, nil
	}
	files, err := storage.ListFiles(root, ext)
	if err != nil {
		return nil, err
	}
	dirs, err := storage.ListDirs(root)
	if err != nil {
		return nil, err
	}
	for _, d := range dirs {
		sub, err := storage.ListFiles(d, ext)
		if err != nil {
			return nil, err
		}
		files = append(files, sub...)
	}
	return files, nil
}
