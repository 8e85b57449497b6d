package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"spotcrawl/internal/config"
	"spotcrawl/internal/crawl"
	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/infrastructure"
)

var (
	unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}_\p{Han}\-]`)
	underscores = regexp.MustCompile(`_+`)
	datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// SafeName keeps letters, digits, CJK, '-' and '_', replaces everything else
// with '_', collapses runs of '_' and trims them from both ends.
func SafeName(name string) string {
	safe := unsafeChars.ReplaceAllString(name, "_")
	safe = underscores.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}

// FileName builds "{task}_{date}[_{extra}]{ext}".
func FileName(task, date, extra, ext string) string {
	parts := []string{SafeName(task)}
	if date != "" {
		parts = append(parts, date)
	}
	if e := SafeName(extra); e != "" {
		parts = append(parts, e)
	}
	return strings.Join(parts, "_") + ext
}

// Store writes datasets under OutputDir and reads existing days from both
// OutputDir and ExportsDir.
type Store struct {
	outputDir  string
	exportsDir string
	logger     *slog.Logger
}

// NewStore creates a store
func NewStore(outputDir, exportsDir string, logger *slog.Logger) *Store {
	return &Store{
		outputDir:  outputDir,
		exportsDir: exportsDir,
		logger:     infrastructure.WithComponent(logger, "storage"),
	}
}

// CategoryDir returns the directory for a category under root.
func CategoryDir(root, category string) string {
	if c := SafeName(category); c != "" {
		return filepath.Join(root, c)
	}
	return root
}

// Path returns the CSV path for key.
func (s *Store) Path(key crawl.SaveKey) string {
	return filepath.Join(CategoryDir(s.outputDir, key.Category), FileName(key.Task, key.Date, key.Extra, ".csv"))
}

// ExportPath returns where a downloaded export for the unit is stored.
func (s *Store) ExportPath(category, task, date, extra, ext string) string {
	return filepath.Join(CategoryDir(s.exportsDir, category), FileName(task, date, extra, ext))
}

// Save writes ds for key. When the file already exists the rows are merged
// with the stored ones and exact duplicates dropped.
func (s *Store) Save(ds crawl.Dataset, key crawl.SaveKey) (string, error) {
	if ds.Len() == 0 {
		s.logger.Warn("no rows to save", slog.String("task", key.Task), slog.String("date", key.Date))
		return "", nil
	}

	path := s.Path(key)
	headers := columns(ds)
	records := make([][]string, 0, ds.Len())
	for _, row := range ds.Rows {
		records = append(records, record(headers, row))
	}

	if config.FileExists(path) {
		oldHeaders, oldRecords, err := ReadCSV(path)
		if err != nil {
			return "", crawlerrors.StorageError("read existing CSV", err)
		}
		headers, records = merge(oldHeaders, oldRecords, headers, records)
	}

	if err := WriteCSV(path, WriteOptions{Headers: headers, Records: records, BOMPrefix: true}); err != nil {
		return "", crawlerrors.StorageError(fmt.Sprintf("write %s", path), err)
	}

	s.logger.Info("csv saved",
		slog.String("path", path),
		slog.Int("rows", len(records)),
		slog.Int("columns", len(headers)))
	return path, nil
}

// ExistingDates scans CSV outputs and exports of the task's category for
// files named after the task and returns the days they cover.
func (s *Store) ExistingDates(task, category string) (crawl.DateSet, error) {
	dates := crawl.NewDateSet()
	prefix := regexp.MustCompile(`^` + regexp.QuoteMeta(SafeName(task)) + `_(\d{4}-\d{2}-\d{2})(?:[_.]|$)`)

	scan := func(root string, exts ...string) error {
		if root == "" {
			return nil
		}
		files, err := ListFiles(CategoryDir(root, category), exts...)
		if err != nil {
			return crawlerrors.StorageError("list existing files", err)
		}
		for _, f := range files {
			if m := prefix.FindStringSubmatch(f.Name); m != nil {
				dates.Add(m[1])
			}
		}
		return nil
	}

	if err := scan(s.outputDir, ".csv"); err != nil {
		return nil, err
	}
	if err := scan(s.exportsDir); err != nil {
		return nil, err
	}
	return dates, nil
}

// DateOf extracts the first YYYY-MM-DD from a file name.
func DateOf(name string) (string, bool) {
	d := datePattern.FindString(name)
	return d, d != ""
}

// columns returns ds.Columns plus any row keys it does not list, sorted.
func columns(ds crawl.Dataset) []string {
	seen := make(map[string]bool, len(ds.Columns))
	cols := make([]string, 0, len(ds.Columns))
	for _, c := range ds.Columns {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	var extra []string
	for _, row := range ds.Rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

func record(headers []string, row crawl.Row) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = FormatValue(row[h])
	}
	return out
}

// FormatValue renders a cell. nil is the empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// merge unions the header sets, old first, and appends new records that
// are not already present.
func merge(oldHeaders []string, oldRecords [][]string, newHeaders []string, newRecords [][]string) ([]string, [][]string) {
	headers := append([]string{}, oldHeaders...)
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}
	for _, h := range newHeaders {
		if _, ok := index[h]; !ok {
			index[h] = len(headers)
			headers = append(headers, h)
		}
	}

	realign := func(from []string, rec []string) []string {
		out := make([]string, len(headers))
		for i, h := range from {
			if i < len(rec) {
				out[index[h]] = rec[i]
			}
		}
		return out
	}

	seen := make(map[string]bool)
	var merged [][]string
	add := func(rec []string) {
		k := strings.Join(rec, "\x1f")
		if seen[k] {
			return
		}
		seen[k] = true
		merged = append(merged, rec)
	}
	for _, r := range oldRecords {
		add(realign(oldHeaders, r))
	}
	for _, r := range newRecords {
		add(realign(newHeaders, r))
	}
	return headers, merged
}
