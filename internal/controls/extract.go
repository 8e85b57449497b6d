package controls

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"spotcrawl/internal/crawl"
	"spotcrawl/internal/frames"
)

const (
	documentHTMLJS = `() => document.documentElement.outerHTML`
	tableCountJS   = `() => document.querySelectorAll('table').length`
	bodyTextJS     = `() => document.body ? document.body.innerText : ''`
)

var (
	reportTableClass = regexp.MustCompile(`x-table|REPORT`)
	dateTimePattern  = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}\s*\d{2}:\d{2}:\d{2}`)
	datePattern      = regexp.MustCompile(`\d{4}[-/]\d{2}[-/]\d{2}`)
	updateMarkers    = []string{"最新更新日期", "更新时间", "最新更新"}
)

// Extractor reads the rendered result table from a surface's HTML.
type Extractor struct {
	surface frames.Surface
	logger  *slog.Logger
	timing  Timing
}

// ExtractTable waits for a table to render and parses it. A page without
// any table yields an empty Table.
func (x *Extractor) ExtractTable(ctx context.Context) (crawl.Table, error) {
	if err := x.waitForTable(ctx); err != nil {
		if ctx.Err() != nil {
			return crawl.Table{}, ctx.Err()
		}
		x.logger.WarnContext(ctx, "no table rendered", slog.String("error", err.Error()))
		return crawl.Table{}, nil
	}

	var html string
	if err := eval(ctx, x.surface, documentHTMLJS, &html); err != nil {
		return crawl.Table{}, err
	}
	t, err := ParseTable(html)
	if err != nil {
		return crawl.Table{}, err
	}
	x.logger.DebugContext(ctx, "table extracted",
		slog.Int("columns", len(t.Headers)),
		slog.Int("rows", len(t.Rows)))
	return t, nil
}

func (x *Extractor) waitForTable(ctx context.Context) error {
	deadline := time.Now().Add(x.timing.TableWait)
	for {
		var n int
		err := eval(ctx, x.surface, tableCountJS, &n)
		if err == nil && n > 0 {
			return nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return err
			}
			return fmt.Errorf("no table after %s", x.timing.TableWait)
		}
		if err := x.timing.sleep(ctx, tablePoll); err != nil {
			return err
		}
	}
}

// UpdateTimestamp returns the page's "last updated" value, "" when absent.
func (x *Extractor) UpdateTimestamp(ctx context.Context) (string, error) {
	var text string
	if err := eval(ctx, x.surface, bodyTextJS, &text); err != nil {
		return "", err
	}
	return FindUpdateTimestamp(text), nil
}

// FindUpdateTimestamp scans lines carrying an update marker for a date-time,
// then for a bare date.
func FindUpdateTimestamp(text string) string {
	for _, marker := range updateMarkers {
		for _, line := range strings.Split(text, "\n") {
			idx := strings.Index(line, marker)
			if idx < 0 {
				continue
			}
			rest := line[idx:]
			if m := dateTimePattern.FindString(rest); m != "" {
				return m
			}
			if m := datePattern.FindString(rest); m != "" {
				return m
			}
		}
	}
	return ""
}

// ParseTable extracts the data table from a document. FineReport report
// tables win, then Element UI's split header/body tables, then the first
// plain table.
func ParseTable(html string) (crawl.Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return crawl.Table{}, fmt.Errorf("failed to parse page HTML: %w", err)
	}

	var report *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if reportTableClass.MatchString(s.AttrOr("class", "")) {
			report = s
			return false
		}
		return true
	})
	if report != nil {
		if t := parseReportTable(report); len(t.Headers) > 0 {
			return t, nil
		}
	}

	if el := doc.Find(".el-table").First(); el.Length() > 0 {
		if t := parseElementTable(el); len(t.Headers) > 0 {
			return t, nil
		}
	}

	if first := doc.Find("table").First(); first.Length() > 0 {
		return parsePlainTable(first), nil
	}
	return crawl.Table{}, nil
}

// parseReportTable reads FineReport rows ordered by their tridx attribute;
// the lowest index is the header row.
func parseReportTable(table *goquery.Selection) crawl.Table {
	type indexed struct {
		idx int
		row *goquery.Selection
	}
	var rows []indexed
	table.Find("tr[tridx]").Each(func(_ int, tr *goquery.Selection) {
		idx, err := strconv.Atoi(tr.AttrOr("tridx", ""))
		if err != nil {
			return
		}
		rows = append(rows, indexed{idx: idx, row: tr})
	})
	if len(rows) == 0 {
		return parsePlainTable(table)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].idx < rows[j].idx })

	headers := uniqueHeaders(cellTexts(rows[0].row))
	if len(headers) == 0 {
		return crawl.Table{}
	}
	t := crawl.Table{Headers: headers}
	for _, r := range rows[1:] {
		if row, ok := buildRow(headers, cellTexts(r.row)); ok {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

// parseElementTable reads an el-table, which renders its header and body as
// separate tables.
func parseElementTable(el *goquery.Selection) crawl.Table {
	var headers []string
	el.Find(".el-table__header-wrapper th").Each(func(_ int, th *goquery.Selection) {
		if th.HasClass("gutter") {
			return
		}
		headers = append(headers, cellText(th))
	})
	headers = uniqueHeaders(headers)
	if len(headers) == 0 {
		return crawl.Table{}
	}
	t := crawl.Table{Headers: headers}
	el.Find(".el-table__body-wrapper tbody tr").Each(func(_ int, tr *goquery.Selection) {
		if row, ok := buildRow(headers, cellTexts(tr)); ok {
			t.Rows = append(t.Rows, row)
		}
	})
	return t
}

// parsePlainTable uses the thead row, or the first row, as headers.
func parsePlainTable(table *goquery.Selection) crawl.Table {
	var headerRow *goquery.Selection
	if th := table.Find("thead tr").First(); th.Length() > 0 {
		headerRow = th
	} else {
		headerRow = table.Find("tr").First()
	}
	headers := uniqueHeaders(cellTexts(headerRow))
	if len(headers) == 0 {
		return crawl.Table{}
	}

	var body *goquery.Selection
	if tb := table.Find("tbody"); tb.Length() > 0 && table.Find("thead").Length() > 0 {
		body = tb.Find("tr")
	} else {
		body = table.Find("tr").Slice(1, goquery.ToEnd)
	}

	t := crawl.Table{Headers: headers}
	body.Each(func(_ int, tr *goquery.Selection) {
		if row, ok := buildRow(headers, cellTexts(tr)); ok {
			t.Rows = append(t.Rows, row)
		}
	})
	return t
}

func cellTexts(tr *goquery.Selection) []string {
	var out []string
	tr.Find("th, td").Each(func(_ int, c *goquery.Selection) {
		out = append(out, cellText(c))
	})
	return out
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// buildRow maps cells onto headers; surplus cells get positional names.
// Rows whose cells are all empty are dropped.
func buildRow(headers, cells []string) (crawl.Row, bool) {
	if len(cells) == 0 {
		return nil, false
	}
	row := make(crawl.Row, len(cells))
	nonEmpty := false
	for i, c := range cells {
		key := fmt.Sprintf("列%d", i+1)
		if i < len(headers) {
			key = headers[i]
		}
		row[key] = c
		if c != "" {
			nonEmpty = true
		}
	}
	return row, nonEmpty
}

// uniqueHeaders suffixes repeated or blank header names so no column is
// overwritten.
func uniqueHeaders(in []string) []string {
	seen := make(map[string]int, len(in))
	out := make([]string, 0, len(in))
	for i, h := range in {
		if h == "" {
			h = fmt.Sprintf("列%d", i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s_%d", h, n)
		}
		out = append(out, h)
	}
	return out
}
