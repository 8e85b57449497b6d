// Package parser turns the free-text clearing summary published for each
// trading day into one row of numeric indicators.
package parser

import (
	"fmt"
	"log/slog"
	"regexp"

	"spotcrawl/internal/crawl"
)

const (
	// DateColumn holds the trading day in the source table.
	DateColumn = "日期"
	// TextColumn holds the summary text in the source table.
	TextColumn = "出清概况"
	// RawTextColumn keeps the original text next to the parsed values.
	RawTextColumn = "原始文本"
)

// Indicator is one value extracted from the summary by the first capture
// group of Pattern.
type Indicator struct {
	Name    string
	Pattern *regexp.Regexp
	Unit    string
}

// Indicators are tried independently; a missing one yields nil.
var Indicators = []Indicator{
	// load
	{"直调用电实际最大负荷(万千瓦)", regexp.MustCompile(`直调用电(?:实际|预测)?最大负荷([\d.]+)万千瓦`), "万千瓦"},
	{"直调用电实际最小负荷(万千瓦)", regexp.MustCompile(`最小([\d.]+)万千瓦`), "万千瓦"},
	{"直调用电预测最大负荷(万千瓦)", regexp.MustCompile(`直调用电预测最大负荷([\d.]+)万千瓦`), "万千瓦"},

	// outbound transmission
	{"外送电最大(万千瓦)", regexp.MustCompile(`外送电最大([\d.]+)万千瓦`), "万千瓦"},
	{"外送电最小(万千瓦)", regexp.MustCompile(`外送电(?:最大[\d.]+万千瓦，)?最小([\d.]+)万千瓦`), "万千瓦"},

	// nodal prices
	{"出清节点电价最大(元/MWh)", regexp.MustCompile(`出清节?点?电价最大([\d.]+)元/MWh`), "元/MWh"},
	{"出清节点电价最小(元/MWh)", regexp.MustCompile(`出清节?点?电价.*?最小([\d.]+)元/MWh`), "元/MWh"},
	{"现货市场场均电量价格(元/MWh)", regexp.MustCompile(`(?:资本|现货)平均?(?:为?)([\d.]+)元/MWh`), "元/MWh"},

	// units
	{"火电机组运行(台)", regexp.MustCompile(`火电机组运行(\d+)台`), "台"},
	{"运行机组总装机(MW)", regexp.MustCompile(`运行机组总装机(?:容量)?([\d.]+)(?:MW)?`), "MW"},

	// frequency regulation
	{"调频市场需求最大值(MW)", regexp.MustCompile(`调频?(?:市场)?需求最大值?([\d.]+)(?:MW)?`), "MW"},
	{"需求最小值(MW)", regexp.MustCompile(`需求?最小值?(?:为)?([\d.]+)(?:MW)?`), "MW"},
	{"中标机组最多(台)", regexp.MustCompile(`中标机组最多(\d+)台`), "台"},
	{"中标机组最少(台)", regexp.MustCompile(`中标机组最少(\d+)台`), "台"},
	{"中标机组调频期间综合指标平均值", regexp.MustCompile(`综合指标平均值(?:为)?([\d.]+)`), ""},
	{"边际出清价格最大(元/MWh)", regexp.MustCompile(`边际出清价格最大([\d.]+)元/MWh`), "元/MWh"},
	{"边际出清价格最小(元/MWh)", regexp.MustCompile(`边际出清价格.*?最小([\d.]+)元/MWh`), "元/MWh"},

	// must-run and must-stop
	{"火电机组已开(台次)", regexp.MustCompile(`火电机组已?开(\d+)台次`), "台次"},
	{"必开容量(MW)", regexp.MustCompile(`必开容量([\d.]+)(?:MW)?`), "MW"},
	{"必停(台次)", regexp.MustCompile(`必停(\d+)台次`), "台次"},
	{"必停容量(MW)", regexp.MustCompile(`必停容量([\d.]+)(?:MW)?`), "MW"},
}

// Columns lists the output columns of a parsed row in order.
func Columns() []string {
	cols := []string{DateColumn, RawTextColumn}
	for _, ind := range Indicators {
		cols = append(cols, ind.Name)
	}
	return cols
}

// ParseClearingSummary extracts every indicator from text. Values stay
// strings; numeric coercion happens downstream.
func ParseClearingSummary(text, date string) crawl.Row {
	row := crawl.Row{
		DateColumn:    date,
		RawTextColumn: text,
	}
	for _, ind := range Indicators {
		if m := ind.Pattern.FindStringSubmatch(text); m != nil {
			row[ind.Name] = m[1]
		} else {
			row[ind.Name] = nil
		}
	}
	return row
}

// ClearingSummary replaces each row carrying summary text with its parsed
// indicators. Rows without text pass through unchanged.
func ClearingSummary(ds crawl.Dataset) (crawl.Dataset, error) {
	out := crawl.Dataset{Rows: make([]crawl.Row, 0, len(ds.Rows))}
	parsed := 0

	for _, row := range ds.Rows {
		text := cell(row, TextColumn)
		if text == "" {
			out.Rows = append(out.Rows, row)
			continue
		}
		out.Rows = append(out.Rows, ParseClearingSummary(text, cell(row, DateColumn)))
		parsed++
	}

	if parsed > 0 {
		out.Columns = Columns()
	}
	if parsed < len(ds.Rows) {
		for _, c := range ds.Columns {
			out.AddColumn(c)
		}
	}

	slog.Debug("clearing summary parsed",
		slog.Int("rows", len(ds.Rows)),
		slog.Int("parsed", parsed))
	return out, nil
}

func cell(row crawl.Row, col string) string {
	switch v := row[col].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
