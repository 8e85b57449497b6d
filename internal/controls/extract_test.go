package controls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotcrawl/internal/crawl"
)

func TestParseTable(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		headers []string
		rows    []crawl.Row
	}{
		{
			name: "finereport rows ordered by tridx",
			html: `<table class="x-table REPORT">
				<tr tridx="2"><td>2</td><td>298.10</td></tr>
				<tr tridx="0"><td>时段</td><td>出清电价</td></tr>
				<tr tridx="1"><td>1</td><td>301.40</td></tr>
				<tr><td>ignored</td><td>row</td></tr>
			</table>`,
			headers: []string{"时段", "出清电价"},
			rows: []crawl.Row{
				{"时段": "1", "出清电价": "301.40"},
				{"时段": "2", "出清电价": "298.10"},
			},
		},
		{
			name: "element split table",
			html: `<div class="el-table">
				<div class="el-table__header-wrapper"><table><thead><tr>
					<th><div class="cell">序号</div></th><th><div class="cell">机组</div></th><th class="gutter"></th>
				</tr></thead></table></div>
				<div class="el-table__body-wrapper"><table><tbody>
					<tr><td><div class="cell">1</div></td><td><div class="cell">一号 机组</div></td></tr>
					<tr><td></td><td></td></tr>
				</tbody></table></div>
			</div>`,
			headers: []string{"序号", "机组"},
			rows:    []crawl.Row{{"序号": "1", "机组": "一号 机组"}},
		},
		{
			name: "plain table with thead",
			html: `<table><thead><tr><th>日期</th><th>电量</th></tr></thead>
				<tbody><tr><td>2024-05-01</td><td>1,200</td></tr></tbody></table>`,
			headers: []string{"日期", "电量"},
			rows:    []crawl.Row{{"日期": "2024-05-01", "电量": "1,200"}},
		},
		{
			name: "plain table first row as header",
			html: `<table>
				<tr><td>日期</td><td>电量</td></tr>
				<tr><td>2024-05-01</td><td>900</td><td>extra</td></tr>
			</table>`,
			headers: []string{"日期", "电量"},
			rows:    []crawl.Row{{"日期": "2024-05-01", "电量": "900", "列3": "extra"}},
		},
		{
			name:    "duplicate and blank headers",
			html:    `<table><tr><th>价格</th><th>价格</th><th></th></tr><tr><td>1</td><td>2</td><td>3</td></tr></table>`,
			headers: []string{"价格", "价格_2", "列3"},
			rows:    []crawl.Row{{"价格": "1", "价格_2": "2", "列3": "3"}},
		},
		{
			name: "no table",
			html: `<div>暂无数据</div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTable(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.headers, got.Headers)
			assert.Equal(t, tt.rows, got.Rows)
		})
	}
}

func TestFindUpdateTimestamp(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"date and time", "现货市场\n最新更新日期：2024-05-02 09:30:00\n", "2024-05-02 09:30:00"},
		{"slash date only", "更新时间: 2024/05/02", "2024/05/02"},
		{"marker precedence", "更新时间 2024-01-01\n最新更新日期 2024-05-02 10:00:00", "2024-05-02 10:00:00"},
		{"date before marker ignored", "2023-12-31 最新更新", ""},
		{"absent", "日前出清结果", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindUpdateTimestamp(tt.text))
		})
	}
}
