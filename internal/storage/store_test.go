package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotcrawl/internal/crawl"
	"spotcrawl/internal/infrastructure"
)

func newTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	root := t.TempDir()
	out := filepath.Join(root, "data")
	exports := filepath.Join(root, "exports")
	return NewStore(out, exports, infrastructure.NewLogger(io.Discard, "debug")), out, exports
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"实时节点边际电价", "实时节点边际电价"},
		{"供需与约束 > 参数信息", "供需与约束_参数信息"},
		{"节点 1206008004", "节点_1206008004"},
		{"a/b\\c:d", "a_b_c_d"},
		{"__x__", "x"},
		{"日前-出清(总)", "日前-出清_总"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeName(tt.in))
		})
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "实时节点边际电价_2026-02-05_节点1206008004.csv",
		FileName("实时节点边际电价", "2026-02-05", "节点1206008004", ".csv"))
	assert.Equal(t, "日前备用总量_2026-02-05.csv", FileName("日前备用总量", "2026-02-05", "", ".csv"))
	assert.Equal(t, "T_2026-02-05.xlsx", FileName("T", "2026-02-05", "  ", ".xlsx"))
}

func TestSave_WritesBOMAndHeaders(t *testing.T) {
	s, out, _ := newTestStore(t)
	ds := crawl.Dataset{
		Columns: []string{"序号", "节点", "电价"},
		Rows: []crawl.Row{
			{"序号": "1", "节点": "北郊", "电价": 312.5},
			{"序号": "2", "节点": "南郊", "电价": nil, "备注": "x"},
		},
	}

	path, err := s.Save(ds, crawl.SaveKey{Task: "实时节点边际电价", Category: "现货实时数据", Date: "2025-06-01", Extra: "节点 A"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "现货实时数据", "实时节点边际电价_2025-06-01_节点_A.csv"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, utf8BOM, raw[:3])

	headers, records, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"序号", "节点", "电价", "备注"}, headers)
	assert.Equal(t, [][]string{{"1", "北郊", "312.5", ""}, {"2", "南郊", "", "x"}}, records)
}

func TestSave_EmptyDatasetWritesNothing(t *testing.T) {
	s, out, _ := newTestStore(t)

	path, err := s.Save(crawl.Dataset{}, crawl.SaveKey{Task: "T", Date: "2025-06-01"})

	require.NoError(t, err)
	assert.Empty(t, path)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSave_MergesAndDeduplicates(t *testing.T) {
	s, _, _ := newTestStore(t)
	key := crawl.SaveKey{Task: "T", Category: "C", Date: "2025-06-01"}

	_, err := s.Save(crawl.Dataset{
		Columns: []string{"a", "b"},
		Rows:    []crawl.Row{{"a": "1", "b": "x"}, {"a": "2", "b": "y"}},
	}, key)
	require.NoError(t, err)

	path, err := s.Save(crawl.Dataset{
		Columns: []string{"a", "b", "c"},
		Rows:    []crawl.Row{{"a": "2", "b": "y"}, {"a": "3", "b": "z", "c": int64(9)}},
	}, key)
	require.NoError(t, err)

	headers, records, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, headers)
	assert.Equal(t, [][]string{
		{"1", "x", ""},
		{"2", "y", ""},
		{"3", "z", "9"},
	}, records)
}

func TestExistingDates(t *testing.T) {
	s, out, exports := newTestStore(t)
	dir := filepath.Join(out, "现货实时数据")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(exports, "现货实时数据"), 0755))

	touch := func(path string) {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}
	touch(filepath.Join(dir, "实时节点边际电价_2025-06-01_节点A.csv"))
	touch(filepath.Join(dir, "实时节点边际电价_2025-06-02.csv"))
	touch(filepath.Join(dir, "实时节点边际电价_日前_2025-06-03.csv")) // a different task
	touch(filepath.Join(dir, "实时节点边际电价_2025-06-04.txt"))
	touch(filepath.Join(exports, "现货实时数据", "实时节点边际电价_2025-06-05.xlsx"))

	dates, err := s.ExistingDates("实时节点边际电价", "现货实时数据")

	require.NoError(t, err)
	assert.Equal(t, []string{"2025-06-01", "2025-06-02", "2025-06-05"}, dates.Sorted())
}

func TestExistingDates_MissingDirectory(t *testing.T) {
	s, _, _ := newTestStore(t)

	dates, err := s.ExistingDates("T", "C")

	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestExistingDates_RoundTripWithSave(t *testing.T) {
	s, _, _ := newTestStore(t)
	for _, d := range []string{"2025-06-01", "2025-06-03"} {
		_, err := s.Save(crawl.Dataset{Columns: []string{"v"}, Rows: []crawl.Row{{"v": "1"}}},
			crawl.SaveKey{Task: "日前 出清", Category: "现货出清结果", Date: d, Extra: "甲"})
		require.NoError(t, err)
	}

	dates, err := s.ExistingDates("日前 出清", "现货出清结果")

	require.NoError(t, err)
	assert.True(t, dates.Has("2025-06-01"))
	assert.False(t, dates.Has("2025-06-02"))
	assert.True(t, dates.Has("2025-06-03"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "12", FormatValue(int64(12)))
	assert.Equal(t, "0.1", FormatValue(0.1))
	assert.Equal(t, "1000000", FormatValue(1e6))
	assert.Equal(t, "abc", FormatValue("abc"))
}

func TestDateOf(t *testing.T) {
	d, ok := DateOf("T_2025-06-01_x.csv")
	assert.True(t, ok)
	assert.Equal(t, "2025-06-01", d)

	_, ok = DateOf("summary.csv")
	assert.False(t, ok)
}
