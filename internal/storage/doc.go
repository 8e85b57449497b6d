// Package storage persists crawl results as CSV files and answers which
// days a task already has on disk.
//
// Layout:
//
//	{output_dir}/{category}/{task}_{date}[_{option}].csv
//	{download_dir}/{category}/{task}_{date}[_{option}].{ext}
//
// Names pass through SafeName. CSV files start with a UTF-8 BOM so Excel
// opens them with the right encoding. Both trees count toward the existing
// date set, so export-only tasks are incremental as well.
package storage
