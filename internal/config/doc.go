// Package config loads and validates the crawler configuration.
//
// # Configuration Sources
//
// Configuration is built in three layers, later layers winning:
//
//	1. Built-in defaults (Default)
//	2. The YAML file given with --config (config.yaml by default)
//	3. Environment variables prefixed with SPOTCRAWL_
//
// # Environment Variables
//
// Nested keys are joined with underscores:
//
//	SPOTCRAWL_BROWSER_MODE=launch
//	SPOTCRAWL_BROWSER_CDP_URL=http://127.0.0.1:9222
//	SPOTCRAWL_REQUEST_RETRY_TIMES=5
//	SPOTCRAWL_LOGGING_LEVEL=debug
//	SPOTCRAWL_METRICS_ADDRESS=:9464
//
// Task definitions are only read from the file.
//
// # Tasks
//
// Tasks are a YAML mapping from the page title shown in the navigation tree
// to its capabilities. Mapping order is preserved and is the execution order:
//
//	tasks:
//	  日前备用总量:
//	    category: 现货出清结果
//	    has_export: true
//	  实时节点边际电价:
//	    category: 现货出清结果
//	    subcategory: 节点电价>实时
//	    has_dropdown: true
//	    dropdown_label: 节点名称
//	    has_pagination: true
//	    has_page_size: true
//
// # Errors
//
// Every loading or validation failure is returned as a CONFIG crawl error;
// the CLI exits with status 1 before any browser work starts.
package config
