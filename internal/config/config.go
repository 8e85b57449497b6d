package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	crawlerrors "spotcrawl/internal/errors"
)

// EnvPrefix namespaces environment overrides, e.g. SPOTCRAWL_BROWSER_CDP_URL.
const EnvPrefix = "SPOTCRAWL"

// DefaultConfigFile is used when no --config flag is given.
const DefaultConfigFile = "config.yaml"

// Config represents the complete crawler configuration
type Config struct {
	TargetURL string          `yaml:"target_url" envconfig:"TARGET_URL" validate:"required,url"`
	Browser   BrowserConfig   `yaml:"browser" envconfig:"BROWSER"`
	Request   RequestConfig   `yaml:"request" envconfig:"REQUEST"`
	DateRange DateRangeConfig `yaml:"date_range" envconfig:"DATE_RANGE"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Data      DataConfig      `yaml:"data" envconfig:"DATA"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Schedule  ScheduleConfig  `yaml:"schedule" envconfig:"SCHEDULE"`
	Menu      MenuConfig      `yaml:"menu" envconfig:"MENU"`
	Metrics   MetricsConfig   `yaml:"metrics" envconfig:"METRICS"`
	Tasks     Tasks           `yaml:"tasks" ignored:"true" validate:"required,min=1,dive"`
}

// BrowserConfig controls how the Chrome session is obtained
type BrowserConfig struct {
	// Mode is "connect" (attach to a running Chrome over CDP) or "launch".
	Mode             string        `yaml:"mode" envconfig:"MODE" validate:"oneof=connect launch"`
	CDPURL           string        `yaml:"cdp_url" envconfig:"CDP_URL" validate:"required_if=Mode connect"`
	Headless         bool          `yaml:"headless" envconfig:"HEADLESS"`
	SlowMo           time.Duration `yaml:"slow_mo" envconfig:"SLOW_MO"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	DownloadDir      string        `yaml:"download_dir" envconfig:"DOWNLOAD_DIR" validate:"required"`
	DebugDir         string        `yaml:"debug_dir" envconfig:"DEBUG_DIR" validate:"required"`
	TargetURLPattern string        `yaml:"target_url_pattern" envconfig:"TARGET_URL_PATTERN"`
	Viewport         Viewport      `yaml:"viewport" envconfig:"VIEWPORT"`
	ExecPath         string        `yaml:"exec_path" envconfig:"EXEC_PATH"`

	// StrictSurface fails the unit instead of degrading to the top-level
	// document when no nested surface with controls can be found.
	StrictSurface bool `yaml:"strict_surface" envconfig:"STRICT_SURFACE"`
}

// Viewport is the window size used in launch mode
type Viewport struct {
	Width  int `yaml:"width" envconfig:"WIDTH" validate:"gte=0"`
	Height int `yaml:"height" envconfig:"HEIGHT" validate:"gte=0"`
}

// RequestConfig holds the pacing and retry knobs
type RequestConfig struct {
	DateInterval  time.Duration `yaml:"date_interval" envconfig:"DATE_INTERVAL"`
	RetryTimes    int           `yaml:"retry_times" envconfig:"RETRY_TIMES" validate:"min=1,max=20"`
	RetryInterval time.Duration `yaml:"retry_interval" envconfig:"RETRY_INTERVAL"`
	QueryInterval time.Duration `yaml:"query_interval" envconfig:"QUERY_INTERVAL"`
	PageInterval  time.Duration `yaml:"page_interval" envconfig:"PAGE_INTERVAL"`
	ExportTimeout time.Duration `yaml:"export_timeout" envconfig:"EXPORT_TIMEOUT"`
}

// DateRangeConfig is the default crawl window. An empty end means today.
type DateRangeConfig struct {
	Start string `yaml:"start_date" envconfig:"START"`
	End   string `yaml:"end_date" envconfig:"END"`
}

// StorageConfig contains output locations
type StorageConfig struct {
	OutputDir string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
}

// DataConfig names the columns that get special treatment during cleaning
type DataConfig struct {
	OrdinalColumn    string `yaml:"ordinal_column" envconfig:"ORDINAL_COLUMN"`
	UpdateTimeColumn string `yaml:"update_time_column" envconfig:"UPDATE_TIME_COLUMN"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"omitempty,oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"omitempty,oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// ScheduleConfig controls --schedule mode
type ScheduleConfig struct {
	IntervalHours int `yaml:"interval_hours" envconfig:"INTERVAL_HOURS" validate:"min=1"`
}

// MenuConfig locates the navigation tree in the host page
type MenuConfig struct {
	RootLabel    string `yaml:"root_label" envconfig:"ROOT_LABEL" validate:"required"`
	TreeSelector string `yaml:"tree_selector" envconfig:"TREE_SELECTOR" validate:"required"`
}

// MetricsConfig controls the optional status server and tracing
type MetricsConfig struct {
	// Address serves /metrics, /healthz and /status when set, e.g. ":9464".
	Address       string `yaml:"address" envconfig:"ADDRESS"`
	TraceExporter string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"omitempty,oneof=none stdout"`
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result. Every failure is a Config error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, crawlerrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse builds a configuration from YAML bytes on top of Default, then
// applies environment overrides and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, crawlerrors.ConfigError("failed to parse config YAML", err)
	}

	// Only variables that are actually set change a field.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, crawlerrors.ConfigError("failed to load config from env", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		TargetURL: "https://pmos.sx.sgcc.com.cn/#/dashboard",
		Browser: BrowserConfig{
			Mode:             "connect",
			CDPURL:           "http://localhost:9222",
			Timeout:          30 * time.Second,
			DownloadDir:      "./data/exports",
			DebugDir:         "./data/debug",
			TargetURLPattern: "pmos.sx.sgcc.com.cn",
			Viewport:         Viewport{Width: 1920, Height: 1080},
		},
		Request: RequestConfig{
			DateInterval:  2 * time.Second,
			RetryTimes:    3,
			RetryInterval: 5 * time.Second,
			QueryInterval: 3 * time.Second,
			PageInterval:  2 * time.Second,
			ExportTimeout: 30 * time.Second,
		},
		DateRange: DateRangeConfig{
			Start: "2025-01-01",
		},
		Storage: StorageConfig{
			OutputDir: "./data",
		},
		Data: DataConfig{
			OrdinalColumn:    "序号",
			UpdateTimeColumn: "最新更新日期",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/spotcrawl.log",
		},
		Schedule: ScheduleConfig{
			IntervalHours: 24,
		},
		Menu: MenuConfig{
			RootLabel:    "信息披露",
			TreeSelector: "#guide-menu .el-tree",
		},
		Metrics: MetricsConfig{
			TraceExporter: "none",
		},
	}
}

// normalize fills task-level defaults and tidies free-form values
func (c *Config) normalize() {
	c.Browser.Mode = strings.ToLower(strings.TrimSpace(c.Browser.Mode))
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Output = strings.ToLower(c.Logging.Output)

	// JSON is the only supported log format.
	c.Logging.Format = "json"

	for i := range c.Tasks {
		t := &c.Tasks[i]
		if t.ExportType == "" {
			t.ExportType = DefaultExportType
		}
		if t.PageSize == 0 {
			t.PageSize = DefaultPageSize
		}
		if t.PostProcess == "" && strings.Contains(t.Name, ClearingSummaryMarker) {
			t.PostProcess = PostProcessClearingSummary
		}
	}
}

var validate = validator.New()

// Validate checks struct constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return crawlerrors.ConfigError("config validation failed", err)
	}

	durations := map[string]time.Duration{
		"request.date_interval":  c.Request.DateInterval,
		"request.retry_interval": c.Request.RetryInterval,
		"request.query_interval": c.Request.QueryInterval,
		"request.page_interval":  c.Request.PageInterval,
		"browser.slow_mo":        c.Browser.SlowMo,
	}
	for name, d := range durations {
		if d < 0 {
			return crawlerrors.ConfigError(fmt.Sprintf("%s must not be negative", name), nil)
		}
	}
	if c.Browser.Timeout <= 0 {
		return crawlerrors.ConfigError("browser.timeout must be positive", nil)
	}
	if c.Request.ExportTimeout <= 0 {
		return crawlerrors.ConfigError("request.export_timeout must be positive", nil)
	}

	seen := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if seen[t.Name] {
			return crawlerrors.ConfigError(fmt.Sprintf("duplicate task %q", t.Name), nil)
		}
		seen[t.Name] = true
	}

	if c.DateRange.Start != "" {
		if _, err := ParseDate(c.DateRange.Start); err != nil {
			return crawlerrors.ConfigError("date_range.start_date is invalid", err)
		}
	}
	if c.DateRange.End != "" {
		if _, err := ParseDate(c.DateRange.End); err != nil {
			return crawlerrors.ConfigError("date_range.end_date is invalid", err)
		}
	}
	return nil
}
