package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains every directory the crawler writes to, resolved to
// absolute form once at startup
type Paths struct {
	OutputDir  string
	ExportsDir string
	DebugDir   string
	LogsDir    string
	LogFile    string
}

// Paths resolves the configured directories against the working directory
func (c *Config) Paths() (*Paths, error) {
	abs := func(p string) (string, error) {
		a, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path %s: %w", p, err)
		}
		return a, nil
	}

	var (
		p   Paths
		err error
	)
	if p.OutputDir, err = abs(c.Storage.OutputDir); err != nil {
		return nil, err
	}
	if p.ExportsDir, err = abs(c.Browser.DownloadDir); err != nil {
		return nil, err
	}
	if p.DebugDir, err = abs(c.Browser.DebugDir); err != nil {
		return nil, err
	}
	if p.LogFile, err = abs(c.Logging.FilePath); err != nil {
		return nil, err
	}
	p.LogsDir = filepath.Dir(p.LogFile)
	return &p, nil
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.OutputDir,
		p.ExportsDir,
		p.DebugDir,
		p.LogsDir,
	}

	logger := slog.Default()
	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LogPathResolution logs the resolved directories for debugging
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	wd, _ := os.Getwd()

	logger.Info("Path resolution summary",
		slog.String("working_dir", wd),
		slog.Group("directories",
			slog.String("output", p.OutputDir),
			slog.String("exports", p.ExportsDir),
			slog.String("debug", p.DebugDir),
			slog.String("logs", p.LogsDir),
		))
}
