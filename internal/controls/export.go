package controls

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"spotcrawl/internal/browser"
	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/frames"
)

// Downloader runs trigger and returns the file the browser saved.
type Downloader interface {
	Download(ctx context.Context, timeout time.Duration, trigger func(ctx context.Context) error) (browser.Download, error)
}

// ExportNamer names the stored export of one unit.
type ExportNamer interface {
	ExportPath(category, task, date, extra, ext string) string
}

func exportProbes(kind string) []Probe {
	q := strconv.Quote(kind)
	return []Probe{
		{Name: "button_text", Locate: `() => withText('button', ` + q + `)`},
		{Name: "link_text", Locate: `() => withText('a', ` + q + `)`},
		{Name: "span_text", Locate: `() => withText('span', ` + q + `)`},
		{Name: "exact_text", Locate: `() => exactText('div, li, td', ` + q + `)`},
		{Name: "any_export_button", Locate: `() => withText('button', '导出')`},
	}
}

const exportEnabledJS = `(el) => !(el.disabled || el.classList.contains('is-disabled') || el.getAttribute('aria-disabled') === 'true')`

// Exporter downloads the report through the page's export button.
type Exporter struct {
	surface    frames.Surface
	downloader Downloader
	namer      ExportNamer
	category   string
	timeout    time.Duration
	logger     *slog.Logger
}

// TryExport clicks the export button named kind and stores the download.
// A missing or disabled button returns an empty path and no error.
func (e *Exporter) TryExport(ctx context.Context, kind, taskName, date, extra string) (string, error) {
	if e.downloader == nil || e.namer == nil {
		return "", nil
	}
	probes := exportProbes(kind)

	var enabled bool
	if _, err := apply(ctx, e.surface, e.logger, "export_button", probes, exportEnabledJS, nil, &enabled); err != nil {
		if crawlerrors.Is(err, crawlerrors.ErrControlNotFound) {
			e.logger.InfoContext(ctx, "export button not found", slog.String("export_type", kind))
			return "", nil
		}
		return "", err
	}
	if !enabled {
		e.logger.InfoContext(ctx, "export button disabled", slog.String("export_type", kind))
		return "", nil
	}

	d, err := e.downloader.Download(ctx, e.timeout, func(ctx context.Context) error {
		_, err := apply(ctx, e.surface, e.logger, "export_button", probes, actClick, nil, nil)
		return err
	})
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(d.SuggestedName)
	if ext == "" {
		ext = ".csv"
	}
	dest := e.namer.ExportPath(e.category, taskName, date, extra, ext)
	if err := moveFile(d.Path, dest); err != nil {
		return "", crawlerrors.StorageError(fmt.Sprintf("failed to store export %s", dest), err)
	}
	return dest, nil
}

// moveFile renames src to dest, copying when they are on different devices.
func moveFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return err
	}
	return os.Remove(src)
}
