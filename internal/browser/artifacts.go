package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"

	"spotcrawl/internal/menu"
)

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}_\-]+`)

// Artifacts saves full-page screenshots for post-mortem diagnosis.
type Artifacts struct {
	session *Session
	dir     string
	logger  *slog.Logger
}

var _ menu.Artifacts = (*Artifacts)(nil)

// Capture writes debug_<name>_<timestamp>.jpg and returns its path.
func (a *Artifacts) Capture(ctx context.Context, name string) (string, error) {
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return "", err
	}
	var buf []byte
	if err := a.session.Run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}
	path := filepath.Join(a.dir, artifactName(name, time.Now()))
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return "", err
	}
	a.logger.InfoContext(ctx, "diagnostic screenshot saved", slog.String("path", path))
	return path, nil
}

func artifactName(name string, at time.Time) string {
	return fmt.Sprintf("debug_%s_%s.jpg", unsafeName.ReplaceAllString(name, "_"), at.Format("20060102_150405"))
}
