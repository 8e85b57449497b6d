package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	crawlerrors "spotcrawl/internal/errors"
)

// Download is a file the browser finished saving.
type Download struct {
	// Path is where Chrome wrote the file, named by the download GUID.
	Path string
	// SuggestedName is the file name the server proposed.
	SuggestedName string
}

type downloadEvent struct {
	guid      string
	suggested string
	state     browser.DownloadProgressState
	begin     bool
}

// Download runs trigger and waits up to timeout for the download it starts
// to complete. A trigger that starts no download yields a Timeout error.
func (s *Session) Download(ctx context.Context, timeout time.Duration, trigger func(ctx context.Context) error) (Download, error) {
	dir, err := filepath.Abs(s.cfg.DownloadDir)
	if err != nil {
		return Download{}, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Download{}, crawlerrors.StorageError("failed to create download dir", err)
	}

	lctx, stopListening := context.WithCancel(s.ctx)
	defer stopListening()

	events := make(chan downloadEvent, 32)
	chromedp.ListenTarget(lctx, func(ev interface{}) {
		var de downloadEvent
		switch e := ev.(type) {
		case *browser.EventDownloadWillBegin:
			de = downloadEvent{guid: e.GUID, suggested: e.SuggestedFilename, begin: true}
		case *browser.EventDownloadProgress:
			if e.State == browser.DownloadProgressStateInProgress {
				return
			}
			de = downloadEvent{guid: e.GUID, state: e.State}
		default:
			return
		}
		select {
		case events <- de:
		default:
		}
	})

	behavior := browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
		WithDownloadPath(dir).
		WithEventsEnabled(true)
	if err := s.Run(ctx, behavior); err != nil {
		return Download{}, fmt.Errorf("failed to enable downloads: %w", err)
	}

	if err := trigger(ctx); err != nil {
		return Download{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var d Download
	var guid string
	for {
		select {
		case <-ctx.Done():
			return Download{}, ctx.Err()
		case <-timer.C:
			if guid == "" {
				return Download{}, crawlerrors.Timeout("download", "download to start")
			}
			return Download{}, crawlerrors.Timeout("download", "download to finish").WithContext("file", d.SuggestedName)
		case ev := <-events:
			if ev.begin {
				if guid == "" {
					guid = ev.guid
					d = Download{Path: filepath.Join(dir, ev.guid), SuggestedName: ev.suggested}
					s.logger.DebugContext(ctx, "download started", slog.String("file", ev.suggested))
				}
				continue
			}
			if ev.guid != guid {
				continue
			}
			if ev.state == browser.DownloadProgressStateCanceled {
				return Download{}, crawlerrors.New(crawlerrors.KindInternal, "download", "download was canceled").WithContext("file", d.SuggestedName)
			}
			return d, nil
		}
	}
}
