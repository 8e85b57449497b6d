package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"spotcrawl/internal/config"
	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/infrastructure"
)

const (
	ModeConnect = "connect"
	ModeLaunch  = "launch"
)

// Session is one browser tab driven over CDP.
type Session struct {
	cfg    config.BrowserConfig
	logger *slog.Logger

	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc

	// ctx is the chromedp context bound to the working tab.
	ctx context.Context

	idle *idleTracker

	mu     sync.Mutex
	closed bool
}

// Open connects to or launches Chrome according to cfg.Mode and binds the
// session to the working tab.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	s := &Session{
		cfg:    cfg,
		logger: infrastructure.WithComponent(logger, "browser"),
		idle:   newIdleTracker(),
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	var err error
	switch cfg.Mode {
	case ModeLaunch:
		err = s.launch(ctx)
	default:
		err = s.connect(ctx)
	}
	if err != nil {
		s.Close()
		return nil, err
	}

	chromedp.ListenTarget(s.ctx, s.idle.handle)
	if err := s.Run(ctx, network.Enable()); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to enable network events: %w", err)
	}
	return s, nil
}

func (s *Session) connect(ctx context.Context) error {
	s.logger.InfoContext(ctx, "connecting to chrome", slog.String("cdp_url", s.cfg.CDPURL))

	info, err := s.findTab(ctx)
	if err != nil {
		return err
	}

	// The attached tab must be the allocator's first context: chromedp closes
	// the targets of secondary contexts on cancel, which would close the
	// user's logged-in tab.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), s.cfg.CDPURL)
	s.allocCancel = allocCancel
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(info.TargetID))
	s.ctx, s.tabCancel = tabCtx, tabCancel

	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("failed to attach to tab %s: %w", info.URL, err)
	}
	s.logger.InfoContext(ctx, "attached to existing tab", slog.String("url", info.URL))
	return nil
}

// findTab lists the browser's targets over a short-lived connection.
func (s *Session) findTab(ctx context.Context) (*target.Info, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), s.cfg.CDPURL)
	defer allocCancel()
	probeCtx, probeCancel := chromedp.NewContext(allocCtx)
	defer probeCancel()

	lctx, cancel := context.WithTimeout(probeCtx, s.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	infos, err := chromedp.Targets(lctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chrome at %s (start it with --remote-debugging-port): %w", s.cfg.CDPURL, err)
	}

	info, ok := matchTarget(infos, s.cfg.TargetURLPattern)
	if !ok {
		for _, t := range infos {
			if t.Type == "page" {
				s.logger.WarnContext(ctx, "open tab", slog.String("url", t.URL))
			}
		}
		return nil, crawlerrors.ConfigError(fmt.Sprintf("no open tab matches %q, log in to the portal first", s.cfg.TargetURLPattern), nil)
	}
	return info, nil
}

// matchTarget picks the first page target whose URL contains pattern.
func matchTarget(infos []*target.Info, pattern string) (*target.Info, bool) {
	for _, t := range infos {
		if t.Type != "page" {
			continue
		}
		if pattern == "" || strings.Contains(t.URL, pattern) {
			return t, true
		}
	}
	return nil, false
}

func (s *Session) launch(ctx context.Context) error {
	headless := s.cfg.Headless
	if !headless && runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		headless = true
		s.logger.InfoContext(ctx, "no display found, forcing headless mode")
	}
	s.logger.InfoContext(ctx, "launching chrome", slog.Bool("headless", headless))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), launchOptions(s.cfg, headless)...)
	s.allocCancel = allocCancel
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s.ctx, s.tabCancel = tabCtx, tabCancel

	// The first Run starts the browser and opens the tab.
	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("failed to launch chrome: %w", err)
	}
	return nil
}

// launchOptions builds the exec allocator flags. Site isolation is disabled
// so embedded report frames share the tab's session.
func launchOptions(cfg config.BrowserConfig, headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Run executes actions on the tab with the session timeout. The call is also
// cancelled when ctx ends.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	return s.RunWithTimeout(ctx, s.cfg.Timeout, actions...)
}

// RunWithTimeout is Run with an explicit timeout.
func (s *Session) RunWithTimeout(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.ctx == nil {
		return crawlerrors.New(crawlerrors.KindInternal, "browser", "session is not open")
	}
	tctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if s.cfg.SlowMo > 0 && len(actions) > 0 {
		actions = append([]chromedp.Action{chromedp.Sleep(s.cfg.SlowMo)}, actions...)
	}
	err := chromedp.Run(tctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url in the tab and waits for the network to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.InfoContext(ctx, "navigating", slog.String("url", url))
	if err := s.Run(ctx, chromedp.Navigate(url)); err != nil {
		return crawlerrors.Wrap(crawlerrors.KindNavigationFailure, "navigate", err, "failed to load "+url)
	}
	if err := s.WaitIdle(ctx); err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "network did not settle after navigation", slog.String("error", err.Error()))
	}
	return nil
}

// URL returns the tab's current location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var url string
	err := s.Run(ctx, chromedp.Location(&url))
	return url, err
}

// Close releases the session. In connect mode only the CDP connection is
// dropped and the tab stays open.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	if s.cfg.Mode == ModeLaunch {
		s.logger.Info("closing browser")
	} else {
		s.logger.Info("disconnecting from chrome, leaving it running")
	}
	for _, cancel := range []context.CancelFunc{s.tabCancel, s.allocCancel} {
		if cancel != nil {
			cancel()
		}
	}
}

// Host exposes the tab's documents to the frame resolver.
func (s *Session) Host() *Host {
	return &Host{session: s}
}

// Tree exposes the sidebar navigation tree.
func (s *Session) Tree(selector string) *Tree {
	return &Tree{session: s, selector: selector}
}

// Artifacts writes diagnostic screenshots into dir.
func (s *Session) Artifacts(dir string) *Artifacts {
	return &Artifacts{session: s, dir: dir, logger: s.logger}
}
