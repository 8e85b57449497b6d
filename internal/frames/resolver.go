package frames

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"spotcrawl/internal/config"
	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/infrastructure"
	"spotcrawl/internal/retry"
)

var errNoSurface = errors.New("no embedded surface with controls")

// Recorder receives resolution results for metrics.
type Recorder interface {
	SurfaceResolved(ctx context.Context, degraded bool)
}

// Resolver finds the innermost surface that hosts controls and re-acquires
// it when the application swaps it out.
type Resolver struct {
	host     Host
	logger   *slog.Logger
	ensure   retry.Policy
	mount    retry.Policy
	settle   time.Duration
	sleep    retry.SleepFunc
	strict   bool
	recorder Recorder

	// rememberedID is the owner id of the top-level frame chosen last time.
	rememberedID string
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithStrict makes resolution fail with a Stale error instead of degrading
// to the top-level document.
func WithStrict(strict bool) Option {
	return func(r *Resolver) { r.strict = strict }
}

// WithSleep replaces the timer used for settle delays and backoff.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(r *Resolver) { r.sleep = sleep }
}

// WithRecorder reports resolution results.
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) { r.recorder = rec }
}

// WithTiming overrides attempts, backoff and the settle delay.
func WithTiming(attempts int, backoff, settle time.Duration) Option {
	return func(r *Resolver) {
		r.ensure = retry.Fixed(attempts, backoff)
		r.mount = retry.Fixed(attempts, backoff)
		r.settle = settle
	}
}

// NewResolver creates a resolver over host
func NewResolver(host Host, opts ...Option) *Resolver {
	r := &Resolver{
		host:   host,
		logger: infrastructure.GetLogger(),
		ensure: retry.Fixed(config.SurfaceAttempts, config.SurfaceBackoff),
		mount:  retry.Fixed(config.SurfaceAttempts, config.SurfaceBackoff),
		settle: config.SurfaceSettle,
		sleep:  retry.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = infrastructure.WithComponent(r.logger, "frames")
	r.ensure.Sleep = r.sleep
	r.mount.Sleep = r.sleep
	r.ensure.OnRetry = func(s retry.State, err error) {
		r.logger.Warn("surface_resolve_retry",
			slog.Int("attempt", s.Attempt),
			slog.Int("max_attempts", s.MaxAttempts),
			slog.Duration("delay", s.Delay))
	}
	return r
}

// Reset forgets the remembered surface. A new task may live in a
// different frame than the previous one.
func (r *Resolver) Reset() {
	r.rememberedID = ""
}

// RememberedID returns the owner id used for the fast path.
func (r *Resolver) RememberedID() string {
	return r.rememberedID
}

// Resolve returns a context for the innermost surface with controls. When
// none exists the top-level document is returned in degraded mode, or a
// Stale error in strict mode.
func (r *Resolver) Resolve(ctx context.Context) (*PageContext, error) {
	pc, err := r.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if pc != nil {
		r.logger.DebugContext(ctx, "surface_resolved",
			slog.String("frame_id", pc.LastKnownID),
			slog.String("url", pc.Surface.URL()))
		r.record(ctx, false)
		return pc, nil
	}
	return r.fallback(ctx, "resolve", errNoSurface)
}

// IsValid probes the surface. The top-level document is always valid; a
// failing probe means invalid and is never propagated.
func (r *Resolver) IsValid(ctx context.Context, pc *PageContext) bool {
	if pc == nil || pc.Surface == nil {
		return false
	}
	if pc.TopLevel {
		return true
	}
	if err := pc.Surface.Probe(ctx); err != nil {
		r.logger.DebugContext(ctx, "surface_probe_failed",
			slog.String("frame_id", pc.LastKnownID),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// EnsureValid returns pc when it is still live. Otherwise it waits for the
// page to settle and re-resolves with bounded fixed-backoff retries before
// degrading. A degraded context gets one immediate re-resolve so a frame
// that mounted late is picked up.
func (r *Resolver) EnsureValid(ctx context.Context, pc *PageContext) (*PageContext, error) {
	if pc != nil && pc.Degraded {
		fresh, err := r.resolve(ctx)
		if err != nil {
			return nil, err
		}
		if fresh != nil {
			r.logger.InfoContext(ctx, "surface_recovered_from_degraded",
				slog.String("frame_id", fresh.LastKnownID))
			r.record(ctx, false)
			return fresh, nil
		}
		return pc, nil
	}

	if r.IsValid(ctx, pc) {
		return pc, nil
	}

	lastID := ""
	if pc != nil {
		lastID = pc.LastKnownID
	}
	r.logger.WarnContext(ctx, "surface_invalid_reresolving", slog.String("frame_id", lastID))

	if err := r.sleep(ctx, r.settle); err != nil {
		return nil, err
	}

	var result *PageContext
	err := r.ensure.Do(ctx, func(ctx context.Context, s retry.State) error {
		fresh, err := r.resolve(ctx)
		if err != nil {
			return err
		}
		if fresh == nil {
			return errNoSurface
		}
		result = fresh
		return nil
	})
	if result != nil {
		r.logger.InfoContext(ctx, "surface_reacquired", slog.String("frame_id", result.LastKnownID))
		r.record(ctx, false)
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return r.fallback(ctx, "ensure_valid", err)
}

// fallback degrades to the top-level document, or fails in strict mode.
func (r *Resolver) fallback(ctx context.Context, op string, cause error) (*PageContext, error) {
	if r.strict {
		return nil, crawlerrors.ContextStale(op, cause)
	}
	r.logger.WarnContext(ctx, "surface_degraded_to_top_level",
		slog.String("op", op),
		slog.String("reason", cause.Error()))
	r.record(ctx, true)
	return degraded(r.host.Top()), nil
}

// resolve runs one pass of the strategy. A nil context with nil error means
// nothing with controls was found. Only context errors are returned.
func (r *Resolver) resolve(ctx context.Context) (*PageContext, error) {
	if id := r.rememberedID; id != "" {
		s, ok, err := r.host.FrameByID(ctx, id)
		if err == nil && ok {
			if inner := r.acquire(ctx, s); inner != nil {
				return r.choose(s, inner), nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.DebugContext(ctx, "surface_fast_path_missed", slog.String("frame_id", id))
	}

	children, err := r.host.Top().Children(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.WarnContext(ctx, "surface_enumeration_failed", slog.String("error", err.Error()))
		return nil, nil
	}

	for _, child := range children {
		if inner := r.acquire(ctx, child); inner != nil {
			return r.choose(child, inner), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}
	return nil, nil
}

// acquire finds the surface with controls inside a top-level frame. When
// the frame has no controls yet but holds an embedded frame that has not
// rendered, it waits for the inner frame to mount.
func (r *Resolver) acquire(ctx context.Context, s Surface) Surface {
	if found := r.descend(ctx, s, 1); found != nil {
		return found
	}

	pending, err := s.PendingChildren(ctx)
	if err != nil || pending == 0 {
		return nil
	}

	r.logger.InfoContext(ctx, "surface_waiting_for_nested_mount",
		slog.String("frame_id", s.ID()),
		slog.Int("pending", pending))

	if err := r.sleep(ctx, r.mount.InitialDelay); err != nil {
		return nil
	}

	var found Surface
	_ = r.mount.Do(ctx, func(ctx context.Context, st retry.State) error {
		if f := r.descend(ctx, s, 1); f != nil {
			found = f
			return nil
		}
		return errNoSurface
	})
	return found
}

// descend prefers the deepest surface with controls, bounded by MaxNesting.
func (r *Resolver) descend(ctx context.Context, s Surface, level int) Surface {
	if level < MaxNesting {
		if children, err := s.Children(ctx); err == nil {
			for _, c := range children {
				if found := r.descend(ctx, c, level+1); found != nil {
					return found
				}
			}
		}
	}
	if n, err := s.CountControls(ctx); err == nil && n > 0 {
		return s
	}
	return nil
}

func (r *Resolver) choose(outer, inner Surface) *PageContext {
	r.rememberedID = outer.ID()
	pc := nested(inner)
	pc.LastKnownID = outer.ID()
	return pc
}

func (r *Resolver) record(ctx context.Context, degraded bool) {
	if r.recorder != nil {
		r.recorder.SurfaceResolved(ctx, degraded)
	}
}
