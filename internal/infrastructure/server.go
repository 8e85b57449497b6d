package infrastructure

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	crawlerrors "spotcrawl/internal/errors"
)

const shutdownTimeout = 5 * time.Second

// StatusFunc returns a JSON-serialisable snapshot of crawler progress.
type StatusFunc func() any

// HealthFunc returns the error that aborted the last run, nil when healthy.
type HealthFunc func() error

// StatusServer exposes /healthz, /status and /metrics while the crawler runs
type StatusServer struct {
	addr    string
	handler http.Handler
	logger  *slog.Logger
}

// NewStatusServer builds the router. metrics, status and health may be nil.
// A failing health check is answered with the problem details of its error.
func NewStatusServer(addr string, metrics http.Handler, status StatusFunc, health HealthFunc, logger *slog.Logger) *StatusServer {
	if logger == nil {
		logger = GetLogger()
	}

	logger = WithComponent(logger, "status_server")
	errs := crawlerrors.NewErrorHandler(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(crawlerrors.RequestLogger(logger))
	r.Use(crawlerrors.RecoveryMiddleware(errs))
	r.NotFound(errs.NotFound)
	r.MethodNotAllowed(errs.MethodNotAllowed)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				errs.HandleError(w, r, err)
				return
			}
		}
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		if status == nil {
			render.Render(w, r, crawlerrors.NewProblemDetails(http.StatusServiceUnavailable,
				crawlerrors.TypeServiceDown, "Service Unavailable", "status unavailable", r.URL.Path))
			return
		}
		render.JSON(w, r, status())
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	return &StatusServer{addr: addr, handler: r, logger: logger}
}

// Handler returns the router, mainly for tests
func (s *StatusServer) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *StatusServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "Status server listening", slog.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
