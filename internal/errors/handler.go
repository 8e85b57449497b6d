package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// ErrorHandler answers status server requests that fail with problem details.
// The kind of a CrawlError picks the HTTP status, see StatusOf.
type ErrorHandler struct {
	logger *slog.Logger
}

func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger.With(slog.String("component", "error_handler"))}
}

// HandleError logs err against the request and writes its problem details.
// A nil error writes nothing.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	problem := h.ErrorToProblem(err, r)
	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	h.write(w, r, problem)
}

// ErrorToProblem builds the problem details for err. Context expiry counts as
// a timeout; errors without a kind are internal.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	var ce *CrawlError
	switch {
	case goerrors.As(err, &ce):
		status, typ := StatusOf(ce.Kind)
		p := NewProblemDetails(status, typ, http.StatusText(status), ce.Error(), r.URL.Path).
			WithExtension("kind", string(ce.Kind))
		if ce.Op != "" {
			p.WithExtension("op", ce.Op)
		}
		return p
	case goerrors.Is(err, context.DeadlineExceeded), goerrors.Is(err, context.Canceled):
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout,
			http.StatusText(http.StatusGatewayTimeout), "operation did not finish in time", r.URL.Path)
	default:
		return NewProblemDetails(http.StatusInternalServerError, TypeInternal,
			http.StatusText(http.StatusInternalServerError), "unexpected error", r.URL.Path)
	}
}

// HandlePanic logs the recovered value with its stack and answers 500.
// Neither is echoed to the client.
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered any) {
	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("stack", string(debug.Stack())),
	)
	h.write(w, r, NewProblemDetails(http.StatusInternalServerError, TypeInternal,
		http.StatusText(http.StatusInternalServerError), "unexpected error", r.URL.Path))
}

func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, NewProblemDetails(http.StatusNotFound, TypeNotFound,
		http.StatusText(http.StatusNotFound), "no such endpoint", r.URL.Path))
}

func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, NewProblemDetails(http.StatusMethodNotAllowed, TypeMethodNotAllowed,
		http.StatusText(http.StatusMethodNotAllowed), fmt.Sprintf("%s is not supported here", r.Method), r.URL.Path))
}

func (h *ErrorHandler) write(w http.ResponseWriter, r *http.Request, p *ProblemDetails) {
	if id := middleware.GetReqID(r.Context()); id != "" {
		p.WithExtension("request_id", id)
	}
	render.Render(w, r, p)
}
