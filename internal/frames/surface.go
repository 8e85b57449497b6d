package frames

import "context"

// MaxNesting is the deepest embedded surface the portal is known to use.
const MaxNesting = 2

// Surface is a renderable document: the top-level page or an embedded frame.
// Implementations hold only identifiers, never live node handles.
type Surface interface {
	// ID is the owner element id of an embedded surface, "" for the top level.
	ID() string
	// TopLevel reports whether this is the host document.
	TopLevel() bool
	// URL of the document, for logging.
	URL() string
	// Probe evaluates a trivial read against the document. An error means
	// the surface is gone or detached.
	Probe(ctx context.Context) error
	// CountControls returns the number of interactive controls rendered.
	CountControls(ctx context.Context) (int, error)
	// Children returns visible embedded surfaces whose content is rendered.
	Children(ctx context.Context) ([]Surface, error)
	// PendingChildren counts embedded frame elements, rendered or not.
	PendingChildren(ctx context.Context) (int, error)
	// Eval runs a script in the document and decodes its JSON result into out.
	Eval(ctx context.Context, script string, out any) error
}

// Host is the browser tab. It hands out surfaces by identity.
type Host interface {
	// Top returns the host document.
	Top() Surface
	// FrameByID re-acquires the top-level embedded surface whose owner
	// element has the given id. ok is false when it is missing or hidden.
	FrameByID(ctx context.Context, id string) (s Surface, ok bool, err error)
}

// PageContext is the orchestrator's handle to the current working surface.
// Only Resolver creates it. A context that fails IsValid is never used.
type PageContext struct {
	Surface     Surface
	TopLevel    bool
	LastKnownID string
	// Degraded is set when no nested surface with controls was found and
	// the top-level document stands in.
	Degraded bool
}

func nested(s Surface) *PageContext {
	return &PageContext{Surface: s, LastKnownID: s.ID()}
}

func degraded(top Surface) *PageContext {
	return &PageContext{Surface: top, TopLevel: true, Degraded: true}
}
