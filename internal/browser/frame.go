package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/frames"
)

// ControlSelector matches the interactive controls the portal's report
// frameworks render. A document with none of them is only a shell.
const ControlSelector = "input, button, table, .fr-trigger-editor, .fr-form-imgboard, .el-date-editor, .el-select, .el-input"

const (
	countControlsJS = `document.querySelectorAll(%q).length`
	pendingFramesJS = `document.querySelectorAll('iframe, frame').length`
	probeJS         = `document.readyState`
	renderedJS      = `document.readyState !== 'loading' && !!document.body && document.body.childElementCount > 0`
)

// Host hands out the tab's documents. It keeps no node handles: each call
// walks the live frame tree.
type Host struct {
	session *Session
}

var _ frames.Host = (*Host)(nil)

// Top returns the main document.
func (h *Host) Top() frames.Surface {
	return &frame{session: h.session, top: true}
}

// FrameByID re-acquires the visible top-level embedded frame whose owner
// element carries id.
func (h *Host) FrameByID(ctx context.Context, id string) (frames.Surface, bool, error) {
	children, err := h.Top().Children(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, c := range children {
		if c.ID() == id {
			return c, true, nil
		}
	}
	return nil, false, nil
}

// frame is a document identified by its CDP frame id. The main document has
// an empty id and is looked up from the frame tree root.
type frame struct {
	session *Session
	id      cdp.FrameID
	key     string
	url     string
	top     bool
}

var _ frames.Surface = (*frame)(nil)

func (f *frame) ID() string     { return f.key }
func (f *frame) TopLevel() bool { return f.top }
func (f *frame) URL() string    { return f.url }

func (f *frame) Probe(ctx context.Context) error {
	var state string
	if err := f.Eval(ctx, probeJS, &state); err != nil {
		return crawlerrors.ContextStale("probe", err)
	}
	return nil
}

func (f *frame) CountControls(ctx context.Context) (int, error) {
	var n int
	err := f.Eval(ctx, fmt.Sprintf(countControlsJS, ControlSelector), &n)
	return n, err
}

func (f *frame) PendingChildren(ctx context.Context) (int, error) {
	var n int
	err := f.Eval(ctx, pendingFramesJS, &n)
	return n, err
}

// Children lists the child frames whose owner element has a layout box and
// whose document has rendered a body.
func (f *frame) Children(ctx context.Context) ([]frames.Surface, error) {
	var out []frames.Surface
	err := f.session.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		node := tree
		if !f.top {
			node = findFrame(tree, f.id)
			if node == nil {
				return crawlerrors.ContextStale("children", fmt.Errorf("frame %s detached", f.id))
			}
		}
		for i, child := range node.ChildFrames {
			if child.Frame == nil {
				continue
			}
			owner, visible, err := ownerOf(ctx, child.Frame.ID)
			if err != nil || !visible {
				continue
			}
			c := &frame{
				session: f.session,
				id:      child.Frame.ID,
				key:     frameKey(owner, child.Frame, i),
				url:     child.Frame.URL,
			}
			var rendered bool
			if err := c.evalIn(ctx, renderedJS, &rendered); err != nil || !rendered {
				continue
			}
			out = append(out, c)
		}
		return nil
	}))
	return out, err
}

// Eval runs script in the document's main world so page globals such as
// the report framework's API are reachable.
func (f *frame) Eval(ctx context.Context, script string, out any) error {
	return f.session.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return f.evalIn(ctx, script, out)
	}))
}

func (f *frame) evalIn(ctx context.Context, script string, out any) error {
	if f.top {
		return chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}).Do(ctx)
	}

	owner, _, err := dom.GetFrameOwner(f.id).Do(ctx)
	if err != nil {
		return crawlerrors.ContextStale("eval", err)
	}
	node, err := dom.DescribeNode().WithBackendNodeID(owner).WithDepth(1).WithPierce(true).Do(ctx)
	if err != nil {
		return crawlerrors.ContextStale("eval", err)
	}
	if node.ContentDocument == nil {
		return crawlerrors.ContextStale("eval", fmt.Errorf("frame %s has no document", f.id))
	}
	doc, err := dom.ResolveNode().WithBackendNodeID(node.ContentDocument.BackendNodeID).Do(ctx)
	if err != nil {
		return crawlerrors.ContextStale("eval", err)
	}
	defer func() { _ = runtime.ReleaseObject(doc.ObjectID).Do(ctx) }()

	res, exc, err := runtime.CallFunctionOn(asFunction(script)).
		WithObjectID(doc.ObjectID).
		WithReturnByValue(true).
		WithAwaitPromise(true).
		Do(ctx)
	if err != nil {
		return err
	}
	if exc != nil {
		return exceptionError(exc)
	}
	return decode(res, out)
}

func decode(res *runtime.RemoteObject, out any) error {
	if out == nil || res == nil || res.Type == runtime.TypeUndefined || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

func exceptionError(exc *runtime.ExceptionDetails) error {
	msg := exc.Text
	if exc.Exception != nil && exc.Exception.Description != "" {
		msg = exc.Exception.Description
	}
	return fmt.Errorf("script error: %s", msg)
}

// ownerOf describes a frame's owner element and reports whether it has a
// non-empty layout box.
func ownerOf(ctx context.Context, id cdp.FrameID) (*cdp.Node, bool, error) {
	backend, _, err := dom.GetFrameOwner(id).Do(ctx)
	if err != nil {
		return nil, false, err
	}
	node, err := dom.DescribeNode().WithBackendNodeID(backend).Do(ctx)
	if err != nil {
		return nil, false, err
	}
	box, err := dom.GetBoxModel().WithBackendNodeID(backend).Do(ctx)
	if err != nil {
		// No box model means display:none or detached.
		return node, false, nil
	}
	return node, box.Width > 0 && box.Height > 0, nil
}

// frameKey is the stable identity of a frame across re-renders: the owner
// element's id, then its name, then its position.
func frameKey(owner *cdp.Node, fr *cdp.Frame, index int) string {
	if owner != nil {
		if id := owner.AttributeValue("id"); id != "" {
			return id
		}
		if name := owner.AttributeValue("name"); name != "" {
			return "name:" + name
		}
	}
	if fr != nil && fr.Name != "" {
		return "name:" + fr.Name
	}
	return fmt.Sprintf("index:%d", index)
}

func findFrame(tree *page.FrameTree, id cdp.FrameID) *page.FrameTree {
	if tree == nil {
		return nil
	}
	if tree.Frame != nil && tree.Frame.ID == id {
		return tree
	}
	for _, c := range tree.ChildFrames {
		if found := findFrame(c, id); found != nil {
			return found
		}
	}
	return nil
}
