package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"spotcrawl/internal/menu"
)

const treePoll = 250 * time.Millisecond

// Node rows are matched on the title attribute of their label span, which
// carries the exact menu text. Only rendered rows count for clicks; the
// expand state is also read from hidden rows.
const treeNodeJS = `(sel, label, part) => {
	const tree = document.querySelector(sel);
	if (!tree) return {found: false};
	const spans = Array.from(tree.querySelectorAll('.el-tree-node__content span[title]'))
		.filter(s => s.getAttribute('title') === label);
	const visible = spans.find(s => s.getClientRects().length > 0);
	const span = visible || (part ? null : spans[0]);
	if (!span) return {found: false};
	const content = span.closest('.el-tree-node__content');
	const item = content.closest('[role="treeitem"]');
	const expanded = !!item && (item.getAttribute('aria-expanded') === 'true' || item.classList.contains('is-expanded'));
	let target = content;
	if (part === 'toggle') {
		target = content.querySelector('.el-tree-node__expand-icon') || content;
	}
	if (part) {
		target.scrollIntoView({block: 'center', inline: 'nearest'});
	}
	const r = target.getBoundingClientRect();
	return {found: true, visible: !!visible, expanded: expanded, x: r.left + r.width / 2, y: r.top + r.height / 2, width: r.width, height: r.height};
}`

type treeNode struct {
	Found    bool    `json:"found"`
	Visible  bool    `json:"visible"`
	Expanded bool    `json:"expanded"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// Tree drives the sidebar's el-tree in the main document.
type Tree struct {
	session  *Session
	selector string
}

var _ menu.Tree = (*Tree)(nil)

func (t *Tree) lookup(ctx context.Context, label, part string) (treeNode, error) {
	var n treeNode
	err := t.session.Run(ctx, chromedp.Evaluate(Script(treeNodeJS, t.selector, label, part), &n))
	return n, err
}

// WaitReady polls until a rendered row carries label. The caller bounds the
// wait through ctx.
func (t *Tree) WaitReady(ctx context.Context, label string) error {
	for {
		n, err := t.lookup(ctx, label, "")
		if err == nil && n.Found && n.Visible {
			return nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("%w: %v", ctx.Err(), err)
			}
			return ctx.Err()
		case <-time.After(treePoll):
		}
	}
}

func (t *Tree) Expanded(ctx context.Context, label string) (bool, error) {
	n, err := t.lookup(ctx, label, "")
	if err != nil {
		return false, err
	}
	if !n.Found {
		return false, menu.ErrNodeNotFound
	}
	return n.Expanded, nil
}

func (t *Tree) Click(ctx context.Context, label string) error {
	return t.click(ctx, label, "row")
}

func (t *Tree) ClickToggle(ctx context.Context, label string) error {
	return t.click(ctx, label, "toggle")
}

func (t *Tree) click(ctx context.Context, label, part string) error {
	n, err := t.lookup(ctx, label, part)
	if err != nil {
		return err
	}
	if !n.Found || n.Width == 0 || n.Height == 0 {
		return menu.ErrNodeNotFound
	}
	return t.session.Run(ctx, mouseClick(n.X, n.Y))
}

// mouseClick moves to and clicks the viewport point with real input events,
// which the tree's Vue handlers require.
func mouseClick(x, y float64) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).
			WithClickCount(1).
			Do(ctx)
	})
}
