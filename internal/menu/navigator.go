package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spotcrawl/internal/config"
	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/infrastructure"
	"spotcrawl/internal/retry"
)

var errStillCollapsed = errors.New("node still collapsed after click")

// Navigator walks the tree to leaf pages. One Navigator serves one browser
// tab; its memo fields are reset whenever the page reloads.
type Navigator struct {
	tree      Tree
	artifacts Artifacts
	logger    *slog.Logger
	rootLabel string

	expand       retry.Policy
	observe      time.Duration
	pollInterval time.Duration
	readyWait    time.Duration
	sleep        retry.SleepFunc

	rootExpanded    bool
	currentCategory string
}

// Option configures a Navigator
type Option func(*Navigator)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(n *Navigator) { n.logger = l }
}

// WithArtifacts enables diagnostic captures on failure.
func WithArtifacts(a Artifacts) Option {
	return func(n *Navigator) { n.artifacts = a }
}

// WithRootLabel sets the label of the top-level entry node.
func WithRootLabel(label string) Option {
	return func(n *Navigator) { n.rootLabel = label }
}

// WithSleep replaces the timer used while observing expansion.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(n *Navigator) { n.sleep = sleep }
}

// WithObservation sets how long and how often expansion is polled after a click.
func WithObservation(window, poll time.Duration) Option {
	return func(n *Navigator) {
		n.observe = window
		n.pollInterval = poll
	}
}

// NewNavigator creates a navigator over tree
func NewNavigator(tree Tree, opts ...Option) *Navigator {
	n := &Navigator{
		tree:         tree,
		logger:       infrastructure.GetLogger(),
		rootLabel:    "信息披露",
		expand:       retry.Fixed(config.ExpandAttempts, 0),
		observe:      config.ExpandObservation,
		pollInterval: config.ExpandPollInterval,
		readyWait:    config.SidebarReadyWait,
		sleep:        retry.Sleep,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = infrastructure.WithComponent(n.logger, "menu")
	n.expand.Sleep = n.sleep
	return n
}

// Reset clears the memo of what was expanded. Call it after the page has
// been reloaded.
func (n *Navigator) Reset() {
	n.rootExpanded = false
	n.currentCategory = ""
}

// WaitReady waits for the tree to render the root entry. A tree that never
// shows up is logged with an artifact; navigation will then fail on its own.
func (n *Navigator) WaitReady(ctx context.Context) error {
	wctx, cancel := context.WithTimeout(ctx, n.readyWait)
	defer cancel()

	if err := n.tree.WaitReady(wctx, n.rootLabel); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.logger.WarnContext(ctx, "sidebar_not_ready",
			slog.String("root", n.rootLabel),
			slog.String("error", err.Error()))
		n.capture(ctx, "sidebar_not_ready")
		return crawlerrors.Wrap(crawlerrors.KindTimeout, "wait_sidebar", err, "navigation tree did not render")
	}
	n.logger.InfoContext(ctx, "sidebar_ready")
	return nil
}

// Observe reads a node's live state.
func (n *Navigator) Observe(ctx context.Context, label string, level Level) (Node, error) {
	expanded, err := n.tree.Expanded(ctx, label)
	if err != nil {
		return Node{Label: label, Level: level}, err
	}
	return Node{Label: label, Level: level, Expanded: expanded}, nil
}

// Expand opens the node unless the live tree already shows it open. Every
// attempt reads the node first: the first click goes to the row, a second to
// the expand icon. A node whose state cannot be read is never clicked, since
// clicking an open node collapses it.
func (n *Navigator) Expand(ctx context.Context, label string) error {
	clicks := 0
	err := n.expand.Do(ctx, func(ctx context.Context, s retry.State) error {
		expanded, err := n.isExpanded(ctx, label)
		if err != nil {
			n.logger.DebugContext(ctx, "menu_node_unreadable",
				slog.String("label", label),
				slog.Int("attempt", s.Attempt),
				slog.String("error", err.Error()))
			return err
		}
		if expanded {
			return nil
		}

		click := n.tree.Click
		if clicks > 0 {
			click = n.tree.ClickToggle
			n.logger.DebugContext(ctx, "menu_node_retry_via_icon", slog.String("label", label))
		} else {
			n.logger.InfoContext(ctx, "menu_node_expanding", slog.String("label", label))
		}
		clicks++
		if err := click(ctx, label); err != nil {
			return err
		}
		return n.awaitExpanded(ctx, label)
	})
	if err == nil {
		if clicks == 0 {
			n.logger.DebugContext(ctx, "menu_node_already_expanded", slog.String("label", label))
		} else {
			n.logger.InfoContext(ctx, "menu_node_expanded", slog.String("label", label))
		}
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	path := n.capture(ctx, "expand_failed_"+label)
	return crawlerrors.NavigationFailure("expand", label, fmt.Sprintf("could not expand %q: %v", label, err)).
		WithContext("artifact", path)
}

// ClickLeaf scrolls the leaf into view and clicks it. The caller waits for
// the page transition.
func (n *Navigator) ClickLeaf(ctx context.Context, label string) error {
	n.logger.InfoContext(ctx, "menu_leaf_clicking", slog.String("label", label))

	if err := n.tree.Click(ctx, label); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		path := n.capture(ctx, "leaf_failed_"+label)
		return crawlerrors.NavigationFailure("click_leaf", label, fmt.Sprintf("could not open page %q: %v", label, err)).
			WithContext("artifact", path)
	}
	return nil
}

// NavigateTo opens root, category and every intermediate segment, then
// clicks the leaf. A segment that fails to expand is logged and skipped
// since it may already be open implicitly; root, category and leaf
// failures are returned.
func (n *Navigator) NavigateTo(ctx context.Context, category, leaf string, sub []string) error {
	n.logger.InfoContext(ctx, "menu_navigating",
		slog.String("category", category),
		slog.String("leaf", leaf),
		slog.Any("path", sub))

	for _, node := range Path(n.rootLabel, category, leaf, sub) {
		switch node.Level {
		case LevelRoot:
			if n.rootExpanded && n.observedOpen(ctx, node.Label) {
				continue
			}
			if err := n.Expand(ctx, node.Label); err != nil {
				return err
			}
			n.rootExpanded = true

		case LevelCategory:
			if n.currentCategory == node.Label && n.observedOpen(ctx, node.Label) {
				continue
			}
			if err := n.Expand(ctx, node.Label); err != nil {
				return err
			}
			n.currentCategory = node.Label

		case LevelSub:
			if err := n.Expand(ctx, node.Label); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				n.logger.WarnContext(ctx, "menu_segment_skipped",
					slog.String("label", node.Label),
					slog.String("error", err.Error()))
			}

		case LevelLeaf:
			if err := n.ClickLeaf(ctx, node.Label); err != nil {
				return err
			}
		}
	}

	n.logger.InfoContext(ctx, "menu_navigated", slog.String("leaf", leaf))
	return nil
}

// awaitExpanded polls the live state for the observation window. A read
// that keeps failing until the window closes is returned as is.
func (n *Navigator) awaitExpanded(ctx context.Context, label string) error {
	var waited time.Duration
	last := errStillCollapsed
	for waited < n.observe {
		if err := n.sleep(ctx, n.pollInterval); err != nil {
			return err
		}
		waited += n.pollInterval
		expanded, err := n.isExpanded(ctx, label)
		if err == nil && expanded {
			return nil
		}
		last = errStillCollapsed
		if err != nil {
			last = err
		}
		if n.pollInterval <= 0 {
			break
		}
	}
	return last
}

func (n *Navigator) isExpanded(ctx context.Context, label string) (bool, error) {
	node, err := n.Observe(ctx, label, LevelSub)
	if err != nil {
		return false, err
	}
	return node.Expanded, nil
}

// observedOpen backs the memo checks; an unreadable node falls through to
// Expand, which reads it again before any click.
func (n *Navigator) observedOpen(ctx context.Context, label string) bool {
	expanded, err := n.isExpanded(ctx, label)
	return err == nil && expanded
}

func (n *Navigator) capture(ctx context.Context, name string) string {
	if n.artifacts == nil {
		return ""
	}
	path, err := n.artifacts.Capture(ctx, name)
	if err != nil {
		n.logger.WarnContext(ctx, "artifact_capture_failed",
			slog.String("name", name),
			slog.String("error", err.Error()))
		return ""
	}
	n.logger.InfoContext(ctx, "artifact_captured", slog.String("path", path))
	return path
}
