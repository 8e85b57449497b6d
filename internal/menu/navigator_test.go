package menu

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/infrastructure"
)

type fakeNode struct {
	expanded bool
	leaf     bool
	// rowInert means clicking the row does nothing; only the icon toggles.
	rowInert bool
	// stuck nodes never open.
	stuck bool
	// openAfterPolls delays the visible state change after a click.
	openAfterPolls int
	pendingPolls   int
	pending        bool
	// readFailures makes that many state reads fail before reads succeed.
	readFailures int
}

type fakeTree struct {
	nodes   map[string]*fakeNode
	clicks  []string
	toggles []string
	notReady bool
}

func newFakeTree(labels ...string) *fakeTree {
	t := &fakeTree{nodes: make(map[string]*fakeNode)}
	for _, l := range labels {
		t.nodes[l] = &fakeNode{}
	}
	return t
}

func (t *fakeTree) WaitReady(ctx context.Context, label string) error {
	if t.notReady {
		return errors.New("tree not rendered")
	}
	return nil
}

func (t *fakeTree) Expanded(ctx context.Context, label string) (bool, error) {
	n, ok := t.nodes[label]
	if !ok {
		return false, ErrNodeNotFound
	}
	if n.readFailures != 0 {
		if n.readFailures > 0 {
			n.readFailures--
		}
		return false, crawlerrors.ContextStale("expanded", errors.New("frame detached"))
	}
	if n.pending {
		n.pendingPolls--
		if n.pendingPolls <= 0 {
			n.pending = false
			n.expanded = true
		}
	}
	return n.expanded, nil
}

func (t *fakeTree) toggle(n *fakeNode) {
	if n.leaf || n.stuck {
		return
	}
	if n.expanded {
		n.expanded = false
		return
	}
	if n.openAfterPolls > 0 {
		n.pending = true
		n.pendingPolls = n.openAfterPolls
		return
	}
	n.expanded = true
}

func (t *fakeTree) Click(ctx context.Context, label string) error {
	n, ok := t.nodes[label]
	if !ok {
		return ErrNodeNotFound
	}
	t.clicks = append(t.clicks, label)
	if !n.rowInert {
		t.toggle(n)
	}
	return nil
}

func (t *fakeTree) ClickToggle(ctx context.Context, label string) error {
	n, ok := t.nodes[label]
	if !ok {
		return ErrNodeNotFound
	}
	t.toggles = append(t.toggles, label)
	t.toggle(n)
	return nil
}

type fakeArtifacts struct{ names []string }

func (a *fakeArtifacts) Capture(ctx context.Context, name string) (string, error) {
	a.names = append(a.names, name)
	return "/tmp/debug/" + name + ".png", nil
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newTestNavigator(tree Tree, art Artifacts) *Navigator {
	return NewNavigator(tree,
		WithLogger(infrastructure.NewLogger(io.Discard, "debug")),
		WithArtifacts(art),
		WithRootLabel("信息披露"),
		WithSleep(noSleep),
		WithObservation(time.Second, 250*time.Millisecond),
	)
}

func TestExpand_ClicksCollapsedNode(t *testing.T) {
	tree := newFakeTree("现货实时数据")
	nav := newTestNavigator(tree, &fakeArtifacts{})

	require.NoError(t, nav.Expand(context.Background(), "现货实时数据"))

	assert.True(t, tree.nodes["现货实时数据"].expanded)
	assert.Equal(t, []string{"现货实时数据"}, tree.clicks)
	assert.Empty(t, tree.toggles)
}

func TestExpand_IsIdempotent(t *testing.T) {
	tree := newFakeTree("现货实时数据")
	tree.nodes["现货实时数据"].expanded = true
	nav := newTestNavigator(tree, &fakeArtifacts{})
	ctx := context.Background()

	require.NoError(t, nav.Expand(ctx, "现货实时数据"))
	require.NoError(t, nav.Expand(ctx, "现货实时数据"))

	assert.True(t, tree.nodes["现货实时数据"].expanded)
	assert.Empty(t, tree.clicks, "an expanded node must never be clicked")
}

func TestExpand_WaitsForAnimationWithoutReclicking(t *testing.T) {
	tree := newFakeTree("综合查询")
	tree.nodes["综合查询"].openAfterPolls = 3
	nav := newTestNavigator(tree, &fakeArtifacts{})

	require.NoError(t, nav.Expand(context.Background(), "综合查询"))

	assert.Len(t, tree.clicks, 1)
	assert.Empty(t, tree.toggles)
}

func TestExpand_FallsBackToIcon(t *testing.T) {
	tree := newFakeTree("供需与约束")
	tree.nodes["供需与约束"].rowInert = true
	nav := newTestNavigator(tree, &fakeArtifacts{})

	require.NoError(t, nav.Expand(context.Background(), "供需与约束"))

	assert.Equal(t, []string{"供需与约束"}, tree.clicks)
	assert.Equal(t, []string{"供需与约束"}, tree.toggles)
	assert.True(t, tree.nodes["供需与约束"].expanded)
}

func TestExpand_FailureCapturesArtifact(t *testing.T) {
	tree := newFakeTree("参数信息")
	tree.nodes["参数信息"].stuck = true
	art := &fakeArtifacts{}
	nav := newTestNavigator(tree, art)

	err := nav.Expand(context.Background(), "参数信息")

	require.Error(t, err)
	assert.True(t, errors.Is(err, crawlerrors.ErrNavigationFailure))
	assert.Equal(t, []string{"expand_failed_参数信息"}, art.names)
	assert.Len(t, tree.clicks, 1)
	assert.Len(t, tree.toggles, 1, "bounded to two click attempts")

	var ce *crawlerrors.CrawlError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "/tmp/debug/expand_failed_参数信息.png", ce.Context["artifact"])
}

func TestExpand_MissingNode(t *testing.T) {
	art := &fakeArtifacts{}
	nav := newTestNavigator(newFakeTree(), art)

	err := nav.Expand(context.Background(), "不存在")

	assert.True(t, errors.Is(err, crawlerrors.ErrNavigationFailure))
	assert.Len(t, art.names, 1)
}

func TestExpand_UnreadableOpenNodeIsNotClicked(t *testing.T) {
	tree := newFakeTree("现货实时数据")
	node := tree.nodes["现货实时数据"]
	node.expanded = true
	node.readFailures = 1
	nav := newTestNavigator(tree, &fakeArtifacts{})

	require.NoError(t, nav.Expand(context.Background(), "现货实时数据"))

	assert.True(t, node.expanded, "a failed read must not lead to a collapsing click")
	assert.Empty(t, tree.clicks)
	assert.Empty(t, tree.toggles)
}

func TestExpand_PersistentReadFailureIsReturned(t *testing.T) {
	tree := newFakeTree("现货实时数据")
	node := tree.nodes["现货实时数据"]
	node.expanded = true
	node.readFailures = -1
	art := &fakeArtifacts{}
	nav := newTestNavigator(tree, art)

	err := nav.Expand(context.Background(), "现货实时数据")

	require.Error(t, err)
	assert.True(t, errors.Is(err, crawlerrors.ErrNavigationFailure))
	assert.Contains(t, err.Error(), "frame detached")
	assert.True(t, node.expanded)
	assert.Empty(t, tree.clicks)
	assert.Equal(t, []string{"expand_failed_现货实时数据"}, art.names)
}

func TestExpand_ReadFailureAfterClickIsRetriedWithoutReclicking(t *testing.T) {
	tree := newFakeTree("综合查询")
	node := tree.nodes["综合查询"]
	node.openAfterPolls = 1
	nav := newTestNavigator(tree, &fakeArtifacts{})
	nav.tree = &flakyAfterClick{fakeTree: tree, label: "综合查询"}

	require.NoError(t, nav.Expand(context.Background(), "综合查询"))

	assert.Len(t, tree.clicks, 1)
	assert.Empty(t, tree.toggles)
	assert.True(t, node.expanded)
}

// flakyAfterClick fails the first read that follows a click.
type flakyAfterClick struct {
	*fakeTree
	label  string
	primed bool
}

func (f *flakyAfterClick) Click(ctx context.Context, label string) error {
	f.primed = label == f.label
	return f.fakeTree.Click(ctx, label)
}

func (f *flakyAfterClick) Expanded(ctx context.Context, label string) (bool, error) {
	if f.primed && label == f.label {
		f.primed = false
		return false, crawlerrors.ContextStale("expanded", errors.New("frame detached"))
	}
	return f.fakeTree.Expanded(ctx, label)
}

func TestNavigateTo_FullPath(t *testing.T) {
	tree := newFakeTree("信息披露", "现货实时数据", "实时节点边际电价")
	tree.nodes["实时节点边际电价"].leaf = true
	nav := newTestNavigator(tree, &fakeArtifacts{})

	require.NoError(t, nav.NavigateTo(context.Background(), "现货实时数据", "实时节点边际电价", nil))

	assert.Equal(t, []string{"信息披露", "现货实时数据", "实时节点边际电价"}, tree.clicks)
	assert.True(t, tree.nodes["信息披露"].expanded)
	assert.True(t, tree.nodes["现货实时数据"].expanded)
}

func TestNavigateTo_MemoSkipsOpenAncestors(t *testing.T) {
	tree := newFakeTree("信息披露", "现货实时数据", "A", "B")
	tree.nodes["A"].leaf = true
	tree.nodes["B"].leaf = true
	nav := newTestNavigator(tree, &fakeArtifacts{})
	ctx := context.Background()

	require.NoError(t, nav.NavigateTo(ctx, "现货实时数据", "A", nil))
	tree.clicks = nil

	require.NoError(t, nav.NavigateTo(ctx, "现货实时数据", "B", nil))

	assert.Equal(t, []string{"B"}, tree.clicks, "open ancestors must not be toggled shut")
	assert.True(t, tree.nodes["信息披露"].expanded)
	assert.True(t, tree.nodes["现货实时数据"].expanded)
}

func TestNavigateTo_MemoIsRevalidatedLive(t *testing.T) {
	tree := newFakeTree("信息披露", "现货实时数据", "A")
	tree.nodes["A"].leaf = true
	nav := newTestNavigator(tree, &fakeArtifacts{})
	ctx := context.Background()

	require.NoError(t, nav.NavigateTo(ctx, "现货实时数据", "A", nil))

	// the tree re-renders collapsed after a route change
	tree.nodes["信息披露"].expanded = false
	tree.nodes["现货实时数据"].expanded = false
	tree.clicks = nil

	require.NoError(t, nav.NavigateTo(ctx, "现货实时数据", "A", nil))

	assert.Equal(t, []string{"信息披露", "现货实时数据", "A"}, tree.clicks)
	assert.True(t, tree.nodes["现货实时数据"].expanded)
}

func TestNavigateTo_SubPathSegmentFailureContinues(t *testing.T) {
	tree := newFakeTree("信息披露", "综合查询", "参数信息", "节点分配因子")
	tree.nodes["节点分配因子"].leaf = true
	nav := newTestNavigator(tree, &fakeArtifacts{})

	// "供需与约束" is missing from the tree, e.g. already flattened
	err := nav.NavigateTo(context.Background(), "综合查询", "节点分配因子", []string{"供需与约束", "参数信息"})

	require.NoError(t, err)
	assert.True(t, tree.nodes["参数信息"].expanded)
	assert.Equal(t, "节点分配因子", tree.clicks[len(tree.clicks)-1])
}

func TestNavigateTo_MissingLeafIsFatal(t *testing.T) {
	tree := newFakeTree("信息披露", "现货实时数据")
	art := &fakeArtifacts{}
	nav := newTestNavigator(tree, art)

	err := nav.NavigateTo(context.Background(), "现货实时数据", "不存在的页面", nil)

	assert.True(t, errors.Is(err, crawlerrors.ErrNavigationFailure))
	assert.Equal(t, crawlerrors.OutcomeNotFound, crawlerrors.OutcomeOf(err))
	assert.Equal(t, []string{"leaf_failed_不存在的页面"}, art.names)
}

func TestNavigateTo_RootFailureIsFatal(t *testing.T) {
	tree := newFakeTree("现货实时数据", "A")
	nav := newTestNavigator(tree, &fakeArtifacts{})

	err := nav.NavigateTo(context.Background(), "现货实时数据", "A", nil)

	assert.True(t, errors.Is(err, crawlerrors.ErrNavigationFailure))
	assert.Empty(t, tree.clicks)
}

func TestReset_ForgetsMemo(t *testing.T) {
	tree := newFakeTree("信息披露", "现货实时数据", "A")
	tree.nodes["A"].leaf = true
	nav := newTestNavigator(tree, &fakeArtifacts{})

	require.NoError(t, nav.NavigateTo(context.Background(), "现货实时数据", "A", nil))
	require.True(t, nav.rootExpanded)

	nav.Reset()
	assert.False(t, nav.rootExpanded)
	assert.Empty(t, nav.currentCategory)
}

func TestWaitReady(t *testing.T) {
	tree := newFakeTree()
	art := &fakeArtifacts{}
	nav := newTestNavigator(tree, art)

	require.NoError(t, nav.WaitReady(context.Background()))

	tree.notReady = true
	err := nav.WaitReady(context.Background())
	assert.True(t, errors.Is(err, crawlerrors.ErrTimeout))
	assert.Equal(t, []string{"sidebar_not_ready"}, art.names)
}

func TestPath(t *testing.T) {
	nodes := Path("root", "cat", "leaf", []string{"a", "b"})

	require.Len(t, nodes, 5)
	assert.Equal(t, LevelRoot, nodes[0].Level)
	assert.Equal(t, LevelCategory, nodes[1].Level)
	assert.Equal(t, LevelSub, nodes[2].Level)
	assert.Equal(t, "b", nodes[3].Label)
	assert.Equal(t, LevelLeaf, nodes[4].Level)
	assert.Equal(t, "leaf", nodes[4].Level.String())
}
