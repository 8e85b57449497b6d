package browser

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotcrawl/internal/config"
	crawlerrors "spotcrawl/internal/errors"
)

func TestScript(t *testing.T) {
	assert.Equal(t, `((a, b) => a + b)(1,2)`, Script("(a, b) => a + b", 1, 2))
	assert.Equal(t, `((l) => l)("出清\"概况")`, Script("(l) => l", `出清"概况`))
	assert.Equal(t, `(() => 1)()`, Script("() => 1"))
	assert.Equal(t, `function() { return (document.title); }`, asFunction("document.title"))
}

func TestMatchTarget(t *testing.T) {
	infos := []*target.Info{
		{TargetID: "sw", Type: "service_worker", URL: "https://pmos.example.cn/sw.js"},
		{TargetID: "blank", Type: "page", URL: "about:blank"},
		{TargetID: "portal", Type: "page", URL: "https://pmos.example.cn/#/dashboard"},
	}

	got, ok := matchTarget(infos, "pmos.example.cn")
	require.True(t, ok)
	assert.Equal(t, target.ID("portal"), got.TargetID)

	_, ok = matchTarget(infos, "elsewhere.cn")
	assert.False(t, ok)

	got, ok = matchTarget(infos, "")
	require.True(t, ok)
	assert.Equal(t, target.ID("blank"), got.TargetID)
}

func TestLaunchOptions(t *testing.T) {
	base := len(launchOptions(config.BrowserConfig{}, true))
	withExtras := launchOptions(config.BrowserConfig{
		Viewport: config.Viewport{Width: 1920, Height: 1080},
		ExecPath: "/usr/bin/chromium",
	}, false)
	assert.Equal(t, base+2, len(withExtras))
}

func TestFrameKey(t *testing.T) {
	withID := &cdp.Node{Attributes: []string{"id", "mainFrame", "name", "ignored"}}
	withName := &cdp.Node{Attributes: []string{"name", "report"}}

	assert.Equal(t, "mainFrame", frameKey(withID, &cdp.Frame{}, 0))
	assert.Equal(t, "name:report", frameKey(withName, &cdp.Frame{}, 0))
	assert.Equal(t, "name:inner", frameKey(&cdp.Node{}, &cdp.Frame{Name: "inner"}, 0))
	assert.Equal(t, "index:2", frameKey(nil, nil, 2))
}

func TestFindFrame(t *testing.T) {
	tree := &page.FrameTree{
		Frame: &cdp.Frame{ID: "top"},
		ChildFrames: []*page.FrameTree{
			{Frame: &cdp.Frame{ID: "a"}},
			{Frame: &cdp.Frame{ID: "b"}, ChildFrames: []*page.FrameTree{
				{Frame: &cdp.Frame{ID: "b1"}},
			}},
		},
	}

	require.NotNil(t, findFrame(tree, "b1"))
	assert.Equal(t, cdp.FrameID("b1"), findFrame(tree, "b1").Frame.ID)
	assert.Nil(t, findFrame(tree, "gone"))
}

func TestArtifactName(t *testing.T) {
	at := time.Date(2025, 3, 1, 8, 30, 5, 0, time.UTC)
	assert.Equal(t, "debug_expand_failed_现货_实时_20250301_083005.jpg", artifactName("expand_failed_现货/实时", at))
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*idleTracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	tr := newIdleTracker()
	tr.now = clock.now
	tr.last = clock.now()
	return tr, clock
}

func TestIdleTracker_QuietPeriod(t *testing.T) {
	tr, clock := newTestTracker()

	tr.handle(&network.EventRequestWillBeSent{RequestID: "1", Type: network.ResourceTypeXHR})
	clock.advance(time.Second)
	assert.False(t, tr.idle(500*time.Millisecond), "request in flight")

	tr.handle(&network.EventLoadingFinished{RequestID: "1"})
	assert.False(t, tr.idle(500*time.Millisecond), "quiet period not elapsed")

	clock.advance(500 * time.Millisecond)
	assert.True(t, tr.idle(500*time.Millisecond))
}

func TestIdleTracker_IgnoresStreamsAndUnknownIDs(t *testing.T) {
	tr, clock := newTestTracker()

	tr.handle(&network.EventRequestWillBeSent{RequestID: "ws", Type: network.ResourceTypeWebSocket})
	tr.handle(&network.EventLoadingFailed{RequestID: "never-started"})
	clock.advance(time.Second)

	assert.True(t, tr.idle(500*time.Millisecond))
}

func TestIdleTracker_WaitTimesOut(t *testing.T) {
	tr := newIdleTracker()
	tr.started("stuck")

	err := tr.wait(context.Background(), 10*time.Millisecond, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, crawlerrors.Is(err, crawlerrors.ErrTimeout))

	// Requests that never completed are forgotten after the timeout.
	assert.Eventually(t, func() bool { return tr.idle(10 * time.Millisecond) }, time.Second, 10*time.Millisecond)
}

func TestIdleTracker_WaitReturnsWhenIdle(t *testing.T) {
	tr := newIdleTracker()
	tr.started("1")
	go func() {
		time.Sleep(20 * time.Millisecond)
		tr.finished("1")
	}()

	require.NoError(t, tr.wait(context.Background(), 10*time.Millisecond, 2*time.Second))
}

func TestIdleTracker_WaitHonoursContext(t *testing.T) {
	tr := newIdleTracker()
	tr.started("1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, tr.wait(ctx, 10*time.Millisecond, time.Second), context.Canceled)
}
