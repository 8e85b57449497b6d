package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotcrawl/internal/config"
	"spotcrawl/internal/crawl"
	crawlerrors "spotcrawl/internal/errors"
	"spotcrawl/internal/infrastructure"
	"spotcrawl/internal/shared/testutil"
)

type fakeTask struct {
	err     error
	onRun   func()
	summary crawl.Summary
}

type fakeRunner struct {
	tasks map[string]*fakeTask
	ran   []string
	stops []func() bool
}

func (f *fakeRunner) factory(task config.Task, stop func() bool) TaskRunner {
	f.stops = append(f.stops, stop)
	return runFunc(func(ctx context.Context, task config.Task, dr crawl.DateRange) (crawl.Summary, error) {
		f.ran = append(f.ran, task.Name)
		ft := f.tasks[task.Name]
		if ft == nil {
			return crawl.Summary{Task: task.Name}, nil
		}
		if ft.onRun != nil {
			ft.onRun()
		}
		s := ft.summary
		s.Task = task.Name
		return s, ft.err
	})
}

type runFunc func(ctx context.Context, task config.Task, dr crawl.DateRange) (crawl.Summary, error)

func (f runFunc) Run(ctx context.Context, task config.Task, dr crawl.DateRange) (crawl.Summary, error) {
	return f(ctx, task, dr)
}

func tasks(names ...string) config.Tasks {
	out := make(config.Tasks, len(names))
	for i, n := range names {
		out[i] = config.Task{Name: n, Category: "现货市场"}
	}
	return out
}

func testRange(t *testing.T) crawl.DateRange {
	t.Helper()
	dr, err := crawl.ParseDateRange("2024-05-01", "2024-05-03")
	require.NoError(t, err)
	return dr
}

func newTestRunner() *Runner {
	return New(infrastructure.NewLogger(io.Discard, "debug"))
}

func TestRunTasksContinuesAfterTaskFailure(t *testing.T) {
	f := &fakeRunner{tasks: map[string]*fakeTask{
		"日前出清": {err: crawlerrors.NavigationFailure("navigate", "日前出清", "leaf not found")},
		"实时出清": {err: errors.New("read existing dates: permission denied")},
		"出清概况": {summary: crawl.Summary{Saved: 3, Rows: 288}},
	}}
	r := newTestRunner()

	report, err := r.RunTasks(context.Background(), tasks("日前出清", "实时出清", "出清概况"), testRange(t), f.factory)
	require.NoError(t, err)
	assert.Equal(t, []string{"日前出清", "实时出清", "出清概况"}, f.ran)
	assert.Equal(t, []string{"日前出清", "实时出清"}, report.Failed)
	require.Len(t, report.Summaries, 3)
	assert.Equal(t, 288, report.Summaries[2].Rows)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Interrupted)

	snap := r.Status().Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 1, snap.Runs)
	assert.Len(t, snap.Completed, 3)
	assert.Contains(t, snap.Errors["日前出清"], "leaf not found")
	require.NotNil(t, snap.LastRun)
	assert.Equal(t, report.RunID, snap.LastRun.RunID)
}

func TestRunTasksLogsFailureKind(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	f := &fakeRunner{tasks: map[string]*fakeTask{
		"日前出清": {err: crawlerrors.NavigationFailure("navigate", "日前出清", "leaf not found")},
		"实时出清": {err: errors.New("disk full")},
	}}

	_, err := New(logger).RunTasks(context.Background(), tasks("日前出清", "实时出清"), testRange(t), f.factory)
	require.NoError(t, err)

	nav := testutil.AssertLogged(t, logs, slog.LevelError, "task_navigation_failed_skipping")
	assert.Equal(t, "NAVIGATION_FAILURE", nav.Attrs["kind"])
	other := testutil.AssertLogged(t, logs, slog.LevelError, "task_failed_skipping")
	assert.Equal(t, "实时出清", other.Attrs["task"])
}

func TestRunTasksStopsBetweenTasks(t *testing.T) {
	r := newTestRunner()
	f := &fakeRunner{tasks: map[string]*fakeTask{
		"日前出清": {onRun: r.Stop},
	}}

	report, err := r.RunTasks(context.Background(), tasks("日前出清", "实时出清"), testRange(t), f.factory)
	require.NoError(t, err)
	assert.Equal(t, []string{"日前出清"}, f.ran)
	assert.True(t, report.Interrupted)
	assert.True(t, f.stops[0](), "orchestrator sees the stop flag")
	assert.Equal(t, StateStopping, r.Status().Snapshot().State)
}

func TestRunTasksReportsInterruptedSummary(t *testing.T) {
	r := newTestRunner()
	f := &fakeRunner{tasks: map[string]*fakeTask{
		"日前出清": {summary: crawl.Summary{Interrupted: true}},
	}}
	report, err := r.RunTasks(context.Background(), tasks("日前出清"), testRange(t), f.factory)
	require.NoError(t, err)
	assert.True(t, report.Interrupted)
}

func TestRunTasksCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeRunner{tasks: map[string]*fakeTask{
		"日前出清": {err: context.Canceled, onRun: cancel},
	}}
	r := newTestRunner()

	_, err := r.RunTasks(ctx, tasks("日前出清", "实时出清"), testRange(t), f.factory)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"日前出清"}, f.ran)
}

func TestStopIsIdempotent(t *testing.T) {
	r := newTestRunner()
	assert.False(t, r.Stopping())
	r.Stop()
	r.Stop()
	assert.True(t, r.Stopping())
	select {
	case <-r.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestWatchSignals(t *testing.T) {
	r := newTestRunner()
	sigCh := make(chan os.Signal, 2)
	var cancelled atomic.Bool
	done := make(chan struct{})
	go func() {
		r.watchSignals(context.Background(), sigCh, func() { cancelled.Store(true) })
		close(done)
	}()

	sigCh <- os.Interrupt
	assert.Eventually(t, r.Stopping, time.Second, 10*time.Millisecond)
	assert.False(t, cancelled.Load(), "first signal only stops")

	sigCh <- syscall.SIGTERM
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not return after second signal")
	}
	assert.True(t, cancelled.Load())
}

func TestEvery(t *testing.T) {
	assert.Equal(t, "@every 24h", Every(24))
	assert.Equal(t, "@every 6h", Every(6))
}

func TestScheduleRunsImmediatelyAndStops(t *testing.T) {
	r := newTestRunner()
	var runs atomic.Int32
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Schedule(context.Background(), Every(1), func(ctx context.Context) {
			runs.Add(1)
		})
	}()

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 10*time.Millisecond)
	r.Stop()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not stop")
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduleStopsOnCancel(t *testing.T) {
	r := newTestRunner()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Schedule(ctx, "@every 1m", func(context.Context) { cancel() })
	}()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not stop")
	}
}

func TestScheduleRejectsBadEvery(t *testing.T) {
	r := newTestRunner()
	err := r.Schedule(context.Background(), "every now and then", func(context.Context) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestStatusRunError(t *testing.T) {
	s := newStatus()
	require.NoError(t, s.Health())

	s.SetRunError(crawlerrors.Timeout("navigate", "portal"))
	assert.True(t, crawlerrors.Is(s.Health(), crawlerrors.ErrTimeout))
	assert.Contains(t, s.Snapshot().LastError, "portal")

	s.SetRunError(nil)
	assert.NoError(t, s.Health())
	assert.Empty(t, s.Snapshot().LastError)
}
