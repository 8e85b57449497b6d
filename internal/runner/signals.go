package runner

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// HandleSignals installs SIGINT/SIGTERM handling for the run. The first
// signal calls Stop, the second calls cancel. The returned function
// uninstalls the handler.
func (r *Runner) HandleSignals(ctx context.Context, cancel context.CancelFunc) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		r.watchSignals(ctx, sigCh, cancel)
		close(done)
	}()

	return func() {
		signal.Stop(sigCh)
		close(sigCh)
		<-done
	}
}

func (r *Runner) watchSignals(ctx context.Context, sigCh <-chan os.Signal, cancel context.CancelFunc) {
	count := 0
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			count++
			if count == 1 {
				r.logger.WarnContext(ctx, "interrupt_received_finishing_current_unit",
					slog.String("signal", sig.String()))
				r.Stop()
				continue
			}
			r.logger.WarnContext(ctx, "interrupt_received_cancelling",
				slog.String("signal", sig.String()))
			cancel()
			return
		}
	}
}
