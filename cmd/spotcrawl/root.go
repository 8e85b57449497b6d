package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"spotcrawl/internal/app"
	"spotcrawl/internal/config"
)

type flags struct {
	configPath  string
	task        string
	start       string
	end         string
	validate    bool
	schedule    bool
	listTasks   bool
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "spotcrawl",
		Short:         "spotcrawl downloads market data from the spot market portal.",
		Version:       config.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", config.DefaultConfigFile, "path to the YAML configuration")
	fs.StringVarP(&f.task, "task", "t", "", "comma separated task names; empty runs every enabled task")
	fs.StringVar(&f.start, "start", "", "first date to crawl (YYYY-MM-DD)")
	fs.StringVar(&f.end, "end", "", "last date to crawl (YYYY-MM-DD), defaults to today")
	fs.BoolVar(&f.validate, "validate", false, "validate stored output and exit")
	fs.BoolVar(&f.schedule, "schedule", false, "crawl now and then every schedule.interval_hours")
	fs.BoolVar(&f.listTasks, "list-tasks", false, "list configured tasks and exit")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve /metrics, /healthz and /status on this address")
	cmd.MarkFlagsMutuallyExclusive("validate", "schedule", "list-tasks")
	return cmd
}

func run(ctx context.Context, f *flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}

	a, err := app.NewApplication(cfg, app.Options{MetricsAddr: f.metricsAddr})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Shutdown(shutdownCtx)
	}()

	switch {
	case f.listTasks:
		a.ListTasks()
		return nil
	case f.validate:
		return a.Validate(ctx)
	}

	tasks, err := a.SelectTasks(f.task)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	uninstall := a.Runner.HandleSignals(ctx, cancel)
	defer uninstall()

	if f.schedule {
		return a.Serve(ctx, func(ctx context.Context) error {
			return a.Schedule(ctx, tasks, f.start)
		})
	}

	dr, err := a.DateRange(f.start, f.end)
	if err != nil {
		return err
	}
	return a.Serve(ctx, func(ctx context.Context) error {
		_, err := a.Crawl(ctx, tasks, dr)
		return err
	})
}
