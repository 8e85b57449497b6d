// Package app provides application initialization and lifecycle management
// for the crawler. It handles configuration-driven wiring of logging,
// OpenTelemetry, the browser session and the task runner.
//
// # Initialization Flow
//
//  1. Load and validate configuration (done by the caller)
//  2. Initialize logging, directories and OpenTelemetry
//  3. Open the browser session and load the portal
//  4. Wire the resolver, menu navigator, controls toolkit and store
//  5. Run the selected tasks, optionally on a schedule, while the status
//     server reports progress
//
// # Usage
//
//	a, err := app.NewApplication(cfg, app.Options{})
//	if err != nil {
//	    return err
//	}
//	defer a.Shutdown(context.Background())
//	tasks, _ := a.SelectTasks("")
//	dr, _ := a.DateRange("", "")
//	err = a.Serve(ctx, func(ctx context.Context) error {
//	    _, err := a.Crawl(ctx, tasks, dr)
//	    return err
//	})
package app
