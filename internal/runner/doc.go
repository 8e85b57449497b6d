// Package runner drives the crawl: it runs the selected tasks in order,
// turns SIGINT/SIGTERM into a graceful stop, keeps the status shown by the
// status server and repeats runs on a cron schedule.
package runner
