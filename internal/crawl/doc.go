// Package crawl runs one task end to end: navigate to the report page,
// resolve the working surface, discover the filter domain and process every
// (date, option) unit with bounded retry.
//
// Unit failures never abort a task. Each unit gets exactly the configured
// number of attempts, the surface is re-validated before every attempt and
// exhaustion is logged and counted before the loop moves on. Only
// navigation failures, storage read failures and cancellation end a task
// early.
//
// The browser-facing work is delegated to the collaborators declared in
// interfaces.go, bound to the resolved surface through a Toolkit.
package crawl
