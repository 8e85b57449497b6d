// Package shared holds helpers used across the crawler packages.
//
// The testutil subpackage captures slog output so tests can assert on what
// a component logged without parsing JSON.
package shared
