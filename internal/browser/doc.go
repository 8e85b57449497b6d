// Package browser owns the Chrome DevTools session.
//
// It connects to an already logged-in Chrome over CDP or launches a fresh
// one, and exposes the tab through the small interfaces the rest of the
// crawler consumes: frames.Host for embedded documents, menu.Tree for the
// sidebar, menu.Artifacts for diagnostic screenshots, a network idle
// waiter and a download tracker.
//
// Every call runs against the session context with the configured timeout
// and is also cancelled when the caller's context ends.
package browser
