// Package menu drives the portal's navigation tree to a report page.
//
// Tree nodes are toggles: clicking an expanded node collapses it. The
// navigator therefore reads the live expand state before every click and
// treats its own memo of what it opened earlier as a hint only, because the
// tree re-renders on route changes.
package menu
