// Package controls implements the query form, export, pagination and table
// extraction strategies for the portal's two report frameworks, Element UI
// and FineReport.
//
// Every control is located through a ranked list of probes. Each probe is a
// small script evaluated in the bound surface that either finds an element
// or reports nothing; the first hit wins and the action runs on it in the
// same evaluation. Strategies hold a surface only for the duration of one
// Bind, so a re-resolved surface never meets a stale strategy.
package controls
