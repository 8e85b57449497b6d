// Package frames locates the rendering surface that hosts the portal's
// interactive controls.
//
// The host page is a shell: report pages are rendered inside an iframe,
// which for some reports embeds a second iframe holding the actual form and
// table. The application replaces these frames on route changes and async
// re-renders without notice, so a resolved surface is only ever a weak
// reference plus a liveness probe. Callers go through Resolver.EnsureValid
// before every interaction.
package frames
