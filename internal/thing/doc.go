// Package thing talks to devices that expose a Web of Things style HTTP
// control surface.
//
// Each device publishes a Thing Description at {base}/{device}. Resolve reads
// it once and returns a Handle; property reads are GETs and action invocations
// are POSTs against the hrefs the description declares, or against the
// conventional {base}/{device}/properties/{name} and
// {base}/{device}/actions/{name} paths when it declares none.
package thing
