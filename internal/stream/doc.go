// Package stream maintains one long-lived event stream per room and event
// kind and survives disconnects indefinitely.
//
// Each endpoint runs in its own goroutine:
//
//	disconnected -> connecting -> connected -> disconnected -> ...
//
// A failed connect, a non-2xx response, a read error and a clean end of
// stream all lead back to disconnected, followed by an exponential backoff
// delay with jitter. The loop never gives up; it only stops when the
// context passed to Manager.Run is cancelled.
//
// Framing is lenient. Server-Sent Events blocks ("data:" lines terminated
// by a blank line) yield one Event each, and plain lines without an SSE
// field prefix yield one Event per line. A JSON object or array written
// without any delimiter is delivered as soon as its closing bracket arrives.
//
// # Usage
//
//	m := stream.NewManager(stream.Options{
//	    BaseURL: "http://events.local",
//	    Backoff: stream.DefaultBackoff(),
//	    Logger:  log,
//	})
//	m.SetOnStateChange(func(s stream.State) { ... })
//	err := m.Run(ctx, registry.Endpoints(room.EndpointsRelevant), handler)
package stream
