// Package endpoint provides the byte-stream endpoints that the relay core moves
// data between.
//
// An [Endpoint] owns an input queue (bytes received, not yet consumed) and an
// output queue (bytes accepted for sending, not yet written), and reports
// readiness through [Event] values. [Conn] implements Endpoint on top of a
// net.Conn with one reader and one writer goroutine, so callers never block
// on network I/O.
package endpoint
