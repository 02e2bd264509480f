// Package relay couples two endpoints and moves bytes between them.
//
// A [Pair] owns the client-side and upstream-side endpoints of one relayed
// connection and an explicit state machine per direction. Every event for a
// pair is handled on a single goroutine (see [Pair.Run]), so the state
// machine needs no locking. Backpressure uses a high/low watermark on the
// destination's output queue; teardown flushes bytes already queued toward a
// peer before closing it.
package relay
