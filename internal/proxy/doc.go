// Package proxy implements the listener side of evrelay.
//
// A [Server] accepts connections and hands each one to an [Acceptor], which
// dials the fixed upstream and runs a relay.Pair between the two until both
// sides are closed. ListenTCP creates the listening socket with address reuse
// and TCP keepalive applied to accepted connections.
package proxy
