// Package socks5 implements the SOCKS5 handshake on top of the wire types in
// github.com/txthinking/socks5.
//
// The client side is used by the relay's socks5:// upstream dialer, the
// server side by tests that stand in for an upstream proxy. Neither side
// sets deadlines; callers bound the handshake on the connection.
package socks5
