// Package dialer provides the outbound dialers used to reach the relay's
// fixed upstream.
//
// The upstream is either dialed directly or reached through an intermediate
// proxy (HTTP CONNECT, HTTPS CONNECT, or SOCKS5). Every dialer implements the
// DialContext method of net.Dialer.
package dialer
