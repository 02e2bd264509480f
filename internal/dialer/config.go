package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds DNS lookup and TCP connect.
	DialTimeout time.Duration
	// NegotiationTimeout bounds proxy handshakes (TLS, CONNECT, SOCKS5).
	NegotiationTimeout time.Duration
	KeepAlive          net.KeepAliveConfig
}
