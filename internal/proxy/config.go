package proxy

import (
	"go.uber.org/zap"

	"github.com/die-net/evrelay/internal/dialer"
	"github.com/die-net/evrelay/internal/endpoint"
	"github.com/die-net/evrelay/internal/relay"
)

const defaultEventBuffer = 64

type Config struct {
	// Target is the upstream host:port every connection is relayed to.
	Target string
	Dialer dialer.Dialer

	Relay    relay.Config
	Endpoint endpoint.Config

	// EventBuffer sizes each pair's event channel. Zero uses a default.
	EventBuffer int

	Logger *zap.Logger
}
