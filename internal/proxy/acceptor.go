package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/die-net/evrelay/internal/dialer"
	"github.com/die-net/evrelay/internal/endpoint"
	"github.com/die-net/evrelay/internal/relay"
)

// ErrUpstreamConnect is returned by Acceptor.Handle when the upstream could
// not be reached. Only that connection is affected.
var ErrUpstreamConnect = errors.New("upstream connect failed")

// Acceptor turns accepted client connections into relay pairs.
type Acceptor struct {
	target      string
	dialer      dialer.Dialer
	relay       relay.Config
	endpoint    endpoint.Config
	eventBuffer int
	log         *zap.Logger
}

func NewAcceptor(cfg Config) *Acceptor {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	d := cfg.Dialer
	if d == nil {
		d = dialer.NewDirectDialer(dialer.Config{})
	}
	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = defaultEventBuffer
	}

	return &Acceptor{
		target:      cfg.Target,
		dialer:      d,
		relay:       cfg.Relay,
		endpoint:    cfg.Endpoint,
		eventBuffer: buf,
		log:         log,
	}
}

// Handle dials the upstream for client and relays between them until both
// are closed or ctx is canceled. Handle owns client: it is closed on every
// return path.
func (a *Acceptor) Handle(ctx context.Context, client net.Conn) error {
	log := a.log.With(
		zap.String("conn", uuid.NewString()),
		zap.Stringer("client", client.RemoteAddr()),
		zap.String("upstream", a.target),
	)

	up, err := a.dialer.DialContext(ctx, "tcp", a.target)
	if err != nil {
		_ = client.Close()
		log.Warn("upstream connect failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrUpstreamConnect, err)
	}
	log.Debug("relaying", zap.Stringer("local", up.LocalAddr()))

	events := make(chan endpoint.Event, a.eventBuffer)
	ce := endpoint.New(client, events, a.endpoint)
	ue := endpoint.New(up, events, a.endpoint)
	defer func() {
		ce.Wait()
		ue.Wait()
	}()

	return relay.NewPair(ce, ue, a.relay, log).Run(ctx, events)
}
