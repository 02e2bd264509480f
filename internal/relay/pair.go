package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/die-net/evrelay/internal/endpoint"
)

// ErrUnknownEndpoint reports an event whose source is not one of the pair's
// endpoints. It indicates a wiring bug, not a network condition.
var ErrUnknownEndpoint = errors.New("relay: event from endpoint not owned by pair")

type direction struct {
	name  string
	src   endpoint.Endpoint
	dst   endpoint.Endpoint
	state State
	bytes int64
}

// Pair relays bytes between a client endpoint and an upstream endpoint.
//
// Pair is not safe for concurrent use; all events must be handled from one
// goroutine, which Run provides.
type Pair struct {
	cfg Config
	log *zap.Logger

	client   endpoint.Endpoint
	upstream endpoint.Endpoint

	up   direction // client -> upstream
	down direction // upstream -> client

	drainTimer *time.Timer
	started    time.Time
}

// NewPair couples client and upstream. Nothing is enabled until Start or Run.
func NewPair(client, upstream endpoint.Endpoint, cfg Config, log *zap.Logger) *Pair {
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pair{
		cfg:      cfg,
		log:      log,
		client:   client,
		upstream: upstream,
		up:       direction{name: "client->upstream", src: client, dst: upstream},
		down:     direction{name: "upstream->client", src: upstream, dst: client},
	}
	client.SetLowWater(cfg.LowWater)
	upstream.SetLowWater(cfg.LowWater)

	return p
}

// Start enables reading from the client. The upstream is left idle until
// the first byte is forwarded to it, unless EagerUpstream is set.
func (p *Pair) Start() {
	p.started = time.Now()

	p.up.state = Active
	p.client.EnableRead()

	if p.cfg.EagerUpstream {
		p.down.state = Active
		p.upstream.EnableRead()
	}
}

// ClientToUpstream reports the state of the client->upstream direction.
func (p *Pair) ClientToUpstream() State { return p.up.state }

// UpstreamToClient reports the state of the upstream->client direction.
func (p *Pair) UpstreamToClient() State { return p.down.state }

// Forwarded returns the bytes queued toward the upstream and toward the
// client so far.
func (p *Pair) Forwarded() (toUpstream, toClient int64) {
	return p.up.bytes, p.down.bytes
}

// Done reports whether both endpoints are closed.
func (p *Pair) Done() bool {
	return p.client.Closed() && p.upstream.Closed()
}

// Run starts the pair and handles events until both endpoints are closed or
// ctx is canceled, in which case both endpoints are closed immediately.
func (p *Pair) Run(ctx context.Context, events <-chan endpoint.Event) error {
	p.Start()
	defer p.stopDrainTimer()

	for !p.Done() {
		select {
		case <-ctx.Done():
			p.Abort()
			return ctx.Err()
		case <-p.drainC():
			p.drainExpired()
		case ev := <-events:
			if err := p.Handle(ev); err != nil {
				p.log.DPanic("relay invariant violated", zap.Error(err), zap.Stringer("event", ev.Kind))
			}
		}
	}

	p.log.Info("connection closed",
		zap.Int64("bytes_up", p.up.bytes),
		zap.Int64("bytes_down", p.down.bytes),
		zap.Duration("duration", time.Since(p.started)))
	return nil
}

// Handle applies one event to the state machine.
func (p *Pair) Handle(ev endpoint.Event) error {
	d, err := p.from(ev.Source)
	if err != nil {
		return err
	}

	// Events can still be queued for a leg we already closed.
	if ev.Source.Closed() {
		return nil
	}

	switch ev.Kind {
	case endpoint.Readable:
		p.forward(d)
	case endpoint.Drained:
		p.drained(d)
	case endpoint.EOF, endpoint.Failed:
		p.teardown(d, ev.Err)
	default:
		return fmt.Errorf("relay: unexpected event kind %s", ev.Kind)
	}
	return nil
}

// Abort closes both endpoints without flushing.
func (p *Pair) Abort() {
	for _, d := range []*direction{&p.up, &p.down} {
		d.state = Closed
		_ = d.src.Close()
	}
	p.log.Debug("connection aborted")
}

func (p *Pair) from(e endpoint.Endpoint) (*direction, error) {
	switch e {
	case p.client:
		return &p.up, nil
	case p.upstream:
		return &p.down, nil
	default:
		return nil, ErrUnknownEndpoint
	}
}

func (p *Pair) reverse(d *direction) *direction {
	if d == &p.up {
		return &p.down
	}
	return &p.up
}

// forward moves everything buffered on d's source to d's destination.
func (p *Pair) forward(d *direction) {
	data := d.src.TakeInput()
	if len(data) == 0 {
		return
	}

	if d.state == Closed || d.dst.Closed() {
		p.log.Debug("discarding input for closed leg", zap.String("direction", d.name), zap.Int("bytes", len(data)))
		return
	}

	d.dst.Write(data)
	d.bytes += int64(len(data))
	d.dst.EnableWrite()

	// The destination just proved live, so let it talk back.
	rev := p.reverse(d)
	switch rev.state {
	case Idle:
		rev.state = Active
		rev.src.EnableRead()
	case Paused:
		p.maybeResume(rev)
	}

	if d.state == Active && d.dst.OutputLen() > p.cfg.HighWater {
		d.state = Paused
		d.src.DisableRead()
		p.log.Debug("paused", zap.String("direction", d.name), zap.Int("queued", d.dst.OutputLen()))
	}
}

// maybeResume reactivates a paused direction once its destination has
// drained to the low-water mark, forwarding anything its source buffered in
// the meantime.
func (p *Pair) maybeResume(d *direction) {
	if d.state != Paused || d.dst.OutputLen() > p.cfg.LowWater {
		return
	}

	d.state = Active
	d.src.EnableRead()
	p.log.Debug("resumed", zap.String("direction", d.name))

	if d.src.InputLen() > 0 {
		p.forward(d)
	}
}

// drained handles a Drained event from d's source.
func (p *Pair) drained(d *direction) {
	if d.state == Draining {
		if d.src.OutputLen() == 0 {
			d.state = Closed
			_ = d.src.Close()
			p.log.Debug("drained leg closed", zap.String("direction", d.name))
		}
		return
	}

	p.maybeResume(p.reverse(d))
	p.maybeResume(d)
}

// teardown handles end of stream or failure on d's source.
func (p *Pair) teardown(d *direction, err error) {
	p.forward(d)
	d.state = Closed

	if err != nil {
		p.log.Debug("leg failed", zap.String("direction", d.name), zap.Error(err))
	} else {
		p.log.Debug("leg closed", zap.String("direction", d.name))
	}
	if n := d.src.OutputLen(); n > 0 {
		p.log.Debug("dropping bytes queued for closed leg", zap.String("direction", p.reverse(d).name), zap.Int("bytes", n))
	}
	_ = d.src.Close()

	rev := p.reverse(d)
	if rev.state == Closed || d.dst.Closed() {
		rev.state = Closed
		return
	}

	if d.dst.OutputLen() > 0 {
		rev.state = Draining
		d.dst.DisableRead()
		d.dst.EnableWrite()
		p.startDrainTimer()
		return
	}

	rev.state = Closed
	_ = d.dst.Close()
}

func (p *Pair) startDrainTimer() {
	if p.cfg.DrainTimeout <= 0 || p.drainTimer != nil {
		return
	}
	p.drainTimer = time.NewTimer(p.cfg.DrainTimeout)
}

func (p *Pair) stopDrainTimer() {
	if p.drainTimer != nil {
		p.drainTimer.Stop()
	}
}

func (p *Pair) drainC() <-chan time.Time {
	if p.drainTimer == nil {
		return nil
	}
	return p.drainTimer.C
}

func (p *Pair) drainExpired() {
	for _, d := range []*direction{&p.up, &p.down} {
		if d.state != Draining {
			continue
		}
		p.log.Warn("drain timed out", zap.String("direction", d.name), zap.Int("undelivered", d.src.OutputLen()))
		d.state = Closed
		_ = d.src.Close()
	}
}
