package endpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// DefaultReadSize is the socket read and write chunk size used when
// Config.ReadSize is zero.
const DefaultReadSize = 32 * 1024

// Config tunes socket-backed endpoints.
type Config struct {
	// ReadSize is the size of each socket read and of each write chunk.
	ReadSize int
}

// Conn is an Endpoint backed by a net.Conn.
//
// A reader goroutine reads from the socket only while read is enabled and
// appends to the input queue; a writer goroutine flushes the output queue
// only while write is enabled. Both report through the events channel given
// to New. Once Close is called no further events are posted.
type Conn struct {
	conn   net.Conn
	events chan<- Event
	pool   *bufferPool

	mu       sync.Mutex
	cond     sync.Cond
	in       bytes.Buffer
	out      bytes.Buffer
	inFlight int
	readOn   bool
	writeOn  bool
	closed   bool
	lowWater int

	done chan struct{}
	wg   sync.WaitGroup
}

var _ Endpoint = (*Conn)(nil)

// New wraps conn and starts its reader and writer goroutines. Both start
// disabled.
func New(conn net.Conn, events chan<- Event, cfg Config) *Conn {
	size := cfg.ReadSize
	if size <= 0 {
		size = DefaultReadSize
	}

	c := &Conn{
		conn:   conn,
		events: events,
		pool:   poolFor(size),
		done:   make(chan struct{}),
	}
	c.cond.L = &c.mu

	c.wg.Go(c.readLoop)
	c.wg.Go(c.writeLoop)

	return c
}

func (c *Conn) TakeInput() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.in.Len() == 0 {
		return nil
	}
	b := bytes.Clone(c.in.Bytes())
	c.in.Reset()
	return b
}

func (c *Conn) InputLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.in.Len()
}

func (c *Conn) Write(p []byte) {
	if len(p) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.out.Write(p)
	c.cond.Broadcast()
}

func (c *Conn) OutputLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Len() + c.inFlight
}

func (c *Conn) EnableRead()  { c.setRead(true) }
func (c *Conn) DisableRead() { c.setRead(false) }

func (c *Conn) ReadEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOn
}

func (c *Conn) EnableWrite()  { c.setWrite(true) }
func (c *Conn) DisableWrite() { c.setWrite(false) }

func (c *Conn) WriteEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeOn
}

func (c *Conn) SetLowWater(n int) {
	c.mu.Lock()
	c.lowWater = max(n, 0)
	c.mu.Unlock()
}

// Close closes the socket and discards both queues. It does not wait for the
// reader and writer goroutines; use Wait for that.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.readOn = false
	c.writeOn = false
	c.in.Reset()
	c.out.Reset()
	c.cond.Broadcast()
	c.mu.Unlock()

	close(c.done)
	return c.conn.Close()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Wait blocks until the reader and writer goroutines have exited, which
// happens after Close or after the socket fails.
func (c *Conn) Wait() {
	c.wg.Wait()
}

func (c *Conn) setRead(on bool) {
	c.mu.Lock()
	if !c.closed {
		c.readOn = on
		c.cond.Broadcast()
	}
	c.mu.Unlock()
}

func (c *Conn) setWrite(on bool) {
	c.mu.Lock()
	if !c.closed {
		c.writeOn = on
		c.cond.Broadcast()
	}
	c.mu.Unlock()
}

func (c *Conn) readLoop() {
	buf := c.pool.Get()
	defer c.pool.Put(buf)

	for {
		c.mu.Lock()
		for !c.closed && !c.readOn {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		n, err := c.conn.Read(buf)
		if n > 0 {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			c.in.Write(buf[:n])
			c.mu.Unlock()

			c.post(Readable, nil)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				c.post(EOF, nil)
			} else {
				c.post(Failed, fmt.Errorf("read: %w", err))
			}
			return
		}
	}
}

func (c *Conn) writeLoop() {
	buf := c.pool.Get()
	defer c.pool.Put(buf)

	for {
		c.mu.Lock()
		for !c.closed && (!c.writeOn || c.out.Len() == 0) {
			c.cond.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}
		n, _ := c.out.Read(buf)
		c.inFlight = n
		c.mu.Unlock()

		_, err := c.conn.Write(buf[:n])

		c.mu.Lock()
		c.inFlight = 0
		drained := c.out.Len() <= c.lowWater
		c.mu.Unlock()

		if err != nil {
			c.post(Failed, fmt.Errorf("write: %w", err))
			return
		}
		if drained {
			c.post(Drained, nil)
		}
	}
}

// post delivers an event unless the endpoint has been closed.
func (c *Conn) post(kind Kind, err error) {
	if c.Closed() {
		return
	}

	select {
	case c.events <- Event{Source: c, Kind: kind, Err: err}:
	case <-c.done:
	}
}
