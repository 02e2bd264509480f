package relay

import (
	"net"

	"github.com/die-net/evrelay/internal/endpoint"
)

// fakeEndpoint is an in-memory endpoint whose "network" is driven by the
// test: deliver simulates bytes arriving, flush simulates the kernel
// accepting queued bytes.
type fakeEndpoint struct {
	name     string
	in       []byte
	out      []byte
	readOn   bool
	writeOn  bool
	closed   bool
	lowWater int
	closes   int
}

var _ endpoint.Endpoint = (*fakeEndpoint)(nil)

func newFake(name string) *fakeEndpoint { return &fakeEndpoint{name: name} }

func (f *fakeEndpoint) deliver(s string) { f.in = append(f.in, s...) }

// flush removes up to n bytes from the output queue and returns them.
func (f *fakeEndpoint) flush(n int) string {
	n = min(n, len(f.out))
	s := string(f.out[:n])
	f.out = f.out[n:]
	return s
}

func (f *fakeEndpoint) flushAll() string { return f.flush(len(f.out)) }

func (f *fakeEndpoint) TakeInput() []byte {
	b := f.in
	f.in = nil
	return b
}

func (f *fakeEndpoint) InputLen() int      { return len(f.in) }
func (f *fakeEndpoint) Write(p []byte)     { f.out = append(f.out, p...) }
func (f *fakeEndpoint) OutputLen() int     { return len(f.out) }
func (f *fakeEndpoint) EnableRead()        { f.readOn = true }
func (f *fakeEndpoint) DisableRead()       { f.readOn = false }
func (f *fakeEndpoint) ReadEnabled() bool  { return f.readOn }
func (f *fakeEndpoint) EnableWrite()       { f.writeOn = true }
func (f *fakeEndpoint) DisableWrite()      { f.writeOn = false }
func (f *fakeEndpoint) WriteEnabled() bool { return f.writeOn }
func (f *fakeEndpoint) SetLowWater(n int)  { f.lowWater = n }
func (f *fakeEndpoint) Closed() bool       { return f.closed }
func (f *fakeEndpoint) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
}

func (f *fakeEndpoint) Close() error {
	f.closes++
	f.closed = true
	f.readOn = false
	f.writeOn = false
	return nil
}
