package endpoint

import (
	"fmt"
	"net"
)

// Endpoint is one leg of a relayed connection.
type Endpoint interface {
	// TakeInput removes and returns everything buffered in the input queue.
	TakeInput() []byte
	InputLen() int

	// Write appends p to the output queue. It never blocks on the network.
	Write(p []byte)
	// OutputLen includes bytes handed to the socket but not yet written.
	OutputLen() int

	EnableRead()
	DisableRead()
	ReadEnabled() bool

	EnableWrite()
	DisableWrite()
	WriteEnabled() bool

	// SetLowWater sets the output queue length at or below which a Drained
	// event is posted after a write completes.
	SetLowWater(n int)

	Close() error
	Closed() bool

	RemoteAddr() net.Addr
}

// Kind identifies what happened on an endpoint.
type Kind int

const (
	// Readable means new bytes were appended to the input queue.
	Readable Kind = iota
	// Drained means the output queue fell to or below the low-water mark.
	Drained
	// EOF means the peer finished sending.
	EOF
	// Failed means a read or write returned an error.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Readable:
		return "readable"
	case Drained:
		return "drained"
	case EOF:
		return "eof"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a readiness notification from Source.
type Event struct {
	Source Endpoint
	Kind   Kind
	Err    error
}
