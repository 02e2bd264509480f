package relay

import "fmt"

// State is the forwarding state of one direction of a Pair.
type State int

const (
	// Idle directions have never been enabled; the upstream-to-client
	// direction starts here until the first byte is sent upstream.
	Idle State = iota
	// Active directions read from the source and queue to the destination.
	Active
	// Paused directions have the source read-disabled until the destination
	// drains to the low-water mark.
	Paused
	// Draining directions have a closed peer; the source is read-disabled and
	// only flushes what it already has queued before being closed.
	Draining
	// Closed directions transfer nothing further.
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
