package relay

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultHighWater = 256 * 1024
	DefaultLowWater  = 0
)

type Config struct {
	// HighWater pauses a source once its destination has more than this many
	// bytes queued.
	HighWater int
	// LowWater resumes a paused source once its destination has at most this
	// many bytes queued.
	LowWater int

	// DrainTimeout bounds how long a leg may keep flushing after its peer
	// closed. Zero waits indefinitely.
	DrainTimeout time.Duration

	// EagerUpstream enables reading from the upstream as soon as the pair
	// starts instead of waiting for the first client byte.
	EagerUpstream bool
}

// DefaultConfig returns the default watermarks.
func DefaultConfig() Config {
	return Config{HighWater: DefaultHighWater, LowWater: DefaultLowWater}
}

func (c Config) Validate() error {
	if c.HighWater <= 0 {
		return fmt.Errorf("high water %d: must be > 0", c.HighWater)
	}
	if c.LowWater < 0 {
		return fmt.Errorf("low water %d: must be >= 0", c.LowWater)
	}
	if c.LowWater >= c.HighWater {
		return fmt.Errorf("low water %d: must be below high water %d", c.LowWater, c.HighWater)
	}
	if c.DrainTimeout < 0 {
		return errors.New("drain timeout must be >= 0")
	}
	return nil
}
