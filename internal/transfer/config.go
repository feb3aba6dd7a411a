package transfer

import (
	"time"

	"github.com/tftpcore/tftpd/internal/delay"
	"github.com/tftpcore/tftpd/internal/logging"
)

// DefaultTimeout and DefaultMaxRetries are the "Timing defaults" of
// spec.md §6.
const (
	DefaultTimeout    = 1000 * time.Millisecond
	DefaultMaxRetries = 3
)

// Config is the per-worker configuration value constructed at the entry
// point, per spec.md §9 ("pass as a configuration value constructed at
// the entry point; do not rely on process-global singletons").
type Config struct {
	// Timeout is the per-datagram receive timeout. Zero means
	// DefaultTimeout.
	Timeout time.Duration
	// MaxRetries is the maximum number of retransmissions of the last
	// outbound frame before a worker gives up. Zero means
	// DefaultMaxRetries.
	MaxRetries int
	// Delay, if non-nil, is consulted before every outbound send to
	// inject artificial latency (spec.md §4.3). Nil means no delay.
	Delay delay.Generator
	// Log receives structured progress/error lines. Nil means
	// logging.Discard().
	Log logging.Sink
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Log == nil {
		c.Log = logging.Discard()
	}
	return c
}
