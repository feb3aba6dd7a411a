// Package delay provides the artificial-latency generators that
// transfer.Config.Delay consults before every outbound datagram, so
// retry and timeout paths can be exercised under injected send delay.
package delay

import (
	"math/rand/v2"
	"time"
)

// Generator produces a delay duration each time it is called.
type Generator interface {
	Next() time.Duration
}

type constant time.Duration

// Constant returns a Generator that always yields d.
func Constant(d time.Duration) Generator { return constant(d) }

func (c constant) Next() time.Duration { return time.Duration(c) }

type uniformRandom struct {
	lo, hi time.Duration
}

// UniformRandom returns a Generator drawing uniformly from [lo, hi). If
// hi <= lo, it behaves like Constant(lo).
func UniformRandom(lo, hi time.Duration) Generator {
	return uniformRandom{lo: lo, hi: hi}
}

func (u uniformRandom) Next() time.Duration {
	if u.hi <= u.lo {
		return u.lo
	}
	span := int64(u.hi - u.lo)
	return u.lo + time.Duration(rand.Int64N(span))
}

// None is a Generator that never delays.
var None Generator = constant(0)
