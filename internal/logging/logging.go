// Package logging defines the logging sink the core consumes, per the
// external-collaborator contract of spec.md §2: "a logging sink with
// severity levels."
package logging

import (
	"github.com/golang/glog"
)

// Sink is the severity-leveled logging collaborator the transfer and
// server packages depend on. Implementations must be safe for concurrent
// use by multiple workers.
type Sink interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// glogSink backs Sink with glog, the severity-leveled logger used by
// go.fuchsia.dev/fuchsia/tools and go.fuchsia.dev/fuchsia/src.
type glogSink struct{}

// Glog returns the process-wide glog-backed Sink.
func Glog() Sink { return glogSink{} }

func (glogSink) Debugf(format string, args ...any) {
	glog.V(1).Infof(format, args...)
}

func (glogSink) Infof(format string, args ...any) {
	glog.Infof(format, args...)
}

func (glogSink) Warnf(format string, args ...any) {
	glog.Warningf(format, args...)
}

func (glogSink) Errorf(format string, args ...any) {
	glog.Errorf(format, args...)
}

// Discard is a Sink that drops every message; useful in tests that don't
// want glog's global flag state involved.
type discard struct{}

// Discard returns a Sink that ignores everything written to it.
func Discard() Sink { return discard{} }

func (discard) Debugf(string, ...any) {}
func (discard) Infof(string, ...any)  {}
func (discard) Warnf(string, ...any)  {}
func (discard) Errorf(string, ...any) {}

// prefixed wraps a Sink, tagging every line with a correlation prefix
// (e.g. a worker's UUID) — how per-transfer logs stay distinguishable in
// a shared stream (spec.md §3 ownership discipline made observable).
type prefixed struct {
	prefix string
	next   Sink
}

// WithPrefix returns a Sink that prepends prefix to every message.
func WithPrefix(next Sink, prefix string) Sink {
	return prefixed{prefix: prefix, next: next}
}

func (p prefixed) Debugf(format string, args ...any) {
	p.next.Debugf("%s "+format, append([]any{p.prefix}, args...)...)
}

func (p prefixed) Infof(format string, args ...any) {
	p.next.Infof("%s "+format, append([]any{p.prefix}, args...)...)
}

func (p prefixed) Warnf(format string, args ...any) {
	p.next.Warnf("%s "+format, append([]any{p.prefix}, args...)...)
}

func (p prefixed) Errorf(format string, args ...any) {
	p.next.Errorf("%s "+format, append([]any{p.prefix}, args...)...)
}
