package transfer

import (
	stderrors "errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/tftpcore/tftpd/internal/logging"
	"github.com/tftpcore/tftpd/internal/wire"
)

// State is a worker's lifecycle state, per spec.md §3.
type State int32

const (
	StateConstructed State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// session is the state every worker variant shares: the uuid-tagged
// socket, retry bookkeeping, peer-TID tracking, and the completion
// discipline of spec.md §4.4. The four worker constructors embed it and
// add only the state-machine step specific to their role, per spec.md
// §9's note against a shared inheritance hierarchy.
type session struct {
	id  uuid.UUID
	cfg Config
	// log is cfg.Log wrapped with this worker's correlation prefix, per
	// spec.md §3's ownership model: every log line this session emits is
	// distinguishable from every other worker's in a shared stream.
	log logging.Sink

	conn *net.UDPConn

	// peerAddr is nil until established. For server-role workers it is
	// fixed at construction time; for client-role workers it is learned
	// from the first datagram received, per SPEC_FULL.md §6 resolution 2.
	peerAddr  *net.UDPAddr
	peerFixed bool

	lastOutbound []byte
	retries      int

	state  atomic.Int32
	aborted atomic.Bool
	once   sync.Once
	onDone func(Outcome)
}

// newSession constructs the shared worker state. label (typically the
// transfer's filename) is appended to the worker's uuid to form the
// prefix every log line from this session carries, via
// logging.WithPrefix.
func newSession(conn *net.UDPConn, cfg Config, label string, onDone func(Outcome)) *session {
	id := uuid.New()
	return &session{
		id:     id,
		cfg:    cfg,
		log:    logging.WithPrefix(cfg.Log, fmt.Sprintf("[%s %s]", id, label)),
		conn:   conn,
		onDone: onDone,
	}
}

func (s *session) ID() uuid.UUID { return s.id }

func (s *session) State() State { return State(s.state.Load()) }

// start transitions Constructed -> Running, returning false if the
// worker was not in Constructed (Start is idempotent).
func (s *session) start() bool {
	return s.state.CompareAndSwap(int32(StateConstructed), int32(StateRunning))
}

func (s *session) abortRequested() bool { return s.aborted.Load() }

// Abort requests cancellation. It is legal only while Running and is
// idempotent: calls before Running or after exit have no effect, per
// spec.md §4.4.
func (s *session) Abort() {
	if s.State() != StateRunning {
		return
	}
	if s.aborted.CompareAndSwap(false, true) {
		// Forcing an already-past deadline interrupts a ReadFromUDP
		// currently blocked in receive().
		_ = s.conn.SetReadDeadline(time.Now())
	}
}

// sendFrame encodes and transmits pkt to addr, remembering it as the
// last outbound frame for retransmission and applying the configured
// artificial delay (spec.md §4.3) before the write.
func (s *session) sendFrame(pkt wire.Packet, addr *net.UDPAddr) error {
	b, err := wire.Encode(pkt)
	if err != nil {
		return err
	}
	s.lastOutbound = b
	if s.cfg.Delay != nil {
		time.Sleep(s.cfg.Delay.Next())
	}
	_, err = s.conn.WriteToUDP(b, addr)
	return err
}

func (s *session) resendLast(addr *net.UDPAddr) error {
	if s.lastOutbound == nil {
		return nil
	}
	if s.cfg.Delay != nil {
		time.Sleep(s.cfg.Delay.Next())
	}
	_, err := s.conn.WriteToUDP(s.lastOutbound, addr)
	return err
}

// retry increments the retry counter and resends the last outbound
// frame, reporting whether the maximum has not yet been exceeded. Used
// for the timeout and wrong-peer-TID transitions, which spec.md §4.4
// spells out as resend-and-count events.
func (s *session) retry(addr *net.UDPAddr) bool {
	s.retries++
	if s.retries > s.cfg.MaxRetries {
		s.log.Warnf("giving up after %d retries", s.retries-1)
		return false
	}
	s.log.Debugf("retry %d/%d", s.retries, s.cfg.MaxRetries)
	_ = s.resendLast(addr)
	return true
}

// discardRetry increments the retry counter without resending anything,
// reporting whether the maximum has not yet been exceeded. Used for a
// wrong-numbered ack on an already-established peer TID (a wrong-numbered
// data block is re-acked instead): the
// state tables in spec.md §4.6/§4.7 specify "discard; ++retries" for
// that event, distinct from the resend-and-count timeout transition.
func (s *session) discardRetry() bool {
	s.retries++
	if s.retries > s.cfg.MaxRetries {
		s.log.Warnf("giving up after %d retries", s.retries-1)
		return false
	}
	s.log.Debugf("discarding wrong-numbered packet, retry %d/%d", s.retries, s.cfg.MaxRetries)
	return true
}

func (s *session) resetRetries() { s.retries = 0 }

// logThroughput writes a human-readable transfer-complete summary line,
// per SPEC_FULL.md §2's go-humanize wiring (replacing the teacher's
// bytes/elapsed -> Mbps speed() helper).
func (s *session) logThroughput(bytes int64, elapsed time.Duration) {
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	rate := uint64(float64(bytes) / elapsed.Seconds())
	s.log.Infof("transferred %s in %s (%s/s)",
		humanize.Bytes(uint64(bytes)), elapsed, humanize.Bytes(rate))
}

// recvOutcome is the result of one receive-with-timeout cycle.
type recvOutcome struct {
	pkt      wire.Packet
	from     *net.UDPAddr
	timedOut bool
	aborted  bool
}

// receive implements the "receive-with-timeout" discipline of spec.md
// §4.4 as a single blocking read gated by a deadline (a single
// awaitable that yields a datagram or a timeout), rather than two racing
// operations. Abort() forces the deadline into the past, which unblocks
// a pending ReadFromUDP; the aborted flag (checked first) distinguishes
// that wakeup from a genuine protocol timeout.
//
// If the decoded opcode does not match expected but is an Error packet,
// it is returned as the Packet rather than as an error, so callers can
// always branch on the packet's concrete type for the Error case.
func (s *session) receive(expected wire.Opcode) (recvOutcome, error) {
	buf := make([]byte, wire.BlockSize+4)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		return recvOutcome{}, err
	}

	n, from, err := s.conn.ReadFromUDP(buf)

	if s.abortRequested() {
		return recvOutcome{aborted: true}, nil
	}

	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return recvOutcome{timedOut: true}, nil
		}
		return recvOutcome{}, err
	}

	pkt, decErr := wire.Decode(buf[:n], expected)
	if decErr != nil {
		var mismatch *wire.OpcodeMismatchError
		if stderrors.As(decErr, &mismatch) && mismatch.ErrorPkt != nil {
			return recvOutcome{pkt: *mismatch.ErrorPkt, from: from}, nil
		}
		return recvOutcome{from: from}, decErr
	}
	return recvOutcome{pkt: pkt, from: from}, nil
}

// acceptPeer validates that from matches the established peer TID,
// establishing it on the first call for workers that do not fix it at
// construction time (client-role workers), per SPEC_FULL.md §6
// resolution 2.
func (s *session) acceptPeer(from *net.UDPAddr) bool {
	if !s.peerFixed {
		s.peerAddr = from
		s.peerFixed = true
		return true
	}
	return s.peerAddr.IP.Equal(from.IP) && s.peerAddr.Port == from.Port
}

// exit runs the completion discipline exactly once: close the socket
// and invoke the callback. Callers close any file handle themselves
// before calling exit, since the handle type differs per worker role.
func (s *session) exit(outcome Outcome) {
	s.once.Do(func() {
		if outcome.Kind == KindSuccess {
			s.state.Store(int32(StateCompleted))
			s.log.Infof("transfer completed")
		} else {
			s.state.Store(int32(StateAborted))
			s.log.Errorf("transfer aborted: %s", outcome)
		}
		_ = s.conn.Close()
		if s.onDone != nil {
			s.onDone(outcome)
		}
	})
}
