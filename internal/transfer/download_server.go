package transfer

import (
	"net"
	"time"

	"github.com/tftpcore/tftpd/internal/fsio"
	"github.com/tftpcore/tftpd/internal/wire"
)

// DownloadServer serves a local file to the requester that sent a
// read-request, per spec.md §4.7. Its send/receive pattern mirrors
// UploadClient, except the peer TID is fixed at construction from the
// accepted request rather than learned from the first reply.
type DownloadServer struct {
	*session
	filename string
	reader   fsio.Reader
	started  time.Time
	sent     int64
}

// NewDownloadServer constructs a download-server worker bound to a
// fresh ephemeral local UDP port, serving filename to requester. If the
// file cannot be opened for reading, an Error packet is sent to
// requester (FileNotFound or AccessViolation, per the fsio.FailureKind)
// and the constructor returns a non-nil error; the caller should not
// call Start in that case.
func NewDownloadServer(requester *net.UDPAddr, filename string, cfg Config, onDone func(Outcome)) (*DownloadServer, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	s := newSession(conn, cfg.withDefaults(), filename, onDone)
	s.peerAddr = requester
	s.peerFixed = true

	reader, openErr := fsio.OpenForRead(filename)
	if openErr != nil {
		code := wire.ErrNotDefined
		if fe, ok := openErr.(*fsio.Error); ok {
			switch fe.Kind {
			case fsio.KindNotFound:
				code = wire.ErrFileNotFound
			case fsio.KindPermissionDenied:
				code = wire.ErrAccessViolation
			}
		}
		_ = s.sendFrame(wire.Error{Code: code, Message: openErr.Error()}, requester)
		_ = conn.Close()
		return nil, openErr
	}

	return &DownloadServer{session: s, filename: filename, reader: reader}, nil
}

// Start begins the transfer on a new goroutine. Legal only once, from
// the Constructed state; a second call is a no-op.
func (d *DownloadServer) Start() {
	if !d.start() {
		return
	}
	go d.run()
}

func (d *DownloadServer) run() {
	d.started = time.Now()
	var lastSent uint16 = 0
	terminalSent := false

	sendNextBlock := func() (done bool) {
		buf := make([]byte, wire.BlockSize)
		n, eof, err := d.reader.ReadInto(buf)
		if err != nil {
			d.finish(failure(KindDiskIOError, err))
			return true
		}
		block := lastSent + 1
		data := wire.Data{Block: block, Payload: buf[:n]}
		if err := d.sendFrame(data, d.peerAddr); err != nil {
			d.finish(failure(KindConnectionLost, err))
			return true
		}
		d.sent += int64(n)
		lastSent = block
		if eof || n < wire.BlockSize {
			terminalSent = true
		}
		return false
	}

	if sendNextBlock() {
		return
	}

	for {
		out, err := d.receive(wire.OpAck)

		switch {
		case out.aborted:
			d.finish(Outcome{Kind: KindUserRequestedAbort})
			return

		case out.timedOut:
			if !d.retry(d.peerAddr) {
				d.finish(failure(KindReceiveTimeout, nil))
				return
			}
			continue

		case err != nil:
			if !d.retry(d.peerAddr) {
				d.finish(failure(KindInvalidServerResponse, err))
				return
			}
			continue
		}

		if !d.acceptPeer(out.from) {
			if !d.retry(d.peerAddr) {
				d.finish(failure(KindNetworkInterference, nil))
				return
			}
			continue
		}

		switch pkt := out.pkt.(type) {
		case wire.Error:
			d.finish(protocolFailure(pkt))
			return

		case wire.Ack:
			if pkt.Block != lastSent {
				// wrong-numbered ack: discard and count, no resend,
				// per spec.md §4.7's symmetry with §4.6's "ack with
				// wrong number" row.
				if !d.discardRetry() {
					d.finish(failure(KindNetworkInterference, nil))
					return
				}
				continue
			}
			d.resetRetries()

			if terminalSent {
				d.logThroughput(d.sent, time.Since(d.started))
				d.finish(success())
				return
			}
			if sendNextBlock() {
				return
			}

		default:
			d.finish(failure(KindStateMachineBroken, nil))
			return
		}
	}
}

func (d *DownloadServer) finish(outcome Outcome) {
	if d.reader != nil {
		_ = d.reader.Close()
	}
	d.exit(outcome)
}
