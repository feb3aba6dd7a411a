package transfer

import (
	"net"
	"time"

	"github.com/tftpcore/tftpd/internal/fsio"
	"github.com/tftpcore/tftpd/internal/wire"
)

// UploadClient sends a local file to a remote server: it issues a
// write-request, then streams data blocks as each ack arrives, per
// spec.md §4.6.
type UploadClient struct {
	*session
	serverAddr *net.UDPAddr
	filename   string
	reader     fsio.Reader
	started    time.Time
	sent       int64
}

// NewUploadClient constructs an upload-client worker bound to a fresh
// ephemeral local UDP port. filename is the local path read from.
func NewUploadClient(serverAddr *net.UDPAddr, filename string, cfg Config, onDone func(Outcome)) (*UploadClient, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	return &UploadClient{
		session:    newSession(conn, cfg.withDefaults(), filename, onDone),
		serverAddr: serverAddr,
		filename:   filename,
	}, nil
}

// Start begins the transfer on a new goroutine. Legal only once, from
// the Constructed state; a second call is a no-op.
func (u *UploadClient) Start() {
	if !u.start() {
		return
	}
	go u.run()
}

func (u *UploadClient) sendTarget() *net.UDPAddr {
	if u.peerFixed {
		return u.peerAddr
	}
	return u.serverAddr
}

func (u *UploadClient) run() {
	u.started = time.Now()
	reader, err := fsio.OpenForRead(u.filename)
	if err != nil {
		u.exit(failure(KindDiskIOError, err))
		return
	}
	u.reader = reader

	req := wire.Request{Op: wire.OpWriteRequest, Filename: u.filename, Mode: wire.ModeOctet}
	if err := u.sendFrame(req, u.serverAddr); err != nil {
		u.finish(failure(KindConnectionLost, err))
		return
	}

	var lastSent uint16 = 0
	terminalSent := false

	for {
		out, err := u.receive(wire.OpAck)

		switch {
		case out.aborted:
			u.finish(Outcome{Kind: KindUserRequestedAbort})
			return

		case out.timedOut:
			if !u.retry(u.sendTarget()) {
				u.finish(failure(KindReceiveTimeout, nil))
				return
			}
			continue

		case err != nil:
			if !u.retry(u.sendTarget()) {
				u.finish(failure(KindInvalidServerResponse, err))
				return
			}
			continue
		}

		if !u.acceptPeer(out.from) {
			if !u.retry(u.sendTarget()) {
				u.finish(failure(KindNetworkInterference, nil))
				return
			}
			continue
		}

		switch pkt := out.pkt.(type) {
		case wire.Error:
			u.finish(protocolFailure(pkt))
			return

		case wire.Ack:
			if pkt.Block != lastSent {
				// wrong-numbered ack: discard and count, no resend,
				// per spec.md §4.6's "ack with wrong number" row.
				if !u.discardRetry() {
					u.finish(failure(KindNetworkInterference, nil))
					return
				}
				continue
			}
			u.resetRetries()

			if terminalSent {
				u.logThroughput(u.sent, time.Since(u.started))
				u.finish(success())
				return
			}

			buf := make([]byte, wire.BlockSize)
			n, eof, err := u.reader.ReadInto(buf)
			if err != nil {
				u.finish(failure(KindDiskIOError, err))
				return
			}
			block := lastSent + 1
			data := wire.Data{Block: block, Payload: buf[:n]}
			if err := u.sendFrame(data, u.peerAddr); err != nil {
				u.finish(failure(KindConnectionLost, err))
				return
			}
			u.sent += int64(n)
			lastSent = block
			if eof || n < wire.BlockSize {
				terminalSent = true
			}

		default:
			u.finish(failure(KindStateMachineBroken, nil))
			return
		}
	}
}

func (u *UploadClient) finish(outcome Outcome) {
	if u.reader != nil {
		_ = u.reader.Close()
	}
	u.exit(outcome)
}
