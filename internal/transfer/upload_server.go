package transfer

import (
	"net"
	"os"
	"time"

	"github.com/tftpcore/tftpd/internal/fsio"
	"github.com/tftpcore/tftpd/internal/wire"
)

// UploadServer accepts a file from the requester that sent a
// write-request, per spec.md §4.8. Its send/receive pattern mirrors
// DownloadClient, except the peer TID is fixed at construction from the
// accepted request.
type UploadServer struct {
	*session
	filename string
	writer   fsio.Writer
	started  time.Time
	received int64
}

// NewUploadServer constructs an upload-server worker bound to a fresh
// ephemeral local UDP port, accepting filename from requester. If the
// target file already exists, an Error packet (FileAlreadyExists) is
// sent to requester and the constructor returns a non-nil error; the
// caller should not call Start in that case.
func NewUploadServer(requester *net.UDPAddr, filename string, cfg Config, onDone func(Outcome)) (*UploadServer, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	s := newSession(conn, cfg.withDefaults(), filename, onDone)
	s.peerAddr = requester
	s.peerFixed = true

	if _, statErr := os.Stat(filename); statErr == nil {
		_ = s.sendFrame(wire.Error{Code: wire.ErrFileAlreadyExists, Message: "file already exists"}, requester)
		_ = conn.Close()
		return nil, &fsio.Error{Kind: fsio.KindAlreadyExists, Err: &os.PathError{Op: "create", Path: filename, Err: os.ErrExist}}
	}

	writer, err := fsio.OpenForWrite(filename, true)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &UploadServer{session: s, filename: filename, writer: writer}, nil
}

// Start begins the transfer on a new goroutine. Legal only once, from
// the Constructed state; a second call is a no-op.
func (up *UploadServer) Start() {
	if !up.start() {
		return
	}
	go up.run()
}

func (up *UploadServer) run() {
	up.started = time.Now()
	if err := up.sendFrame(wire.Ack{Block: 0}, up.peerAddr); err != nil {
		up.finish(failure(KindConnectionLost, err))
		return
	}

	var next uint16 = 1
	for {
		out, err := up.receive(wire.OpData)

		switch {
		case out.aborted:
			up.finish(Outcome{Kind: KindUserRequestedAbort})
			return

		case out.timedOut:
			if !up.retry(up.peerAddr) {
				up.finish(failure(KindReceiveTimeout, nil))
				return
			}
			continue

		case err != nil:
			if !up.retry(up.peerAddr) {
				up.finish(failure(KindInvalidServerResponse, err))
				return
			}
			continue
		}

		if !up.acceptPeer(out.from) {
			if !up.retry(up.peerAddr) {
				up.finish(failure(KindNetworkInterference, nil))
				return
			}
			continue
		}
		up.resetRetries()

		switch pkt := out.pkt.(type) {
		case wire.Error:
			up.finish(protocolFailure(pkt))
			return

		case wire.Data:
			if pkt.Block != next {
				if err := up.sendFrame(wire.Ack{Block: pkt.Block}, up.peerAddr); err != nil {
					up.finish(failure(KindConnectionLost, err))
					return
				}
				continue
			}

			if err := up.writer.Write(pkt.Payload); err != nil {
				up.finish(failure(KindDiskIOError, err))
				return
			}
			up.received += int64(len(pkt.Payload))
			if err := up.sendFrame(wire.Ack{Block: pkt.Block}, up.peerAddr); err != nil {
				up.finish(failure(KindConnectionLost, err))
				return
			}

			if pkt.Terminal() {
				up.logThroughput(up.received, time.Since(up.started))
				up.finish(success())
				return
			}
			next = pkt.Block + 1

		default:
			up.finish(failure(KindStateMachineBroken, nil))
			return
		}
	}
}

func (up *UploadServer) finish(outcome Outcome) {
	if up.writer != nil {
		_ = up.writer.Close()
	}
	up.exit(outcome)
}
