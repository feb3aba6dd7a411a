package transfer

import (
	"net"
	"time"

	"github.com/tftpcore/tftpd/internal/fsio"
	"github.com/tftpcore/tftpd/internal/wire"
)

// DownloadClient reads a remote file into a local path: it sends a
// read-request to the server and writes each received data block to
// filename, per spec.md §4.5.
type DownloadClient struct {
	*session
	serverAddr *net.UDPAddr
	filename   string
	writer     fsio.Writer
	started    time.Time
	received   int64
}

// NewDownloadClient constructs a download-client worker bound to a
// fresh ephemeral local UDP port. filename is the local path the
// received file is written to, lazily created on the first data block.
func NewDownloadClient(serverAddr *net.UDPAddr, filename string, cfg Config, onDone func(Outcome)) (*DownloadClient, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	return &DownloadClient{
		session:    newSession(conn, cfg.withDefaults(), filename, onDone),
		serverAddr: serverAddr,
		filename:   filename,
	}, nil
}

// Start begins the transfer on a new goroutine. Legal only once, from
// the Constructed state; a second call is a no-op.
func (c *DownloadClient) Start() {
	if !c.start() {
		return
	}
	go c.run()
}

func (c *DownloadClient) sendTarget() *net.UDPAddr {
	if c.peerFixed {
		return c.peerAddr
	}
	return c.serverAddr
}

func (c *DownloadClient) run() {
	c.started = time.Now()
	req := wire.Request{Op: wire.OpReadRequest, Filename: c.filename, Mode: wire.ModeOctet}
	if err := c.sendFrame(req, c.serverAddr); err != nil {
		c.exit(failure(KindConnectionLost, err))
		return
	}

	var next uint16 = 1
	for {
		out, err := c.receive(wire.OpData)

		switch {
		case out.aborted:
			c.finish(Outcome{Kind: KindUserRequestedAbort})
			return

		case out.timedOut:
			if !c.retry(c.sendTarget()) {
				c.finish(failure(KindReceiveTimeout, nil))
				return
			}
			continue

		case err != nil:
			if !c.retry(c.sendTarget()) {
				c.finish(failure(KindInvalidServerResponse, err))
				return
			}
			continue
		}

		if !c.acceptPeer(out.from) {
			if !c.retry(c.sendTarget()) {
				c.finish(failure(KindNetworkInterference, nil))
				return
			}
			continue
		}
		c.resetRetries()

		switch pkt := out.pkt.(type) {
		case wire.Error:
			c.finish(protocolFailure(pkt))
			return

		case wire.Data:
			if pkt.Block != next {
				// out-of-order: re-ack the received block number
				// itself, per SPEC_FULL.md §6 resolution 1.
				if err := c.sendFrame(wire.Ack{Block: pkt.Block}, c.peerAddr); err != nil {
					c.finish(failure(KindConnectionLost, err))
					return
				}
				continue
			}

			if c.writer == nil {
				w, err := fsio.OpenForWrite(c.filename, true)
				if err != nil {
					c.finish(failure(KindDiskIOError, err))
					return
				}
				c.writer = w
			}
			if err := c.writer.Write(pkt.Payload); err != nil {
				c.finish(failure(KindDiskIOError, err))
				return
			}
			c.received += int64(len(pkt.Payload))
			if err := c.sendFrame(wire.Ack{Block: pkt.Block}, c.peerAddr); err != nil {
				c.finish(failure(KindConnectionLost, err))
				return
			}

			if pkt.Terminal() {
				c.logThroughput(c.received, time.Since(c.started))
				c.finish(success())
				return
			}
			next = pkt.Block + 1

		default:
			c.finish(failure(KindStateMachineBroken, nil))
			return
		}
	}
}

func (c *DownloadClient) finish(outcome Outcome) {
	if c.writer != nil {
		_ = c.writer.Close()
	}
	c.exit(outcome)
}
