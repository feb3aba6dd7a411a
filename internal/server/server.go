// Package server implements the listener/distributor of spec.md §4.9:
// it owns the well-known service port, demultiplexes inbound
// read/write-requests into per-transfer workers, and never blocks on a
// worker's lifetime.
package server

import (
	"net"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/tftpcore/tftpd/internal/logging"
	"github.com/tftpcore/tftpd/internal/transfer"
	"github.com/tftpcore/tftpd/internal/wire"
)

// Listener binds a UDP endpoint and spawns a download-server or
// upload-server worker per accepted request.
type Listener struct {
	conn    *net.UDPConn
	workDir string
	cfg     transfer.Config
	log     logging.Sink

	wg sync.WaitGroup
}

// New binds addr and returns a Listener serving files under workDir.
// The returned Listener is not yet accepting connections; call Start.
func New(addr *net.UDPAddr, workDir string, cfg transfer.Config, log logging.Sink) (*Listener, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Listener{conn: conn, workDir: workDir, cfg: cfg, log: log}, nil
}

// Addr reports the bound local endpoint.
func (l *Listener) Addr() *net.UDPAddr { return l.conn.LocalAddr().(*net.UDPAddr) }

// Start runs the accept loop on a new goroutine, per spec.md §4.9 steps
// 1-5. It returns immediately.
func (l *Listener) Start() {
	l.wg.Add(1)
	go l.acceptLoop()
}

// Stop cancels the listener's outstanding receive and closes its
// socket. Running workers are not affected — they outlive the
// listener, per spec.md §4.9 and §5.
func (l *Listener) Stop() {
	_ = l.conn.Close()
	l.wg.Wait()
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	buf := make([]byte, wire.BlockSize+512)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			// Closed socket (Stop) or a transient OS error: either way
			// the accept loop is done.
			return
		}

		pkt, err := wire.Decode(buf[:n], 0)
		if err != nil {
			l.log.Warnf("discarding malformed request from %s: %v", from, err)
			continue
		}

		req, ok := pkt.(wire.Request)
		if !ok {
			l.log.Warnf("discarding non-request opcode %s from %s", pkt.Opcode(), from)
			continue
		}

		l.dispatch(req, from)
	}
}

func (l *Listener) dispatch(req wire.Request, from *net.UDPAddr) {
	path := l.resolvePath(req.Filename)

	switch req.Op {
	case wire.OpReadRequest:
		onDone := func(o transfer.Outcome) {
			l.log.Infof("download to %s of %s finished: %s", from, req.Filename, o)
		}
		worker, err := transfer.NewDownloadServer(from, path, l.cfg, onDone)
		if err != nil {
			l.log.Warnf("download request for %s from %s rejected: %v", req.Filename, from, err)
			return
		}
		worker.Start()

	case wire.OpWriteRequest:
		onDone := func(o transfer.Outcome) {
			l.log.Infof("upload from %s of %s finished: %s", from, req.Filename, o)
		}
		worker, err := transfer.NewUploadServer(from, path, l.cfg, onDone)
		if err != nil {
			l.log.Warnf("upload request for %s from %s rejected: %v", req.Filename, from, err)
			return
		}
		worker.Start()

	default:
		l.log.Warnf("discarding request with unexpected opcode %s from %s", req.Op, from)
	}
}

// resolvePath confines the requested filename to workDir, stripping any
// directory components the peer supplied — the wire protocol carries a
// bare filename, not a path, per spec.md §3.
func (l *Listener) resolvePath(filename string) string {
	base := filepath.Base(filename)
	if l.workDir == "" {
		return base
	}
	return filepath.Join(l.workDir, base)
}
