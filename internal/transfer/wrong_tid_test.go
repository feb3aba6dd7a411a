package transfer

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tftpcore/tftpd/internal/wire"
)

// TestWrongTID_Discarded drives a DownloadClient against a hand-scripted
// fake server so the test can inject a spurious datagram from an
// unrelated endpoint mid-transfer, per spec.md §8 scenario 5: the
// worker must discard it, leave its block counter untouched, and only
// spend a retry — never accept it as real data.
func TestWrongTID_Discarded(t *testing.T) {
	fakeServer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer fakeServer.Close()

	attacker, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer attacker.Close()

	dir := t.TempDir()
	clientPath := filepath.Join(dir, "small")

	cfg := Config{Timeout: 400 * time.Millisecond, MaxRetries: 3}
	done := make(chan Outcome, 1)
	client, err := NewDownloadClient(fakeServer.LocalAddr().(*net.UDPAddr), clientPath, cfg, func(o Outcome) { done <- o })
	require.NoError(t, err)
	client.Start()

	// Read the RRQ to learn the client's TID.
	buf := make([]byte, 2048)
	n, clientAddr, err := fakeServer.ReadFromUDP(buf)
	require.NoError(t, err)
	_, err = wire.Decode(buf[:n], wire.OpReadRequest)
	require.NoError(t, err)

	// Establish the peer TID with a real first data block.
	data1, err := wire.EncodeData(wire.Data{Block: 1, Payload: []byte("AB")})
	require.NoError(t, err)
	_, err = fakeServer.WriteToUDP(data1, clientAddr)
	require.NoError(t, err)

	// Wait for the client to ack block 1 before injecting the attack,
	// so the worker is already past TID establishment.
	buf2 := make([]byte, 2048)
	n, _, err = fakeServer.ReadFromUDP(buf2)
	require.NoError(t, err)
	ack, err := wire.Decode(buf2[:n], wire.OpAck)
	require.NoError(t, err)
	require.Equal(t, wire.Ack{Block: 1}, ack)

	retriesBefore := client.retries

	spurious, err := wire.EncodeData(wire.Data{Block: 5, Payload: []byte("evil")})
	require.NoError(t, err)
	_, err = attacker.WriteToUDP(spurious, clientAddr)
	require.NoError(t, err)

	// Give the discard time to land, then complete the transfer for
	// real so the worker reaches a terminal state cleanly.
	time.Sleep(100 * time.Millisecond)
	assert.Greater(t, client.retries, retriesBefore, "a wrong-TID datagram must cost a retry")

	data2, err := wire.EncodeData(wire.Data{Block: 2, Payload: []byte("CD")})
	require.NoError(t, err)
	_, err = fakeServer.WriteToUDP(data2, clientAddr)
	require.NoError(t, err)

	outcome := <-done
	assert.Equal(t, KindSuccess, outcome.Kind)

	got, err := os.ReadFile(clientPath)
	require.NoError(t, err)
	assert.Equal(t, "ABCD", string(got), "the spurious block must never be written to the file")
}
