package server_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tftpcore/tftpd/internal/server"
	"github.com/tftpcore/tftpd/internal/transfer"
)

func TestListener_ServesDownload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello, tftp"), 0o644))

	l, err := server.New(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")}, dir, transfer.Config{Timeout: 300 * time.Millisecond, MaxRetries: 3}, nil)
	require.NoError(t, err)
	l.Start()
	defer l.Stop()

	clientDir := t.TempDir()
	clientPath := filepath.Join(clientDir, "hello.txt")
	done := make(chan transfer.Outcome, 1)
	client, err := transfer.NewDownloadClient(l.Addr(), clientPath, transfer.Config{Timeout: 300 * time.Millisecond, MaxRetries: 3}, func(o transfer.Outcome) { done <- o })
	require.NoError(t, err)
	client.Start()

	select {
	case o := <-done:
		assert.Equal(t, transfer.KindSuccess, o.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("download did not complete")
	}

	got, err := os.ReadFile(clientPath)
	require.NoError(t, err)
	assert.Equal(t, "hello, tftp", string(got))
}

func TestListener_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	secretDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(secretDir, "secret.txt"), []byte("top secret"), 0o644))

	l, err := server.New(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")}, dir, transfer.Config{Timeout: 300 * time.Millisecond, MaxRetries: 2}, nil)
	require.NoError(t, err)
	l.Start()
	defer l.Stop()

	traversal := filepath.Join("..", filepath.Base(secretDir), "secret.txt")
	clientDir := t.TempDir()
	done := make(chan transfer.Outcome, 1)

	// NewDownloadClient uses the same string as both the wire request
	// filename and the local write path; driving a traversal attempt
	// through it exercises resolvePath's filepath.Base confinement.
	evilClient, err := transfer.NewDownloadClient(l.Addr(), filepath.Join(clientDir, traversal), transfer.Config{Timeout: 300 * time.Millisecond, MaxRetries: 2}, func(o transfer.Outcome) { done <- o })
	require.NoError(t, err)
	evilClient.Start()

	select {
	case o := <-done:
		assert.Equal(t, transfer.KindServerErrorResponse, o.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}
}

func TestListener_StopDoesNotAbortWorkers(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 2048)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.bin"), content, 0o644))

	l, err := server.New(&net.UDPAddr{IP: net.ParseIP("127.0.0.1")}, dir, transfer.Config{Timeout: 300 * time.Millisecond, MaxRetries: 3}, nil)
	require.NoError(t, err)
	l.Start()

	clientDir := t.TempDir()
	clientPath := filepath.Join(clientDir, "big.bin")
	done := make(chan transfer.Outcome, 1)
	client, err := transfer.NewDownloadClient(l.Addr(), clientPath, transfer.Config{Timeout: 300 * time.Millisecond, MaxRetries: 3}, func(o transfer.Outcome) { done <- o })
	require.NoError(t, err)
	client.Start()

	// Wait until the first data block has been written locally, which
	// proves the listener has spawned a worker, then stop the listener;
	// the worker it already spawned must still be allowed to finish.
	require.Eventually(t, func() bool {
		_, statErr := os.Stat(clientPath)
		return statErr == nil
	}, time.Second, 5*time.Millisecond)
	l.Stop()

	select {
	case o := <-done:
		assert.Equal(t, transfer.KindSuccess, o.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not finish after listener Stop")
	}

	got, err := os.ReadFile(clientPath)
	require.NoError(t, err)
	assert.Len(t, got, len(content))
}
