// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ipc

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClient owns a request-socket path and a listening response
// socket, mimicking the client side of the protocol closely enough to
// drive Server through its full lifecycle.
type testClient struct {
	t                 *testing.T
	requestSocketPath string
	responseListener  net.Listener
	responseConn      net.Conn
}

func newTestClient(t *testing.T, requestSocketPath, responsePrefix string, pid uint32) *testClient {
	t.Helper()
	ln, err := net.Listen("unix", responseSocketPath(responsePrefix, pid))
	require.NoError(t, err)
	return &testClient{t: t, requestSocketPath: requestSocketPath, responseListener: ln}
}

func (c *testClient) send(v any) {
	c.t.Helper()
	conn, err := net.Dial("unix", c.requestSocketPath)
	require.NoError(c.t, err)
	defer conn.Close()
	payload, err := json.Marshal(v)
	require.NoError(c.t, err)
	require.NoError(c.t, writeFrame(conn, payload))
}

// acceptResponse accepts the daemon's connect-back on the response
// socket, once, and keeps it open for subsequent replies.
func (c *testClient) acceptResponse() {
	c.t.Helper()
	conn, err := c.responseListener.Accept()
	require.NoError(c.t, err)
	c.responseConn = conn
}

func (c *testClient) readReply() Reply {
	c.t.Helper()
	c.responseConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	payload, err := readFrame(c.responseConn)
	require.NoError(c.t, err)
	var reply Reply
	require.NoError(c.t, json.Unmarshal(payload, &reply))
	return reply
}

func startTestServer(t *testing.T) (sockDir string, cfg Config) {
	t.Helper()
	dir := t.TempDir()
	cfg = Config{
		RequestSocketPath: filepath.Join(dir, "requests.sock"),
		ResponsePrefix:    filepath.Join(dir, "resp"),
		Workers:           2,
		QueueSize:         16,
	}
	srv := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.RequestSocketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	return dir, cfg
}

func TestAllocSearchRelease(t *testing.T) {
	_, cfg := startTestServer(t)

	repoDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "a.txt"), []byte("hello\nworld\n"), 0o644))

	const pid = uint32(1001)
	client := newTestClient(t, cfg.RequestSocketPath, cfg.ResponsePrefix, pid)
	client.send(AllocRequest{Type: "alloc_pid", Pid: pid, RepoDirPath: repoDir})
	client.acceptResponse()

	allocReply := client.readReply()
	require.Equal(t, 1, allocReply.ResponseStatus)
	require.Contains(t, allocReply.Text, "Allocated 1 files")

	client.send(SearchRequest{
		Type:    "request_ripgrep",
		Pid:     pid,
		Pattern: "world",
		Options: SearchOptions{LineNumber: true},
	})
	searchReply := client.readReply()
	require.Equal(t, 1, searchReply.ResponseStatus)
	require.Equal(t, "a.txt:2:world\n", searchReply.Text)

	client.send(ReleaseRequest{Type: "release_pid", Pid: pid})
}

func TestSearchUnknownTenant(t *testing.T) {
	_, cfg := startTestServer(t)

	const pid = uint32(9999)
	client := newTestClient(t, cfg.RequestSocketPath, cfg.ResponsePrefix, pid)

	// For an unknown tenant the daemon dials the response socket only
	// after processing the request, so accept concurrently with send.
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := client.responseListener.Accept()
		require.NoError(t, err)
		accepted <- conn
	}()

	client.send(SearchRequest{Type: "request_ripgrep", Pid: pid, Pattern: "x"})

	select {
	case client.responseConn = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for response socket connect-back")
	}

	reply := client.readReply()
	require.Equal(t, 0, reply.ResponseStatus)
	require.Equal(t, "unknown pid", reply.Error)
}

func TestReleaseUnknownPidIsNoop(t *testing.T) {
	_, cfg := startTestServer(t)
	client := newTestClient(t, cfg.RequestSocketPath, cfg.ResponsePrefix, 42)
	client.send(ReleaseRequest{Type: "release_pid", Pid: 42})
	// No response socket accept is required: release of a never-allocated
	// pid never dials back. The test passing without hanging is the
	// assertion.
}
