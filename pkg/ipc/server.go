// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/kraklabs/memsearchd/pkg/cache"
	"github.com/kraklabs/memsearchd/pkg/search"
)

// Metrics is the subset of internal/metrics.Registry the server reports
// to. Declared locally so ipc does not import internal/metrics (and with
// it Prometheus); *metrics.Registry satisfies it.
type Metrics interface {
	IncRequest(requestType, status string)
	ObserveSearch(d time.Duration)
	SetQueueDepth(n int)
	SetActiveTenants(n int)
	SetMappedFiles(n int)
	SetMappedBytes(n int64)
}

// Config configures a Server.
type Config struct {
	RequestSocketPath string
	ResponsePrefix    string
	Workers           int
	QueueSize         int
	CacheOptions      cache.BuildOptions
	SearchLimits      search.Limits
	Logger            *slog.Logger
	Metrics           Metrics
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
		if c.Workers < 2 {
			c.Workers = 2
		}
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.ResponsePrefix == "" {
		c.ResponsePrefix = "/tmp/mem_search_service"
	}
	if c.RequestSocketPath == "" {
		c.RequestSocketPath = "/tmp/mem_search_service_requests.sock"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// job is one raw request frame waiting to be dispatched to a worker.
type job struct {
	payload []byte
}

// Server is the daemon's IPC core: the request-socket listener, the
// bounded work queue, and the worker pool that dispatches against the
// tenant table.
type Server struct {
	cfg     Config
	tenants *tenantTable
	queue   chan job
	log     *slog.Logger

	listener net.Listener
	wg       sync.WaitGroup
}

// New constructs a Server. Call Serve to start accepting connections.
func New(cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:     cfg,
		tenants: newTenantTable(),
		queue:   make(chan job, cfg.QueueSize),
		log:     cfg.Logger,
	}
}

// Serve unlinks any stale request socket, binds and listens, and runs
// the listener and worker pool until ctx is canceled. It returns once
// every goroutine has stopped and the request socket has been removed.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.cfg.RequestSocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlinking stale request socket: %w", err)
	}

	ln, err := net.Listen("unix", s.cfg.RequestSocketPath)
	if err != nil {
		return fmt.Errorf("binding request socket: %w", err)
	}
	if err := os.Chmod(s.cfg.RequestSocketPath, 0o770); err != nil {
		ln.Close()
		return fmt.Errorf("setting request socket permissions: %w", err)
	}
	s.listener = ln

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx)
	}

	s.wg.Add(1)
	go s.runListener(ctx)

	<-ctx.Done()
	ln.Close()
	s.wg.Wait()
	s.tenants.closeAll()
	os.Remove(s.cfg.RequestSocketPath)
	return nil
}

func (s *Server) runListener(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("accept failed", "err", err)
			continue
		}
		s.handleConnection(ctx, conn)
	}
}

// handleConnection reads exactly one frame — the request socket is
// connectionless per request — and enqueues it for a worker.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	payload, err := readFrame(conn)
	if err != nil {
		s.log.Debug("dropping connection: read failed", "err", err)
		return
	}
	select {
	case s.queue <- job{payload: payload}:
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.SetQueueDepth(len(s.queue))
		}
	case <-ctx.Done():
	}
}

func (s *Server) runWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.SetQueueDepth(len(s.queue))
			}
			s.dispatch(ctx, j.payload)
		}
	}
}

// dispatch parses one request frame and routes it, recovering from any
// panic raised while executing a search so one bad query never takes
// down a worker.
func (s *Server) dispatch(ctx context.Context, payload []byte) {
	var env requestEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.log.Warn("dropping malformed request frame", "err", err)
		return
	}

	switch env.Type {
	case "alloc_pid":
		s.handleAlloc(payload)
	case "release_pid":
		s.handleRelease(payload)
	case "request_ripgrep":
		s.handleSearch(ctx, payload)
	default:
		s.log.Warn("unknown request type", "type", env.Type)
	}
}

func (s *Server) handleAlloc(payload []byte) {
	var req AllocRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.log.Warn("malformed alloc_pid request", "err", err)
		return
	}

	// alloc_pid for an already-bound pid releases the prior binding
	// before the new cache is built (release-then-allocate).
	if prev, ok := s.tenants.remove(req.Pid); ok {
		prev.cache.Close()
		prev.writer.close()
		s.reportTenantGauges()
	}

	cc, err := cache.Build(req.RepoDirPath, s.cfg.CacheOptions)
	if err != nil {
		s.log.Warn("alloc_pid failed to build cache", "pid", req.Pid, "path", req.RepoDirPath, "err", err)
		s.countRequest("alloc_pid", "error")
		// The response socket was never recorded, so there is nowhere to
		// report this beyond the daemon's own log.
		return
	}

	conn, err := net.Dial("unix", responseSocketPath(s.cfg.ResponsePrefix, req.Pid))
	if err != nil {
		s.log.Warn("alloc_pid could not connect to response socket", "pid", req.Pid, "err", err)
		cc.Close()
		s.countRequest("alloc_pid", "error")
		return
	}

	s.tenants.put(req.Pid, &tenant{cache: cc, writer: &responseWriter{conn: conn}})
	s.reportTenantGauges()

	t, _ := s.tenants.get(req.Pid)
	if err := t.writer.write(okReply(fmt.Sprintf("Allocated %d files", len(cc.Files)))); err != nil {
		s.log.Warn("alloc_pid reply write failed", "pid", req.Pid, "err", err)
	}
	s.countRequest("alloc_pid", "ok")
}

func (s *Server) handleRelease(payload []byte) {
	var req ReleaseRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.log.Warn("malformed release_pid request", "err", err)
		return
	}

	t, ok := s.tenants.remove(req.Pid)
	if !ok {
		// release of a never-allocated pid is a documented no-op; there
		// is no writer to reply on, so there is nothing more to do.
		s.countRequest("release_pid", "ok")
		return
	}
	s.reportTenantGauges()
	t.writer.write(okReply("Released"))
	t.cache.Close()
	t.writer.close()
	s.countRequest("release_pid", "ok")
}

func (s *Server) handleSearch(ctx context.Context, payload []byte) {
	var req SearchRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.log.Warn("malformed request_ripgrep request", "err", err)
		return
	}

	t, ok := s.tenants.get(req.Pid)
	if !ok {
		s.replyUnknownTenant(req.Pid)
		s.countRequest("request_ripgrep", "error")
		return
	}

	reply := s.runSearch(ctx, t.cache, req)
	if err := t.writer.write(reply); err != nil {
		// EPIPE on the response socket means the client is gone; treat
		// it as an implicit release so the table doesn't leak.
		s.log.Debug("response socket write failed, releasing tenant", "pid", req.Pid, "err", err)
		s.tenants.remove(req.Pid)
		t.cache.Close()
		t.writer.close()
	}

	status := "ok"
	if reply.ResponseStatus == 0 {
		status = "error"
	}
	s.countRequest("request_ripgrep", status)
}

// runSearch executes the search with a recover guard: an internal panic
// is logged and reported as a generic error, per spec.md §7 item 8, and
// the worker is left free to process the next job.
func (s *Server) runSearch(ctx context.Context, cc *cache.CodebaseCache, req SearchRequest) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic recovered during search", "pid", req.Pid, "panic", r)
			reply = errReply("internal error")
		}
	}()

	start := time.Now()
	text, err := search.Run(ctx, cc, req.Pattern, req.Paths, req.Options.toSearchOptions(), s.cfg.SearchLimits)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveSearch(time.Since(start))
	}
	if err != nil {
		return errReply(fmt.Sprintf("regex compile error: %v", err))
	}
	return okReply(text)
}

func (s *Server) replyUnknownTenant(pid uint32) {
	conn, err := net.Dial("unix", responseSocketPath(s.cfg.ResponsePrefix, pid))
	if err != nil {
		s.log.Debug("unknown tenant and no response socket reachable", "pid", pid, "err", err)
		return
	}
	defer conn.Close()
	writeJSONFrame(conn, errReply("unknown pid"))
}

func (s *Server) countRequest(requestType, status string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncRequest(requestType, status)
	}
}

// reportTenantGauges refreshes the active-tenant, mapped-file, and
// mapped-byte gauges after a tenant binding changes.
func (s *Server) reportTenantGauges() {
	if s.cfg.Metrics == nil {
		return
	}
	s.cfg.Metrics.SetActiveTenants(s.tenants.size())
	files, bytes := s.tenants.totals()
	s.cfg.Metrics.SetMappedFiles(files)
	s.cfg.Metrics.SetMappedBytes(bytes)
}
