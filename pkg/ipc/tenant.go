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
	"fmt"
	"net"
	"sync"

	"github.com/kraklabs/memsearchd/pkg/cache"
)

// responseWriter serializes writes to one tenant's persistent response
// socket connection behind its own mutex, per spec.md §5's "response
// writers are each guarded by their own mutex."
type responseWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *responseWriter) write(reply Reply) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return writeJSONFrame(w.conn, reply)
}

func (w *responseWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Close()
}

// tenant pairs an immutable codebase snapshot with the open connection
// back to its owning client.
type tenant struct {
	cache  *cache.CodebaseCache
	writer *responseWriter
}

// tenantTable is the daemon's one piece of mutable shared state. The
// critical section held under mu never does I/O: it only clones
// references, per spec.md §5.
type tenantTable struct {
	mu      sync.Mutex
	tenants map[uint32]*tenant
}

func newTenantTable() *tenantTable {
	return &tenantTable{tenants: make(map[uint32]*tenant)}
}

// put installs t for pid, closing and discarding any binding it
// replaces. handleAlloc already releases a prior binding before building
// the new cache, so a replacement here only happens when two alloc_pid
// requests for the same pid overlap.
func (tt *tenantTable) put(pid uint32, t *tenant) {
	tt.mu.Lock()
	prev := tt.tenants[pid]
	tt.tenants[pid] = t
	tt.mu.Unlock()

	if prev != nil {
		prev.cache.Close()
		prev.writer.close()
	}
}

// get clones out the tenant's cache and writer references under the
// lock, then releases it before the caller does any I/O or search work.
func (tt *tenantTable) get(pid uint32) (*tenant, bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	t, ok := tt.tenants[pid]
	return t, ok
}

// remove deletes pid's binding and returns it, or reports false if pid
// was never bound (release_pid on an unknown pid is a documented no-op).
func (tt *tenantTable) remove(pid uint32) (*tenant, bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	t, ok := tt.tenants[pid]
	if ok {
		delete(tt.tenants, pid)
	}
	return t, ok
}

// size reports the number of currently bound tenants, for the active
// tenants gauge.
func (tt *tenantTable) size() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return len(tt.tenants)
}

// totals reports the aggregate mapped file count and byte count across
// every currently bound tenant, for the mapped-files/mapped-bytes gauges.
func (tt *tenantTable) totals() (files int, bytes int64) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	for _, t := range tt.tenants {
		files += len(t.cache.Files)
		bytes += t.cache.TotalBytes
	}
	return files, bytes
}

// closeAll tears down every bound tenant, used on daemon shutdown.
func (tt *tenantTable) closeAll() {
	tt.mu.Lock()
	tenants := tt.tenants
	tt.tenants = make(map[uint32]*tenant)
	tt.mu.Unlock()

	for _, t := range tenants {
		t.cache.Close()
		t.writer.close()
	}
}

func responseSocketPath(prefix string, pid uint32) string {
	return fmt.Sprintf("%s_response_%d.sock", prefix, pid)
}
