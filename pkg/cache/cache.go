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

// Package cache builds and holds the memory-mapped snapshot of a single
// tenant's codebase: a walk of the tree that decides what belongs in the
// snapshot, and the mmap'd byte slices it produces. A CodebaseCache is
// immutable once built; refreshing a tenant means building a new one and
// swapping it in, never mutating one in place.
package cache

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// MaxFileBytes is the default per-file size ceiling. Files larger than
// this are skipped rather than mapped; a single oversized file (a data
// dump, a vendored bundle) should not blow the tenant's memory budget.
const MaxFileBytes = 16 * 1024 * 1024

// binarySniffBytes is how much of a file's head is inspected for a NUL
// byte when deciding whether it looks like text.
const binarySniffBytes = 8192

// MappedFile is one file's memory-mapped contents plus the metadata
// needed to report match locations against it.
type MappedFile struct {
	// Path is the absolute path on disk.
	Path string
	// RelPath is Path relative to the cache root, using "/" separators.
	RelPath string
	// Data is the mapped, read-only file contents. Do not mutate.
	Data []byte
	// lineStarts holds the byte offset of the first byte of each line;
	// lineStarts[0] is always 0. Built lazily on first use.
	lineStarts   []int
	lineStartsMu sync.Once
}

// LineStarts returns the byte offset of the start of each line in Data,
// computing it on first call and caching the result.
func (m *MappedFile) LineStarts() []int {
	m.lineStartsMu.Do(func() {
		starts := []int{0}
		for i, b := range m.Data {
			if b == '\n' && i+1 < len(m.Data) {
				starts = append(starts, i+1)
			}
		}
		m.lineStarts = starts
	})
	return m.lineStarts
}

// LineAt returns the 1-based line number containing byte offset.
func (m *MappedFile) LineAt(offset int) int {
	starts := m.LineStarts()
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

// CodebaseCache is an immutable, memory-mapped snapshot of a directory
// tree, built once per alloc_pid request and discarded on release_pid.
type CodebaseCache struct {
	Root  string
	Files []*MappedFile

	TotalBytes   int64
	SkippedCount int

	log *slog.Logger
}

// BuildOptions controls how a CodebaseCache walks and filters its root.
type BuildOptions struct {
	// MaxFileBytes overrides MaxFileBytes when non-zero.
	MaxFileBytes int64
	// Logger receives per-file skip diagnostics at debug level. Defaults
	// to slog.Default() when nil.
	Logger *slog.Logger
	// ShowProgress renders a spinner-style progress bar on stderr tracking
	// files mapped so far, for interactive use against large codebases.
	// The total file count isn't known until the walk completes, so the
	// bar runs in indeterminate mode.
	ShowProgress bool
}

// Build walks root, memory-maps every file that passes the cache's
// filters (respects .gitignore/.ignore, skips .git, skips files over
// the size ceiling or that look binary), and returns the resulting
// CodebaseCache. A file the walk cannot stat, open, or map is logged
// and skipped rather than failing the whole build — one bad file should
// not prevent a tenant from getting a cache at all.
func Build(root string, opts BuildOptions) (*CodebaseCache, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	maxBytes := int64(MaxFileBytes)
	if opts.MaxFileBytes > 0 {
		maxBytes = opts.MaxFileBytes
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving cache root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat cache root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cache root %q is not a directory", absRoot)
	}

	w := &walker{
		root:      absRoot,
		maxBytes:  maxBytes,
		log:       log,
		visited:   make(map[visitedKey]struct{}),
		rootRules: newIgnoreSet(),
	}
	w.rootRules.loadFile(filepath.Join(absRoot, ".gitignore"))
	w.rootRules.loadFile(filepath.Join(absRoot, ".ignore"))

	if opts.ShowProgress {
		w.progress = newMapProgress()
		defer w.progress.finish()
	}

	if err := w.walk(absRoot, w.rootRules); err != nil {
		return nil, err
	}

	// Subdirectory goroutines finish in whatever order the scheduler
	// picks, so w.files arrives unordered; sort by RelPath to give the
	// walker a deterministic order for a given set of directory contents.
	sort.Slice(w.files, func(i, j int) bool {
		return w.files[i].RelPath < w.files[j].RelPath
	})

	cc := &CodebaseCache{
		Root:         absRoot,
		Files:        w.files,
		SkippedCount: w.skipped,
		log:          log,
	}
	for _, f := range cc.Files {
		cc.TotalBytes += int64(len(f.Data))
	}
	return cc, nil
}

// Close unmaps every file in the cache. It is safe to call once; calling
// it twice will return an error from the underlying munmap on the
// second attempt, which callers should treat as a logic bug upstream.
func (c *CodebaseCache) Close() error {
	var firstErr error
	for _, f := range c.Files {
		if err := munmapFile(f.Data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type visitedKey struct {
	dev, ino uint64
}

// walker holds the mutable state threaded through a single Build call.
type walker struct {
	root     string
	maxBytes int64
	log      *slog.Logger

	mu      sync.Mutex
	files   []*MappedFile
	skipped int

	visitedMu sync.Mutex
	visited   map[visitedKey]struct{}

	rootRules *ignoreSet
	progress  *mapProgress
}

// walk recurses into dir applying rules (accumulated from dir's
// ancestors plus dir's own .gitignore/.ignore, if any) and fans out one
// goroutine per subdirectory so large trees map in parallel. Hidden
// entries (name starts with ".", e.g. ".git", ".env", ".vscode/") are
// always skipped, matching ripgrep's default behavior.
func (w *walker) walk(dir string, rules *ignoreSet) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.log.Debug("skipping unreadable directory", "path", dir, "err", err)
		return nil
	}

	local := rules
	if dir != w.root {
		local = newIgnoreSet()
		local.rules = append(local.rules, rules.rules...)
		local.loadFile(filepath.Join(dir, ".gitignore"))
		local.loadFile(filepath.Join(dir, ".ignore"))
	}

	var wg sync.WaitGroup
	for _, entry := range entries {
		name := entry.Name()
		if name == "." || name == ".." {
			continue
		}
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)
		rel, err := filepath.Rel(w.root, full)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if local.matches(rel, true) {
				continue
			}
			if w.shouldSkipSymlinkLoop(full, entry) {
				continue
			}
			wg.Add(1)
			go func(full, rel string) {
				defer wg.Done()
				if err := w.walk(full, local); err != nil {
					w.log.Debug("walk error", "path", full, "err", err)
				}
			}(full, rel)
			continue
		}

		if local.matches(rel, false) {
			continue
		}
		w.mapOne(full, rel, entry)
	}
	wg.Wait()
	return nil
}

// shouldSkipSymlinkLoop resolves a symlinked directory entry and tracks
// visited (device, inode) pairs so a self-referential symlink tree
// cannot recurse forever. walk only calls it for entries whose IsDir
// reports true, which a symlink's DirEntry never does, so there it
// always returns false: symlinked directories are not descended into,
// and symlinked files are dropped by mapOne's regular-file check.
func (w *walker) shouldSkipSymlinkLoop(full string, entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(full)
	if err != nil || !info.IsDir() {
		return true
	}
	key, ok := statKey(info)
	if !ok {
		return false
	}
	w.visitedMu.Lock()
	defer w.visitedMu.Unlock()
	if _, seen := w.visited[key]; seen {
		return true
	}
	w.visited[key] = struct{}{}
	return false
}

func (w *walker) mapOne(full, rel string, entry fs.DirEntry) {
	info, err := entry.Info()
	if err != nil {
		w.recordSkip(full, "stat failed", err)
		return
	}
	if !info.Mode().IsRegular() {
		return
	}
	if info.Size() > w.maxBytes {
		w.recordSkip(full, "exceeds size limit", nil)
		return
	}

	f, err := os.Open(full)
	if err != nil {
		w.recordSkip(full, "open failed", err)
		return
	}
	defer f.Close()

	if looksBinary(f) {
		w.recordSkip(full, "looks binary", nil)
		return
	}
	if _, err := f.Seek(0, 0); err != nil {
		w.recordSkip(full, "seek failed", err)
		return
	}

	data, err := mmapFile(f, info.Size())
	if err != nil {
		w.recordSkip(full, "mmap failed", err)
		return
	}

	mf := &MappedFile{Path: full, RelPath: rel, Data: data}
	w.mu.Lock()
	w.files = append(w.files, mf)
	w.mu.Unlock()

	if w.progress != nil {
		w.progress.add(1)
	}
}

func (w *walker) recordSkip(path, reason string, err error) {
	w.mu.Lock()
	w.skipped++
	w.mu.Unlock()
	w.log.Debug("skipping file", "path", path, "reason", reason, "err", err)
}

// looksBinary reads up to binarySniffBytes from the start of f and
// reports whether a NUL byte appears in that prefix, the same heuristic
// ripgrep and git use to tell text from binary.
func looksBinary(f *os.File) bool {
	buf := make([]byte, binarySniffBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
