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

package search

import (
	"context"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/memsearchd/pkg/cache"
)

// Run compiles pattern with opts, scans every file in cc that survives
// the paths restriction and glob filters, and returns the rendered
// ripgrep-compatible text. Files are scanned with bounded parallelism
// (opts.Threads, capped by hardware parallelism); output is assembled in
// the cache's walker order regardless of which goroutine finished first.
func Run(ctx context.Context, cc *cache.CodebaseCache, pattern string, paths []string, opts Options, limits Limits) (string, error) {
	re, err := Compile(pattern, opts)
	if err != nil {
		return "", err
	}
	limits = limits.withDefaults()

	candidates := selectFiles(cc, paths, opts)
	if len(candidates) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	b := newBudget(ctx, limits)
	results := make([]fileResult, len(candidates))
	var stopped int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.parallelism())

	for i, mf := range candidates {
		i, mf := i, mf
		g.Go(func() error {
			if atomic.LoadInt32(&stopped) == 1 || gctx.Err() != nil {
				return nil
			}
			lines, stop := scanFile(mf, re, opts, b)
			results[i] = fileResult{relPath: mf.RelPath, lines: lines}
			if stop {
				atomic.StoreInt32(&stopped, 1)
			}
			return nil
		})
	}
	// errgroup.Wait only ever returns an error from a Go func that
	// returns one; scanFile never does, so this is always nil.
	_ = g.Wait()

	return render(results, opts, b.reason()), nil
}

// selectFiles narrows cc.Files to those inside the requested paths
// restriction (escaping the root yields an empty set rather than an
// error) and passing the include/exclude globs, in cc's original order.
func selectFiles(cc *cache.CodebaseCache, paths []string, opts Options) []*cache.MappedFile {
	var prefixes []string
	if len(paths) > 0 {
		for _, p := range paths {
			abs, err := filepath.Abs(p)
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(cc.Root, abs)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue // escapes root: contributes nothing, not an error
			}
			prefixes = append(prefixes, filepath.ToSlash(rel))
		}
		if len(prefixes) == 0 {
			return nil
		}
	}

	var out []*cache.MappedFile
	for _, mf := range cc.Files {
		if len(prefixes) > 0 && !underAnyPrefix(mf.RelPath, prefixes) {
			continue
		}
		if !passesGlobs(mf.RelPath, opts.IncludeGlobs, opts.ExcludeGlobs) {
			continue
		}
		out = append(out, mf)
	}
	return out
}

func underAnyPrefix(relPath string, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "." || relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
	}
	return false
}

// passesGlobs applies include then exclude; exclude wins when both
// match, per the spec's boundary behavior.
func passesGlobs(relPath string, include, exclude []string) bool {
	if len(include) > 0 {
		matched := false
		for _, g := range include {
			if globMatchesPath(g, relPath) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, g := range exclude {
		if globMatchesPath(g, relPath) {
			return false
		}
	}
	return true
}

// globMatchesPath matches g against relPath the way ripgrep's --glob does:
// a pattern containing "/" is matched against the full root-relative path
// (so "sub/*.go" only matches directly under "sub"); a pattern with no
// "/" is matched against the basename alone, so it applies at any depth
// ("*.go" matches both "a.go" and "sub/a.go").
func globMatchesPath(g, relPath string) bool {
	if strings.Contains(strings.TrimPrefix(g, "**/"), "/") {
		return cache.GlobMatch(g, relPath)
	}
	return cache.GlobMatch(g, filepath.Base(relPath))
}
