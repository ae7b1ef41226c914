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
	"bytes"

	"github.com/grafana/regexp"
	"github.com/kraklabs/memsearchd/pkg/cache"
)

// resultLine is one line of a file's output: either a real match or a
// context line pulled in by before/after.
type resultLine struct {
	line       int
	col        int
	byteOffset int
	text       string
	isMatch    bool
}

// scanFile runs re against mf line-by-line (or, in multiline mode, across
// the whole buffer) and returns the lines to emit, in ascending line
// order, honoring maxCount and the shared query budget. stop reports
// whether the caller should abandon further files because a ceiling was
// hit mid-file.
func scanFile(mf *cache.MappedFile, re *regexp.Regexp, opts Options, b *budget) (lines []resultLine, stop bool) {
	if opts.Multiline {
		return scanMultiline(mf, re, opts, b)
	}
	return scanLines(mf, re, opts, b)
}

// lineText returns line index i (0-based), with its terminator stripped.
// LineStarts has no entry after a file's final '\n' (it only marks starts
// that begin another line), so the last line's end still needs its own
// '\n' dropped before the CRLF trim below can strip a preceding '\r'.
func lineText(mf *cache.MappedFile, starts []int, i int) (start, end int, text []byte) {
	start = starts[i]
	end = len(mf.Data)
	if i+1 < len(starts) {
		end = starts[i+1] - 1 // drop the '\n'
	} else if end > start && mf.Data[end-1] == '\n' {
		end--
	}
	return start, end, bytes.TrimSuffix(mf.Data[start:end], []byte("\r"))
}

// scanLines finds every matching line (stopping at maxCount or the
// shared budget), then expands each match with before/after context,
// merging overlapping windows so a line is never emitted twice.
func scanLines(mf *cache.MappedFile, re *regexp.Regexp, opts Options, b *budget) ([]resultLine, bool) {
	starts := mf.LineStarts()
	before, after := opts.beforeAfter()
	maxCount := int(opts.MaxCount)

	type hit struct {
		idx int
		col int
	}
	var hits []hit
	stop := false
	for i := 0; i < len(starts); i++ {
		if b.exceeded() {
			stop = true
			break
		}
		if maxCount > 0 && len(hits) >= maxCount {
			break
		}
		_, _, text := lineText(mf, starts, i)
		if loc := re.FindIndex(text); loc != nil {
			hits = append(hits, hit{idx: i, col: loc[0] + 1})
			b.addMatch(len(text))
		}
	}
	if len(hits) == 0 {
		return nil, stop
	}

	var out []resultLine
	lastEmitted := -1
	for _, h := range hits {
		from := h.idx - before
		if from <= lastEmitted {
			from = lastEmitted + 1
		}
		if from < 0 {
			from = 0
		}
		to := h.idx + after
		if to >= len(starts) {
			to = len(starts) - 1
		}
		for i := from; i <= to; i++ {
			start, _, text := lineText(mf, starts, i)
			isMatch := i == h.idx
			out = append(out, resultLine{
				line:       i + 1,
				col:        ifInt(isMatch, h.col, 0),
				byteOffset: start,
				text:       string(text),
				isMatch:    isMatch,
			})
			if !isMatch {
				b.addContext(len(text))
			}
		}
		lastEmitted = to
	}
	return out, stop
}

func ifInt(cond bool, a, b int) int {
	if cond {
		return a
	}
	return b
}

func scanMultiline(mf *cache.MappedFile, re *regexp.Regexp, opts Options, b *budget) ([]resultLine, bool) {
	maxCount := int(opts.MaxCount)
	idxs := re.FindAllIndex(mf.Data, -1)

	var out []resultLine
	for n, idx := range idxs {
		if b.exceeded() {
			return out, true
		}
		if maxCount > 0 && n >= maxCount {
			break
		}
		startLine := mf.LineAt(idx[0])
		endLine := mf.LineAt(maxInt(idx[1]-1, idx[0]))
		starts := mf.LineStarts()
		lineStart := starts[startLine-1]
		lineEnd := len(mf.Data)
		if endLine < len(starts) {
			lineEnd = starts[endLine] - 1
		} else if lineEnd > lineStart && mf.Data[lineEnd-1] == '\n' {
			lineEnd--
		}
		text := bytes.TrimSuffix(mf.Data[lineStart:lineEnd], []byte("\r"))
		out = append(out, resultLine{
			line:       startLine,
			col:        idx[0] - lineStart + 1,
			byteOffset: lineStart,
			text:       string(text),
			isMatch:    true,
		})
		b.addMatch(len(text))
	}
	return out, false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
