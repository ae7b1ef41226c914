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
	"strconv"
	"strings"
	"unicode/utf8"
)

// fileResult bundles one file's ordered result lines with its relative
// path for the final, walker-ordered render pass.
type fileResult struct {
	relPath string
	lines   []resultLine
}

// render serializes results in ripgrep's plain-text convention:
// PATH[:LINE[:COL]][:BYTE]:TEXT, separator "-" instead of ":" for
// context lines, with a blank line between non-adjacent match groups
// when context was requested.
func render(results []fileResult, opts Options, reason truncateReason) string {
	var b strings.Builder
	before, after := opts.beforeAfter()
	wantsGroups := before > 0 || after > 0

	for _, fr := range results {
		if len(fr.lines) == 0 {
			continue
		}
		lastLine := -1
		for _, l := range fr.lines {
			if wantsGroups && lastLine != -1 && l.line != lastLine+1 {
				b.WriteByte('\n')
			}
			writeLine(&b, fr.relPath, l, opts)
			lastLine = l.line
		}
	}

	out := b.String()
	if reason != reasonNone {
		out += "-- truncated: " + string(reason) + " --\n"
	}
	return out
}

func writeLine(b *strings.Builder, relPath string, l resultLine, opts Options) {
	sep := ":"
	if !l.isMatch {
		sep = "-"
	}
	b.WriteString(relPath)
	if opts.LineNumber {
		b.WriteString(sep)
		b.WriteString(strconv.Itoa(l.line))
	}
	if opts.Column && l.isMatch {
		b.WriteString(sep)
		b.WriteString(strconv.Itoa(l.col))
	}
	if opts.ByteOffset {
		b.WriteString(sep)
		b.WriteString(strconv.Itoa(l.byteOffset))
	}
	b.WriteString(sep)
	b.WriteString(toValidUTF8(l.text))
	b.WriteByte('\n')
}

// toValidUTF8 replaces invalid byte sequences with the Unicode
// replacement character, matching ripgrep's lossy text output — the raw
// mapped bytes stay untouched, only the serialized copy is sanitized.
func toValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				b.WriteRune(utf8.RuneError)
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
