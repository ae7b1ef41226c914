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
	"strings"

	"github.com/grafana/regexp"
)

// Compile turns a raw pattern plus options into a matcher. fixed_strings
// quotes every metacharacter before anything else runs; word_regexp then
// wraps the (possibly quoted) pattern in word boundaries; ignore_case
// applies last, turning the whole match case-insensitive — searches are
// case-sensitive unless the caller asks otherwise.
func Compile(pattern string, opts Options) (*regexp.Regexp, error) {
	body := pattern
	if opts.FixedStrings {
		body = regexp.QuoteMeta(body)
	}
	if opts.WordRegexp {
		body = `\b(?:` + body + `)\b`
	}

	var flags []string
	if opts.IgnoreCase {
		flags = append(flags, "i")
	}
	if opts.Multiline {
		flags = append(flags, "s")
	}
	if len(flags) > 0 {
		body = "(?" + strings.Join(flags, "") + ")" + body
	}

	return regexp.Compile(body)
}
