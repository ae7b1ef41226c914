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

// Package ipc implements the daemon's UNIX-domain-socket transport: one
// well-known request socket, one response socket per bound tenant, and
// the length-prefixed JSON framing shared by both directions.
package ipc

import "github.com/kraklabs/memsearchd/pkg/search"

// requestEnvelope is parsed first to read the "type" discriminator
// before unmarshaling into the concrete request shape.
type requestEnvelope struct {
	Type string `json:"type"`
}

// AllocRequest binds a tenant id to a codebase root.
type AllocRequest struct {
	Type        string `json:"type"`
	Pid         uint32 `json:"pid"`
	RepoDirPath string `json:"repo_dir_path"`
}

// ReleaseRequest tears down a tenant's binding.
type ReleaseRequest struct {
	Type string `json:"type"`
	Pid  uint32 `json:"pid"`
}

// SearchOptions is the wire shape of a request_ripgrep message's
// "options" object.
type SearchOptions struct {
	LineNumber   bool     `json:"line_number"`
	Column       bool     `json:"column"`
	ByteOffset   bool     `json:"byte_offset"`
	IgnoreCase   bool     `json:"ignore_case"`
	FixedStrings bool     `json:"fixed_strings"`
	WordRegexp   bool     `json:"word_regexp"`
	Multiline    bool     `json:"multiline"`
	Before       uint     `json:"before"`
	After        uint     `json:"after"`
	Context      uint     `json:"context"`
	MaxCount     uint     `json:"max_count"`
	Threads      uint     `json:"threads"`
	IncludeGlobs []string `json:"include_globs"`
	ExcludeGlobs []string `json:"exclude_globs"`
}

// toSearchOptions converts the wire shape to the engine's Options.
func (o SearchOptions) toSearchOptions() search.Options {
	return search.Options{
		LineNumber:   o.LineNumber,
		Column:       o.Column,
		ByteOffset:   o.ByteOffset,
		IgnoreCase:   o.IgnoreCase,
		FixedStrings: o.FixedStrings,
		WordRegexp:   o.WordRegexp,
		Multiline:    o.Multiline,
		Before:       o.Before,
		After:        o.After,
		Context:      o.Context,
		MaxCount:     o.MaxCount,
		Threads:      o.Threads,
		IncludeGlobs: o.IncludeGlobs,
		ExcludeGlobs: o.ExcludeGlobs,
	}
}

// SearchRequest asks the daemon to run pattern against a bound tenant.
type SearchRequest struct {
	Type    string        `json:"type"`
	Pid     uint32        `json:"pid"`
	Pattern string        `json:"pattern"`
	Paths   []string      `json:"paths"`
	Options SearchOptions `json:"options"`
}

// Reply is the single shape every response-socket message takes.
type Reply struct {
	ResponseStatus int    `json:"response_status"`
	Text           string `json:"text,omitempty"`
	Error          string `json:"error,omitempty"`
}

func okReply(text string) Reply { return Reply{ResponseStatus: 1, Text: text} }
func errReply(msg string) Reply { return Reply{ResponseStatus: 0, Error: msg} }
