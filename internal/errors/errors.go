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

// Package errors provides the daemon's typed, human-formattable error
// records. Every user-facing failure carries a title and a detail line,
// and config, protocol and internal failures may add a suggestion, so an
// operator reading stderr knows what broke and what to do next without
// grepping source.
package errors

import (
	"fmt"
	"os"
)

// Kind classifies a UserError for the handler boundary it is reported at.
// The kinds mirror the error taxonomy a search daemon recognizes: failures
// during startup are fatal, failures serving one request are not.
type Kind string

const (
	KindConfig   Kind = "config"   // startup/configuration failure, fatal
	KindProtocol Kind = "protocol" // malformed client frame
	KindTenant   Kind = "tenant"   // unknown pid, double alloc
	KindResource Kind = "resource" // repo not found, unreadable root
	KindRegex    Kind = "regex"    // pattern failed to compile
	KindInternal Kind = "internal" // panic recovered at a worker boundary
)

// UserError is a structured error with enough context for a human (or a
// client parsing the response socket's error field) to act on it.
type UserError struct {
	Kind       Kind
	Title      string
	Detail     string
	Suggestion string
	Cause      error
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *UserError) Unwrap() error { return e.Cause }

// Format renders the error for a terminal. When color is true, the title
// is bolded; callers typically gate this on internal/ui's color state.
func (e *UserError) Format(color bool) string {
	title := e.Title
	if color {
		title = "\033[1m" + title + "\033[0m"
	}
	s := fmt.Sprintf("Error: %s\n  %s", title, e.Detail)
	if e.Cause != nil {
		s += fmt.Sprintf("\n  cause: %v", e.Cause)
	}
	if e.Suggestion != "" {
		s += fmt.Sprintf("\n  %s", e.Suggestion)
	}
	return s
}

func newError(kind Kind, title, detail, suggestion string, cause error) *UserError {
	return &UserError{Kind: kind, Title: title, Detail: detail, Suggestion: suggestion, Cause: cause}
}

// NewConfigError reports a startup/configuration failure.
func NewConfigError(title, detail, suggestion string, cause error) *UserError {
	return newError(KindConfig, title, detail, suggestion, cause)
}

// NewProtocolError reports a malformed client request.
func NewProtocolError(title, detail, suggestion string) *UserError {
	return newError(KindProtocol, title, detail, suggestion, nil)
}

// NewTenantError reports an unknown-pid or double-allocation failure.
func NewTenantError(title, detail string) *UserError {
	return newError(KindTenant, title, detail, "", nil)
}

// NewResourceError reports a repo-not-found or unreadable-root failure.
func NewResourceError(title, detail string, cause error) *UserError {
	return newError(KindResource, title, detail, "", cause)
}

// NewRegexError reports a pattern compile failure, naming the pattern.
func NewRegexError(pattern string, cause error) *UserError {
	return newError(KindRegex, "Invalid regex pattern",
		fmt.Sprintf("pattern %q failed to compile", pattern), "", cause)
}

// NewInternalError reports a panic recovered at a worker boundary.
func NewInternalError(title, detail, suggestion string, cause error) *UserError {
	return newError(KindInternal, title, detail, suggestion, cause)
}

// FatalError prints err to stderr (bolding a UserError's title when color
// is true) and exits the
// process with a nonzero status. Only startup failures should call this —
// per-request failures are reported on the response socket instead.
func FatalError(err error, color bool) {
	if ue, ok := err.(*UserError); ok {
		fmt.Fprintln(os.Stderr, ue.Format(color))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	exit(1)
}

// exit is a var so tests can intercept process exit.
var exit = os.Exit
