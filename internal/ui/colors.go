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

// Package ui holds the daemon's terminal presentation: whether the startup
// banner is colorized, and a couple of semantic color helpers built on top
// of that decision. The --help text is pflag's default usage output and is
// not colorized.
package ui

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Enabled reports whether color output is currently active.
var Enabled = true

// InitColors decides whether color output should be used and configures
// the fatih/color package accordingly. Color is disabled when the caller
// passes noColor, when NO_COLOR is set (https://no-color.org), or when
// stderr is not a terminal.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stderr.Fd()) {
		Enabled = false
		color.NoColor = true
		return
	}
	Enabled = true
	color.NoColor = false
}

// Bold renders s in bold when color is enabled, unchanged otherwise.
func Bold(s string) string {
	return color.New(color.Bold).Sprint(s)
}

// Warn renders s in yellow when color is enabled.
func Warn(s string) string {
	return color.New(color.FgYellow).Sprint(s)
}

// Err renders s in red when color is enabled.
func Err(s string) string {
	return color.New(color.FgRed).Sprint(s)
}

// Ok renders s in green when color is enabled.
func Ok(s string) string {
	return color.New(color.FgGreen).Sprint(s)
}
