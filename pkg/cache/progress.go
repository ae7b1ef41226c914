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

package cache

import (
	"os"

	"github.com/schollz/progressbar/v3"
)

// mapProgress renders an indeterminate progress bar on stderr tracking
// how many files have been memory-mapped during a walk. The final file
// count isn't known until the walk finishes, so this mirrors the
// spinner mode rather than a percentage bar.
type mapProgress struct {
	bar *progressbar.ProgressBar
}

func newMapProgress() *mapProgress {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription("mapping codebase"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &mapProgress{bar: bar}
}

func (p *mapProgress) add(n int) {
	p.bar.Add(n)
}

func (p *mapProgress) finish() {
	p.bar.Finish()
}
