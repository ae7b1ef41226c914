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

//go:build unix

package cache

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps the full contents of f read-only. The returned bytes stay
// valid until unmap is called. Zero-length files are not mapped — mmap on
// a zero-length region fails on most platforms — an empty sentinel slice
// is returned instead.
func mmapFile(f *os.File, size int64) ([]byte, error) {
	if size == 0 {
		return emptySentinel, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// munmapFile releases a mapping obtained from mmapFile. It is a no-op for
// the empty sentinel.
func munmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}

// emptySentinel is shared by every zero-length MappedFile so construction
// never performs a mapping syscall for an empty file.
var emptySentinel = []byte{}
