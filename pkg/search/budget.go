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
	"sync/atomic"
)

// truncateReason names why a query's output was cut short.
type truncateReason string

const (
	reasonNone    truncateReason = ""
	reasonMatches truncateReason = "max matches"
	reasonBytes   truncateReason = "max bytes"
	reasonTimeout truncateReason = "timeout"
)

// budget is the cross-goroutine counter a query's scanners consult to
// decide whether to keep going. It is checked cooperatively — a worker
// mid-file finishes its current line before honoring it.
type budget struct {
	ctx        context.Context
	maxMatches int64
	maxBytes   int64

	matches int64
	bytes   int64
	timedUp int32
}

func newBudget(ctx context.Context, limits Limits) *budget {
	return &budget{
		ctx:        ctx,
		maxMatches: int64(limits.MaxMatches),
		maxBytes:   int64(limits.MaxOutputBytes),
	}
}

func (b *budget) addMatch(textBytes int) {
	atomic.AddInt64(&b.matches, 1)
	atomic.AddInt64(&b.bytes, int64(textBytes))
}

func (b *budget) addContext(textBytes int) {
	atomic.AddInt64(&b.bytes, int64(textBytes))
}

// exceeded reports whether any ceiling has been crossed. Checked between
// lines so a single huge file cannot blow far past the budget.
func (b *budget) exceeded() bool {
	if b.ctx.Err() != nil {
		atomic.StoreInt32(&b.timedUp, 1)
		return true
	}
	return atomic.LoadInt64(&b.matches) >= b.maxMatches || atomic.LoadInt64(&b.bytes) >= b.maxBytes
}

// reason reports which ceiling (if any) caused truncation, checked once
// after all scanning has stopped.
func (b *budget) reason() truncateReason {
	if atomic.LoadInt32(&b.timedUp) == 1 {
		return reasonTimeout
	}
	if atomic.LoadInt64(&b.matches) >= b.maxMatches {
		return reasonMatches
	}
	if atomic.LoadInt64(&b.bytes) >= b.maxBytes {
		return reasonBytes
	}
	return reasonNone
}
