// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package coordinator turns measured shuffle-write statistics
// into post-shuffle partition boundaries. Every function here is
// pure: same input, same output, no I/O, no shared state.
package coordinator

import (
	"github.com/aqse/stage-engine/aqerr"
	"golang.org/x/exp/slices"
)

// MapOutputStatistics is the per-reducer byte and row count
// produced by one completed shuffle write.
type MapOutputStatistics struct {
	BytesByPartition []uint64
	RowsByPartition  []uint64
	NumMappers       uint32
}

// Config configures the coordinator's target sizes. A zero
// TargetPostShuffleRowCount or MinNumPostShufflePartitions means
// "not configured" (degrades gracefully per §7 of the design:
// non-positive thresholds fall back to no coalescing, i.e. one
// group spanning the whole range, rather than erroring).
type Config struct {
	TargetPostShuffleInputSize  int64
	TargetPostShuffleRowCount   int64
	MinNumPostShufflePartitions int
}

func sumByPartition(stats []MapOutputStatistics) (bytes, rows []uint64, p int, err error) {
	if len(stats) == 0 {
		return nil, nil, 0, nil
	}
	p = len(stats[0].BytesByPartition)
	for _, s := range stats {
		if len(s.BytesByPartition) != p || len(s.RowsByPartition) != p {
			return nil, nil, 0, aqerr.NewCoordinatorPrecondition(
				"mismatched partition counts across MapOutputStatistics: want %d", p)
		}
	}
	bytes = make([]uint64, p)
	rows = make([]uint64, p)
	for _, s := range stats {
		for i := 0; i < p; i++ {
			bytes[i] += s.BytesByPartition[i]
			rows[i] += s.RowsByPartition[i]
		}
	}
	return bytes, rows, p, nil
}

// byteTarget resolves the effective per-group byte target,
// scaling down by max(1, P/MinNumPostShufflePartitions) when a
// minimum partition count is configured. This is the canonical
// scaling variant; see SPEC_FULL.md §9 for why the unscaled
// variant was rejected.
func (c Config) byteTarget(p int) int64 {
	t := c.TargetPostShuffleInputSize
	if t <= 0 {
		// degrade to "no coalescing": one group covers [0, P)
		return 1<<63 - 1
	}
	if c.MinNumPostShufflePartitions > 0 {
		div := p / c.MinNumPostShufflePartitions
		if div < 1 {
			div = 1
		}
		t /= int64(div)
		if t < 1 {
			t = 1
		}
	}
	return t
}

func (c Config) rowTarget() int64 {
	if c.TargetPostShuffleRowCount <= 0 {
		return 1<<63 - 1
	}
	return c.TargetPostShuffleRowCount
}

// EstimatePartitionStartIndices computes the start offsets of
// coalesced post-shuffle groups from the summed per-reducer
// byte/row statistics. See SPEC_FULL.md §4.2 for the full
// specification; in short: scan reducer ids left to right,
// starting a new group whenever continuing the current one would
// exceed the byte or row target, then pad out to
// MinNumPostShufflePartitions by splitting the largest groups.
func EstimatePartitionStartIndices(cfg Config, stats []MapOutputStatistics) ([]int, error) {
	bytes, rows, p, err := sumByPartition(stats)
	if err != nil {
		return nil, err
	}
	if p == 0 {
		return nil, nil
	}
	starts := greedyGroups(bytes, rows, cfg.byteTarget(p), cfg.rowTarget())
	if cfg.MinNumPostShufflePartitions > 0 {
		starts = padToMinimum(starts, p, cfg.MinNumPostShufflePartitions)
	}
	return starts, nil
}

// EstimatePartitionStartEndIndices is the skew-aware variant:
// every reducer id in skewed is excluded from coalescing
// entirely (it will be routed to the skew-split sub-joins
// instead), so the emitted ranges tile [0,P) \ skewed exactly,
// with gaps at each skewed id.
func EstimatePartitionStartEndIndices(cfg Config, stats []MapOutputStatistics, skewed map[int]bool) (start, end []int, err error) {
	bytes, rows, p, err := sumByPartition(stats)
	if err != nil {
		return nil, nil, err
	}
	if p == 0 {
		return nil, nil, nil
	}
	byteTarget, rowTarget := cfg.byteTarget(p), cfg.rowTarget()

	segStart := 0
	flushNonSkewed := func(lo, hi int) {
		if lo >= hi {
			return
		}
		groupStarts := greedyGroups(bytes[lo:hi], rows[lo:hi], byteTarget, rowTarget)
		for i, s := range groupStarts {
			gs := lo + s
			var ge int
			if i+1 < len(groupStarts) {
				ge = lo + groupStarts[i+1]
			} else {
				ge = hi
			}
			start = append(start, gs)
			end = append(end, ge)
		}
	}
	for r := 0; r < p; r++ {
		if skewed[r] {
			flushNonSkewed(segStart, r)
			segStart = r + 1
		}
	}
	flushNonSkewed(segStart, p)
	return start, end, nil
}

// greedyGroups returns the start offsets (relative to index 0 of
// the bytes/rows slices) of each coalesced group. There is always
// at least one group when len(bytes) > 0.
func greedyGroups(bytes, rows []uint64, byteTarget, rowTarget int64) []int {
	n := len(bytes)
	if n == 0 {
		return nil
	}
	starts := []int{0}
	var ab, ar int64
	for r := 0; r < n; r++ {
		b, w := int64(bytes[r]), int64(rows[r])
		if r > starts[len(starts)-1] && (ab+b > byteTarget || ar+w > rowTarget) {
			starts = append(starts, r)
			ab, ar = 0, 0
		}
		ab += b
		ar += w
	}
	return starts
}

// padToMinimum splits the largest groups (by reducer-id width)
// until there are at least minGroups of them, or every group has
// width 1 (cannot be split further).
func padToMinimum(starts []int, p, minGroups int) []int {
	for len(starts) < minGroups {
		// find the widest group
		widest, widestIdx := 0, -1
		for i := range starts {
			hi := p
			if i+1 < len(starts) {
				hi = starts[i+1]
			}
			w := hi - starts[i]
			if w > widest {
				widest, widestIdx = w, i
			}
		}
		if widestIdx < 0 || widest < 2 {
			break // every group already has width 1
		}
		mid := starts[widestIdx] + widest/2
		starts = slices.Insert(starts, widestIdx+1, mid)
	}
	return starts
}

// GroupIndex returns the index of the coalesced group that reducer
// id r falls into, given the starts a prior
// EstimatePartitionStartIndices call returned (always sorted
// ascending). Used by a host mapping a raw reducer id from an
// incoming row back to the post-shuffle partition a downstream
// stage assigned it to.
func GroupIndex(starts []int, r int) int {
	i, found := slices.BinarySearch(starts, r)
	if !found {
		i--
	}
	if i < 0 {
		i = 0
	}
	return i
}
