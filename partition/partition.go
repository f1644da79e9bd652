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

// Package partition is the vocabulary every other AQSE package
// uses to talk about shuffle reads: a post-shuffle partition is
// always a pair of ranges, one over pre-shuffle reducer ids and
// one over mapper ids.
package partition

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/aqse/stage-engine/aqerr"
	"github.com/aqse/stage-engine/exec"
	"github.com/dchest/siphash"
)

// Range is a contiguous, half-open integer range.
type Range struct {
	Start, End int
}

func (r Range) Len() int { return r.End - r.Start }

// Partition is one post-shuffle read: a contiguous reducer range
// and a contiguous mapper range. Non-skew reads have a mapper
// range spanning all mappers; skew-split reads narrow it and pin
// Reducers to a single id (Reducers.Len() == 1).
type Partition struct {
	Reducers Range
	Mappers  Range
}

// PreferredHosts asks tracker where the mapper outputs this
// partition reads from currently live, for scheduler placement.
func (p Partition) PreferredHosts(ctx context.Context, tracker exec.MapOutputTracker, handle any) ([]string, error) {
	return tracker.Locations(ctx, handle, p.Mappers.Start, p.Mappers.End)
}

func assertValid(where string, start, end, bound int) {
	if start < 0 || end <= start || end > bound {
		panic(aqerr.NewInvariant(where, "invalid range [%d,%d) with bound %d", start, end, bound))
	}
}

// Coalesced builds the partitions for a coalesced read: partition
// i reads reducer ids [start[i], end[i]) from every mapper. When
// end is nil, end[i] defaults to start[i+1] (or P for the last
// entry).
func Coalesced(start, end []int, p int, numMappers uint32) []Partition {
	if len(start) == 0 {
		panic(aqerr.NewInvariant("partition.Coalesced", "empty start indices"))
	}
	out := make([]Partition, len(start))
	for i := range start {
		hi := p
		if end != nil {
			hi = end[i]
		} else if i+1 < len(start) {
			hi = start[i+1]
		}
		assertValid("partition.Coalesced", start[i], hi, p)
		out[i] = Partition{
			Reducers: Range{Start: start[i], End: hi},
			Mappers:  Range{Start: 0, End: int(numMappers)},
		}
	}
	return out
}

// Local builds the partitions for a local read: one partition per
// mapper, each reading that mapper's entire output across all
// reducer ids. Used after a broadcast demotion to avoid
// re-shuffling a shuffle dependency that is no longer needed as a
// shuffle (see rewrite.OptimizeJoin, which sets IsLocalShuffle).
func Local(p int, numMappers uint32) []Partition {
	if numMappers == 0 {
		panic(aqerr.NewInvariant("partition.Local", "zero mappers"))
	}
	out := make([]Partition, numMappers)
	for i := range out {
		out[i] = Partition{
			Reducers: Range{Start: 0, End: p},
			Mappers:  Range{Start: i, End: i + 1},
		}
	}
	return out
}

// Skewed builds the partitions for an adaptive (skew) read of a
// single reducer id r, split across k mapper-range boundaries. A
// nil boundaries slice defaults to k even splits of [0,numMappers).
func Skewed(r int, p int, numMappers uint32, boundaries []int, k int) []Partition {
	if r < 0 || r >= p {
		panic(aqerr.NewInvariant("partition.Skewed", "reducer %d out of range [0,%d)", r, p))
	}
	if k <= 0 {
		panic(aqerr.NewInvariant("partition.Skewed", "split count must be positive, got %d", k))
	}
	m := int(numMappers)
	if boundaries == nil {
		boundaries = make([]int, k+1)
		for i := 0; i <= k; i++ {
			boundaries[i] = i * m / k
		}
	}
	if len(boundaries) != k+1 {
		panic(aqerr.NewInvariant("partition.Skewed", "need %d boundaries for %d splits, got %d", k+1, k, len(boundaries)))
	}
	out := make([]Partition, k)
	for i := 0; i < k; i++ {
		out[i] = Partition{
			Reducers: Range{Start: r, End: r + 1},
			Mappers:  Range{Start: boundaries[i], End: boundaries[i+1]},
		}
	}
	return out
}

const localShuffleK0, localShuffleK1 = 0x4c6f_6361_6c53_6866, 0x5130_4161_7365_4151

// LocalShuffleKey returns a stable hash of a Local read's identity:
// the owning stage's id and its mapper id. A scheduler placing the
// one-partition-per-mapper reads Local produces can use it to
// spread them deterministically across a worker pool (e.g. key %
// numWorkers) without another round trip through a
// MapOutputTracker. Grounded in the same siphash dependency the
// Stage Planner's reuse-table fingerprint was an early candidate
// for before settling on rewrite.PlanFingerprint's blake2b-256
// digest: a keyed MAC is the right tool here, a placement hint
// derived from caller-controlled ids, distinct from that
// fingerprint's job.
func LocalShuffleKey(stageID [16]byte, mapperID int) uint64 {
	var buf [20]byte
	copy(buf[:16], stageID[:])
	binary.LittleEndian.PutUint32(buf[16:], uint32(mapperID))
	return siphash.Hash(localShuffleK0, localShuffleK1, buf[:])
}

// Reader opens rows over p via mgr, surfacing a transient
// fetch failure unchanged so the caller's scheduler can re-run
// the parent mapper stage.
func Reader(ctx context.Context, mgr exec.ShuffleManager, handle any, p Partition) (exec.RowReader, error) {
	r, err := mgr.Reader(ctx, handle, p.Reducers.Start, p.Reducers.End, p.Mappers.Start, p.Mappers.End)
	if err != nil {
		return nil, fmt.Errorf("partition read %+v: %w", p, err)
	}
	return r, nil
}
