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

package rewrite

import (
	"github.com/aqse/stage-engine/coordinator"
	"github.com/aqse/stage-engine/plan"
)

// fakeShuffleInput is a minimal ShuffleInput standing in for
// stage.ShuffleStageInput in these tests, which exercise only the
// rewriters and must not import package stage.
type fakeShuffleInput struct {
	out        []plan.Attr
	part       plan.Partitioning
	stats      coordinator.MapOutputStatistics
	statsKnown bool

	local    bool
	skewed   map[int]bool
	startSet bool
	start    []int
	end      []int

	splits []splitCall
}

type splitCall struct {
	partitionID, startMapID, endMapID int
}

func (f *fakeShuffleInput) Children() []plan.Node                  { return nil }
func (f *fakeShuffleInput) Output() []plan.Attr                    { return f.out }
func (f *fakeShuffleInput) OutputPartitioning() plan.Partitioning   { return f.part }
func (f *fakeShuffleInput) OutputOrdering() []plan.Ordering         { return nil }
func (f *fakeShuffleInput) Stats() plan.Stats {
	return plan.Stats{SizeInBytes: int64(sum(f.stats.BytesByPartition)), RowCount: int64(sum(f.stats.RowsByPartition))}
}

func (f *fakeShuffleInput) IsLocalShuffle() bool     { return f.local }
func (f *fakeShuffleInput) SetLocalShuffle(v bool)   { f.local = v }
func (f *fakeShuffleInput) SkewedPartitions() map[int]bool       { return f.skewed }
func (f *fakeShuffleInput) SetSkewedPartitions(m map[int]bool)   { f.skewed = m }
func (f *fakeShuffleInput) PartitionIndicesSet() bool            { return f.startSet }
func (f *fakeShuffleInput) SetPartitionIndices(start, end []int) {
	f.startSet = true
	f.start, f.end = start, end
}

func (f *fakeShuffleInput) ChildStats() (coordinator.MapOutputStatistics, bool) {
	return f.stats, f.statsKnown
}

func (f *fakeShuffleInput) SplitForSkew(partitionID, startMapID, endMapID int) plan.Node {
	f.splits = append(f.splits, splitCall{partitionID, startMapID, endMapID})
	return &fakeShuffleInput{out: f.out, part: f.part}
}

// fakeShuffleInput has no plan.Node children of its own (it hides
// its child stage instead, like stage.ShuffleStageInput), so it
// is a leaf as far as plan.Rewrite/plan.Walk are concerned.
var _ plan.Node = (*fakeShuffleInput)(nil)
var _ ShuffleInput = (*fakeShuffleInput)(nil)

func sum(vs []uint64) uint64 {
	var s uint64
	for _, v := range vs {
		s += v
	}
	return s
}
