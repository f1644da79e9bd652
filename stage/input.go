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

package stage

import (
	"github.com/aqse/stage-engine/coordinator"
	"github.com/aqse/stage-engine/partition"
	"github.com/aqse/stage-engine/plan"
	"github.com/aqse/stage-engine/rewrite"
)

var _ rewrite.ShuffleInput = (*ShuffleStageInput)(nil)

// ShuffleStageInput is a leaf in the parent stage's plan that
// hides a ShuffleStageKind child stage. It implements
// rewrite.ShuffleInput structurally (see rewrite/shuffleinput.go)
// so the adaptive rewriters can inspect and mutate it without
// this package importing rewrite's test-only internals or
// rewrite importing this package.
type ShuffleStageInput struct {
	Child *QueryStage
	Out   []plan.Attr

	// PartitionStartIndices/PartitionEndIndices are written
	// exactly once, by the stage runtime's reducer-count
	// determination step, before the parent stage executes.
	PartitionStartIndices, PartitionEndIndices []int

	localShuffle     bool
	skewedPartitions map[int]bool
}

func (in *ShuffleStageInput) Children() []plan.Node { return nil }
func (in *ShuffleStageInput) Output() []plan.Attr   { return in.Out }

func (in *ShuffleStageInput) OutputPartitioning() plan.Partitioning {
	if in.Child == nil || in.Child.Child == nil {
		return plan.Partitioning{}
	}
	return in.Child.Child.OutputPartitioning()
}

func (in *ShuffleStageInput) OutputOrdering() []plan.Ordering { return nil }

func (in *ShuffleStageInput) Stats() plan.Stats {
	if st, ok := in.Child.Stats(); ok {
		return statsFromMapOutput(st)
	}
	if in.Child != nil && in.Child.Child != nil {
		return in.Child.Child.Stats()
	}
	return plan.Stats{}
}

func (in *ShuffleStageInput) IsLocalShuffle() bool   { return in.localShuffle }
func (in *ShuffleStageInput) SetLocalShuffle(v bool) { in.localShuffle = v }

func (in *ShuffleStageInput) SkewedPartitions() map[int]bool     { return in.skewedPartitions }
func (in *ShuffleStageInput) SetSkewedPartitions(m map[int]bool) { in.skewedPartitions = m }

func (in *ShuffleStageInput) PartitionIndicesSet() bool { return in.PartitionStartIndices != nil }

func (in *ShuffleStageInput) SetPartitionIndices(start, end []int) {
	in.PartitionStartIndices = start
	in.PartitionEndIndices = end
}

func (in *ShuffleStageInput) ChildStats() (coordinator.MapOutputStatistics, bool) {
	return in.Child.Stats()
}

// Partitions returns the post-shuffle read ranges a downstream
// operator should issue against this input's child stage. A
// local-shuffle-demoted input (see rewrite.OptimizeJoin,
// markLocalShuffle) reads one partition per mapper instead of
// coalescing by reducer id; everything else reads the coalesced
// groups the stage runtime's reducer-count determination step
// computed.
func (in *ShuffleStageInput) Partitions() []partition.Partition {
	stats, ok := in.Child.Stats()
	if !ok {
		return nil
	}
	p := len(stats.BytesByPartition)
	if in.localShuffle {
		return partition.Local(p, stats.NumMappers)
	}
	return partition.Coalesced(in.PartitionStartIndices, in.PartitionEndIndices, p, stats.NumMappers)
}

// SplitForSkew returns a SkewedShuffleStageInput over the same
// child stage, reading a single reducer's mapper sub-range.
func (in *ShuffleStageInput) SplitForSkew(partitionID, startMapID, endMapID int) plan.Node {
	return &SkewedShuffleStageInput{
		Child:       in.Child,
		Out:         in.Out,
		PartitionID: partitionID,
		StartMapID:  startMapID,
		EndMapID:    endMapID,
	}
}

// SkewedShuffleStageInput reads a single skewed reducer partition
// from a narrower range of mappers of its child shuffle stage; it
// is only ever produced by HandleSkewedJoin via SplitForSkew.
type SkewedShuffleStageInput struct {
	Child                          *QueryStage
	Out                            []plan.Attr
	PartitionID, StartMapID, EndMapID int
}

func (in *SkewedShuffleStageInput) Children() []plan.Node              { return nil }
func (in *SkewedShuffleStageInput) Output() []plan.Attr                { return in.Out }
func (in *SkewedShuffleStageInput) OutputPartitioning() plan.Partitioning {
	return plan.Partitioning{}
}
func (in *SkewedShuffleStageInput) OutputOrdering() []plan.Ordering { return nil }

// Stats estimates this split's share of its child stage's total
// output by the fraction of mappers it reads; it is a rough
// planning estimate only, since skew is precisely why the
// mappers in range are not uniform.
func (in *SkewedShuffleStageInput) Stats() plan.Stats {
	st, ok := in.Child.Stats()
	if !ok || st.NumMappers == 0 {
		return plan.Stats{}
	}
	full := statsFromMapOutput(st)
	width := int64(in.EndMapID - in.StartMapID)
	return plan.Stats{
		SizeInBytes: full.SizeInBytes * width / int64(st.NumMappers),
		RowCount:    full.RowCount * width / int64(st.NumMappers),
	}
}

// Partitions returns this split's single narrowed-mapper-range
// read, built via partition.Skewed so the boundary it reads
// exactly matches the range HandleSkewedJoin assigned it.
func (in *SkewedShuffleStageInput) Partitions() []partition.Partition {
	stats, ok := in.Child.Stats()
	if !ok {
		return nil
	}
	p := len(stats.BytesByPartition)
	return partition.Skewed(in.PartitionID, p, stats.NumMappers, []int{in.StartMapID, in.EndMapID}, 1)
}

// BroadcastStageInput is a leaf hiding a BroadcastStageKind child
// stage.
type BroadcastStageInput struct {
	Child *QueryStage
	Out   []plan.Attr
}

func (in *BroadcastStageInput) Children() []plan.Node { return nil }
func (in *BroadcastStageInput) Output() []plan.Attr    { return in.Out }

func (in *BroadcastStageInput) OutputPartitioning() plan.Partitioning {
	return plan.Partitioning{}
}

func (in *BroadcastStageInput) OutputOrdering() []plan.Ordering { return nil }

func (in *BroadcastStageInput) Stats() plan.Stats {
	if in.Child == nil || in.Child.Child == nil {
		return plan.Stats{}
	}
	return in.Child.Child.Stats()
}

func statsFromMapOutput(st coordinator.MapOutputStatistics) plan.Stats {
	var bytes, rows int64
	for _, b := range st.BytesByPartition {
		bytes += int64(b)
	}
	for _, r := range st.RowsByPartition {
		rows += int64(r)
	}
	return plan.Stats{SizeInBytes: bytes, RowCount: rows}
}
