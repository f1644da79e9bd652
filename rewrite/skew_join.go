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
	"sort"

	"github.com/aqse/stage-engine/coordinator"
	"github.com/aqse/stage-engine/plan"
)

const maxSkewSplits = 5

// HandleSkewedJoin splits the left-side read of a sort-merge join
// at reducer partitions whose map output is disproportionately
// large, replacing the join with a Union of the original join
// (still responsible for the non-skewed partitions) and one
// sub-join per split of each skewed partition. It only runs on
// stages with exactly two ShuffleInputs (two-way joins).
func HandleSkewedJoin(cfg Config, child plan.Node) (plan.Node, bool) {
	if !cfg.AdaptiveSkewedJoinEnabled {
		return child, false
	}
	inputs := plan.Collect(child, func(n plan.Node) bool {
		_, ok := AsShuffleInput(n)
		return ok
	})
	if len(inputs) != 2 {
		return child, false
	}
	changed := false
	out := plan.Rewrite(plan.RewriterFunc(func(n plan.Node) plan.Node {
		smj, ok := n.(*plan.SortMergeJoin)
		if !ok || !splittableJoinType(smj.JoinType) {
			return n
		}
		leftSort, ok := smj.Left.(*plan.Sort)
		if !ok {
			return n
		}
		rightSort, ok := smj.Right.(*plan.Sort)
		if !ok {
			return n
		}
		leftIn, ok := AsShuffleInput(leftSort.Input)
		if !ok {
			return n
		}
		rightIn, ok := AsShuffleInput(rightSort.Input)
		if !ok {
			return n
		}
		leftStats, ok := leftIn.ChildStats()
		if !ok {
			return n
		}
		rightStats, ok := rightIn.ChildStats()
		if !ok {
			return n
		}

		splits := skewedSplits(cfg, leftStats, rightStats)
		if len(splits) == 0 {
			return n
		}

		subJoins := buildSplitJoins(smj, leftIn, rightIn, leftStats.NumMappers, rightStats.NumMappers, splits)

		skewedIDs := make(map[int]bool, len(splits))
		for p := range splits {
			skewedIDs[p] = true
		}
		leftIn.SetSkewedPartitions(skewedIDs)
		rightIn.SetSkewedPartitions(skewedIDs)

		changed = true
		kids := make([]plan.Node, 0, len(subJoins)+1)
		kids = append(kids, smj)
		kids = append(kids, subJoins...)
		return &plan.Union{Kids: kids}
	}), child)
	return out, changed
}

func splittableJoinType(jt plan.JoinType) bool {
	switch jt {
	case plan.Inner, plan.Cross, plan.LeftSemi:
		return true
	default:
		return false
	}
}

// skewedSplits reports, for every reducer partition skewed on
// either side of the join, how many ways the left side's read of
// that partition should be split. A partition with no entry is
// not skewed.
func skewedSplits(cfg Config, left, right coordinator.MapOutputStatistics) map[int]int {
	p := len(left.BytesByPartition)
	splits := make(map[int]int)
	leftMedianBytes := median(left.BytesByPartition)
	leftMedianRows := median(left.RowsByPartition)
	rightMedianBytes := median(right.BytesByPartition)
	rightMedianRows := median(right.RowsByPartition)

	for i := 0; i < p; i++ {
		leftSkew := isSkewed(cfg, left.BytesByPartition[i], left.RowsByPartition[i], leftMedianBytes, leftMedianRows)
		rightSkew := i < len(right.BytesByPartition) &&
			isSkewed(cfg, right.BytesByPartition[i], right.RowsByPartition[i], rightMedianBytes, rightMedianRows)
		if !leftSkew && !rightSkew {
			continue
		}
		n := splitCount(left.BytesByPartition[i], left.RowsByPartition[i], leftMedianBytes, leftMedianRows, int(left.NumMappers))
		if n > 1 {
			splits[i] = n
		}
	}
	return splits
}

func isSkewed(cfg Config, bytes, rows, medianBytes, medianRows uint64) bool {
	bySize := medianBytes > 0 &&
		float64(bytes) > float64(medianBytes)*cfg.AdaptiveSkewedFactor &&
		int64(bytes) > cfg.AdaptiveSkewedSizeThreshold
	byRows := medianRows > 0 &&
		float64(rows) > float64(medianRows)*cfg.AdaptiveSkewedFactor &&
		int64(rows) > cfg.AdaptiveSkewedRowCountThreshold
	return bySize || byRows
}

func splitCount(bytes, rows, medianBytes, medianRows uint64, numMappers int) int {
	n := maxSkewSplits
	if medianBytes > 0 {
		n = minInt(n, int(bytes/medianBytes))
	}
	if medianRows > 0 {
		n = minInt(n, int(rows/medianRows))
	}
	n = minInt(n, numMappers)
	if n < 1 {
		n = 1
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// median returns the middle value of a sorted copy of vs (upper
// of the two middle values for even length), or 0 for an empty
// slice.
func median(vs []uint64) uint64 {
	if len(vs) == 0 {
		return 0
	}
	cp := append([]uint64(nil), vs...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	return cp[len(cp)/2]
}

func buildSplitJoins(smj *plan.SortMergeJoin, leftIn, rightIn ShuffleInput, leftMappers, rightMappers uint32, splits map[int]int) []plan.Node {
	ids := make([]int, 0, len(splits))
	for p := range splits {
		ids = append(ids, p)
	}
	sort.Ints(ids)

	m := int(leftMappers)
	var out []plan.Node
	for _, p := range ids {
		n := splits[p]
		for i := 0; i < n; i++ {
			startMapID := i * (m / n)
			endMapID := m
			if i != n-1 {
				endMapID = (i + 1) * (m / n)
			}
			left := leftIn.SplitForSkew(p, startMapID, endMapID)
			right := rightIn.SplitForSkew(p, 0, int(rightMappers))
			out = append(out, plan.NewSortMergeJoin(left, right, smj.LeftKeys, smj.RightKeys, smj.JoinType, smj.Cond, smj.Out))
		}
	}
	return out
}
