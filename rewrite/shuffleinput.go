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

// ShuffleInput is the subset of a stage.ShuffleStageInput's
// behavior the rewriters in this package need. It is declared
// here, by the consumer, rather than in package stage, so that
// this package never has to import stage: stage's concrete
// ShuffleStageInput type satisfies this interface structurally,
// breaking what would otherwise be an import cycle (stage calls
// OptimizeJoin/HandleSkewedJoin; the rewriters walk stage's input
// nodes).
type ShuffleInput interface {
	plan.Node

	IsLocalShuffle() bool
	SetLocalShuffle(bool)

	SkewedPartitions() map[int]bool
	SetSkewedPartitions(map[int]bool)

	PartitionIndicesSet() bool
	SetPartitionIndices(start, end []int)

	// ChildStats returns the upstream shuffle's per-reducer
	// statistics and number of mappers. ok is false if the
	// child stage has not executed yet (callers of the
	// rewriters only invoke them once fan-out has completed,
	// so this should always be true in practice; the rewriters
	// still check it defensively).
	ChildStats() (stats coordinator.MapOutputStatistics, ok bool)

	// SplitForSkew returns a new plan.Node of the matching
	// skewed-input variant, referencing the same child stage,
	// reading a single reducer's mapper sub-range.
	SplitForSkew(partitionID, startMapID, endMapID int) plan.Node
}

// AsShuffleInput type-asserts n to ShuffleInput, returning ok=false
// for any node that isn't a shuffle stage input.
func AsShuffleInput(n plan.Node) (ShuffleInput, bool) {
	si, ok := n.(ShuffleInput)
	return si, ok
}
