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

// Package exec declares the interfaces AQSE consumes from the
// surrounding engine: the shuffle I/O subsystem, the cluster
// scheduler's exchange-insertion and whole-stage-codegen rules,
// and the map-output tracker. None of these are implemented in
// this module; a host engine provides them, and exec/exectest
// provides fakes used only by this module's own tests.
package exec

import (
	"context"

	"github.com/aqse/stage-engine/coordinator"
	"github.com/aqse/stage-engine/plan"
)

// ShuffleExchange is the runtime counterpart of a *plan.Exchange
// in shuffle mode: it owns the actual map-side write and, once
// complete, the per-reducer byte/row statistics.
type ShuffleExchange interface {
	// EagerExecute runs the shuffle write to completion and
	// returns an opaque handle to the shuffled result along
	// with the statistics it produced.
	EagerExecute(ctx context.Context) (result any, stats coordinator.MapOutputStatistics, err error)
}

// BroadcastExchange is the runtime counterpart of a *plan.Exchange
// in broadcast mode.
type BroadcastExchange interface {
	// Materialize computes the relation to broadcast and
	// distributes it, returning an opaque handle.
	Materialize(ctx context.Context) (any, error)
}

// RowReader reads rows from a partition range; AQSE only ever
// hands one to a consumer, never reads from it directly.
type RowReader interface {
	Close() error
}

// ShuffleManager opens readers over a previously-written shuffle,
// for a contiguous reducer range and a contiguous mapper range.
type ShuffleManager interface {
	Reader(ctx context.Context, handle any, reducerStart, reducerEnd, mapStart, mapEnd int) (RowReader, error)
}

// MapOutputTracker answers "where does this mapper range live".
type MapOutputTracker interface {
	Locations(ctx context.Context, handle any, mapStart, mapEnd int) ([]string, error)
}

// SideEffecting is implemented by plan roots that perform a
// side effect (DDL/DML) rather than returning rows; the stage
// planner leaves such a root unwrapped rather than making it a
// ResultStage.
type SideEffecting interface {
	SideEffect()
}

// EnsureRequirements inserts whatever exchanges are needed so
// that every operator's input requirements (partitioning,
// ordering) are satisfied. It is idempotent: running it twice on
// an already-satisfied plan returns the plan unchanged.
type EnsureRequirements func(plan.Node) plan.Node

// CollapseCodegenStages fuses adjacent operators that support
// whole-stage code generation into single executable units.
// AQSE treats its output as opaque; it only needs to apply this
// rule once rewriting has finished.
type CollapseCodegenStages func(plan.Node) plan.Node
