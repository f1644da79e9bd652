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
	"context"
	"sync"

	"github.com/aqse/stage-engine/aqerr"
	"github.com/aqse/stage-engine/coordinator"
	"github.com/aqse/stage-engine/event"
	"github.com/aqse/stage-engine/exec"
	"github.com/aqse/stage-engine/plan"
	"github.com/aqse/stage-engine/rewrite"
)

// Execute runs this stage's protocol exactly once, memoizing the
// result for every subsequent call (including concurrent ones, via
// once): run every child stage to completion, adaptively rewrite
// this stage's plan against the statistics they reported, collapse
// codegen stages, post an AdaptiveExecutionUpdate, then dispatch to
// this stage's own Kind. A failed run, including one cut short by a
// cancelled ctx, is memoized the same way: later calls return the
// same error and do not rerun the protocol.
func (s *QueryStage) Execute(ctx context.Context) (any, error) {
	s.once.Do(func() {
		s.cachedResult, s.resultErr = s.runRecovered(ctx)
	})
	return s.cachedResult, s.resultErr
}

// runRecovered runs s.run, converting an *aqerr.Invariant panic
// (partition.assertValid and the rewrite package's invariant checks
// panic rather than thread an error through their call chains) back
// into a plain error here, at the stage's single execution boundary,
// instead of letting it cross a pool worker goroutine and take down
// the process.
func (s *QueryStage) runRecovered(ctx context.Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			inv, ok := r.(*aqerr.Invariant)
			if !ok {
				panic(r)
			}
			result, err = nil, inv
		}
	}()
	return s.run(ctx)
}

// PrepareBroadcast runs a BroadcastStageKind stage to completion.
// It is Execute under a name that documents intent at call sites: a
// broadcast stage is prepared for later consumers, not "executed"
// to produce a row stream.
func (s *QueryStage) PrepareBroadcast(ctx context.Context) error {
	if s.Kind != BroadcastStageKind {
		return aqerr.NewInvariant("stage.PrepareBroadcast", "stage %s is not a BroadcastStageKind", s.ID)
	}
	_, err := s.Execute(ctx)
	return err
}

// ExecuteBroadcast returns the prepared broadcast handle, running
// PrepareBroadcast first if this stage has not executed yet.
func (s *QueryStage) ExecuteBroadcast(ctx context.Context) (any, error) {
	if s.Kind != BroadcastStageKind {
		return nil, aqerr.NewInvariant("stage.ExecuteBroadcast", "stage %s is not a BroadcastStageKind", s.ID)
	}
	return s.Execute(ctx)
}

func (s *QueryStage) run(ctx context.Context) (any, error) {
	if err := s.executeChildren(ctx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rewritten := s.Child
	ensureReq := rewrite.EnsureRequirements(s.cfg.EnsureRequirements)
	rewrittenAny := false
	if out, changed := rewrite.OptimizeJoin(s.cfg.Rewrite, rewritten, ensureReq, s.Kind == ShuffleStageKind); changed {
		rewritten, rewrittenAny = out, true
	}
	if out, changed := rewrite.HandleSkewedJoin(s.cfg.Rewrite, rewritten); changed {
		rewritten, rewrittenAny = out, true
	}
	if rewrittenAny && ensureReq != nil {
		rewritten = ensureReq(rewritten)
	}

	if err := s.determineReducerCounts(rewritten); err != nil {
		return nil, err
	}

	if s.cfg.CollapseCodegenStages != nil {
		rewritten = s.cfg.CollapseCodegenStages(rewritten)
	}

	s.mu.Lock()
	s.Child = rewritten
	s.mu.Unlock()

	event.Post(event.AdaptiveExecutionUpdate{
		StageID:    s.ID,
		PlanText:   plan.Explain(rewritten),
		PlanDigest: planDigest(encodeTree(rewritten)),
	})

	switch s.Kind {
	case ShuffleStageKind:
		return s.executeShuffle(ctx, rewritten)
	case BroadcastStageKind:
		return s.executeBroadcast(ctx, rewritten)
	default: // ResultStageKind
		return rewritten, nil
	}
}

func (s *QueryStage) executeShuffle(ctx context.Context, n plan.Node) (any, error) {
	ex, ok := n.(*plan.Exchange)
	if !ok || ex.Kind != plan.ShuffleExchangeKind {
		return nil, aqerr.NewInvariant("stage.Execute", "ShuffleStageKind child is not a shuffle *plan.Exchange (got %T)", n)
	}
	sx, ok := ex.Runtime.(exec.ShuffleExchange)
	if !ok {
		return nil, aqerr.NewInvariant("stage.Execute", "shuffle exchange %v has no exec.ShuffleExchange runtime", s.ID)
	}
	result, stats, err := sx.EagerExecute(ctx)
	if err != nil {
		return nil, err
	}
	s.setStats(stats)
	return result, nil
}

func (s *QueryStage) executeBroadcast(ctx context.Context, n plan.Node) (any, error) {
	ex, ok := n.(*plan.Exchange)
	if !ok || ex.Kind != plan.BroadcastExchangeKind {
		return nil, aqerr.NewInvariant("stage.Execute", "BroadcastStageKind child is not a broadcast *plan.Exchange (got %T)", n)
	}
	bx, ok := ex.Runtime.(exec.BroadcastExchange)
	if !ok {
		return nil, aqerr.NewInvariant("stage.Execute", "broadcast exchange %v has no exec.BroadcastExchange runtime", s.ID)
	}
	return bx.Materialize(ctx)
}

// executeChildren runs every distinct child stage reachable one
// QueryStageInput hop below s.Child concurrently on the shared
// pool, waiting for all of them and joining their errors; a
// reused child stage (see planner.stageFor) is only ever executed
// once, by whichever sibling reaches it first, because Execute
// itself is memoized by sync.Once.
func (s *QueryStage) executeChildren(ctx context.Context) error {
	children := collectChildStages(s.Child)
	if len(children) == 0 {
		return nil
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error
	pool := shared()
	for _, child := range children {
		child := child
		wg.Add(1)
		pool.do(func() {
			defer wg.Done()
			if _, err := child.Execute(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return aqerr.AppendAll(nil, errs)
}

func collectChildStages(n plan.Node) []*QueryStage {
	seen := make(map[*QueryStage]bool)
	var out []*QueryStage
	plan.Walk(plan.VisitorFunc(func(c plan.Node) bool {
		var child *QueryStage
		switch v := c.(type) {
		case *ShuffleStageInput:
			child = v.Child
		case *SkewedShuffleStageInput:
			child = v.Child
		case *BroadcastStageInput:
			child = v.Child
		}
		if child != nil && !seen[child] {
			seen[child] = true
			out = append(out, child)
		}
		return true
	}), n)
	return out
}

// determineReducerCounts fills in PartitionStartIndices/EndIndices
// on every not-yet-determined, non-local-shuffle ShuffleStageInput
// in n. All qualifying inputs share a single coordinator call and
// the single resulting start/end slices, so co-partitioned sides of
// a SortMergeJoin always agree on partition boundaries: computing
// them independently per input would let two sides with different
// per-partition byte distributions diverge and silently break
// co-partitioning.
func (s *QueryStage) determineReducerCounts(n plan.Node) error {
	var inputs []*ShuffleStageInput
	plan.Walk(plan.VisitorFunc(func(c plan.Node) bool {
		if si, ok := c.(*ShuffleStageInput); ok && !si.PartitionIndicesSet() && !si.IsLocalShuffle() {
			inputs = append(inputs, si)
		}
		return true
	}), n)
	if len(inputs) == 0 {
		return nil
	}

	all := make([]coordinator.MapOutputStatistics, len(inputs))
	for i, si := range inputs {
		stats, ok := si.ChildStats()
		if !ok {
			return aqerr.NewInvariant("stage.determineReducerCounts", "shuffle stage input has no statistics yet")
		}
		all[i] = stats
	}

	if len(inputs) == 2 && inputs[0].SkewedPartitions() != nil && inputs[1].SkewedPartitions() != nil {
		skewed := unionSkewed(inputs[0].SkewedPartitions(), inputs[1].SkewedPartitions())
		starts, ends, err := coordinator.EstimatePartitionStartEndIndices(s.cfg.Coordinator, all, skewed)
		if err != nil {
			return err
		}
		for _, si := range inputs {
			si.SetPartitionIndices(starts, ends)
		}
		return nil
	}

	starts, err := coordinator.EstimatePartitionStartIndices(s.cfg.Coordinator, all)
	if err != nil {
		return err
	}
	for _, si := range inputs {
		si.SetPartitionIndices(starts, nil)
	}
	return nil
}

func unionSkewed(a, b map[int]bool) map[int]bool {
	out := make(map[int]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}
