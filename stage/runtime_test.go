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
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aqse/stage-engine/aqerr"
	"github.com/aqse/stage-engine/coordinator"
	"github.com/aqse/stage-engine/event"
	"github.com/aqse/stage-engine/exec/exectest"
	"github.com/aqse/stage-engine/plan"
)

func testCfg() Config {
	return Config{
		AdaptiveExecutionEnabled: true,
		EnsureRequirements:       exectest.EnsureRequirements,
		CollapseCodegenStages:    exectest.CollapseCodegenStages,
	}
}

func newShuffleExchange(input plan.Node, out []plan.Attr, numParts int, rt any) *plan.Exchange {
	ex := plan.NewExchange(input, plan.ShuffleExchangeKind, plan.Partitioning{NumPartitions: numParts}, out)
	ex.Runtime = rt
	return ex
}

func TestQueryStageExecuteShuffleStage(t *testing.T) {
	stats := coordinator.MapOutputStatistics{
		BytesByPartition: []uint64{100, 100},
		RowsByPartition:  []uint64{10, 10},
		NumMappers:       2,
	}
	fake := &exectest.ShuffleExchange{Result: "shuffled", Stats: stats}
	ex := newShuffleExchange(leaf("t"), nil, 2, fake)
	child := newStage(testCfg(), ShuffleStageKind, ex)
	top := newStage(testCfg(), ResultStageKind, &ShuffleStageInput{Child: child})

	result, err := top.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	si, ok := result.(*ShuffleStageInput)
	if !ok {
		t.Fatalf("expected a *ShuffleStageInput result, got %T", result)
	}
	if fake.Runs != 1 {
		t.Fatalf("expected EagerExecute to run once, ran %d times", fake.Runs)
	}
	if !si.PartitionIndicesSet() {
		t.Fatalf("expected the reducer count determination step to set partition indices")
	}
	gotStats, ok := child.Stats()
	if !ok || gotStats.NumMappers != 2 {
		t.Fatalf("expected the child stage's statistics to be recorded, got %+v ok=%v", gotStats, ok)
	}
}

func TestQueryStageExecuteIsMemoized(t *testing.T) {
	fake := &exectest.ShuffleExchange{Stats: coordinator.MapOutputStatistics{
		BytesByPartition: []uint64{1}, RowsByPartition: []uint64{1}, NumMappers: 1,
	}}
	ex := newShuffleExchange(leaf("t"), nil, 1, fake)
	st := newStage(testCfg(), ShuffleStageKind, ex)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.Execute(context.Background()); err != nil {
				t.Errorf("Execute: %v", err)
			}
		}()
	}
	wg.Wait()
	if fake.Runs != 1 {
		t.Fatalf("expected exactly one EagerExecute across concurrent callers, ran %d times", fake.Runs)
	}
}

func TestReusedChildStageExecutesOnce(t *testing.T) {
	fake := &exectest.ShuffleExchange{Stats: coordinator.MapOutputStatistics{
		BytesByPartition: []uint64{1}, RowsByPartition: []uint64{1}, NumMappers: 1,
	}}
	ex := newShuffleExchange(leaf("t"), nil, 1, fake)
	child := newStage(testCfg(), ShuffleStageKind, ex)

	parent1 := newStage(testCfg(), ResultStageKind, &ShuffleStageInput{Child: child})
	parent2 := newStage(testCfg(), ResultStageKind, &ShuffleStageInput{Child: child})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); parent1.Execute(context.Background()) }()
	go func() { defer wg.Done(); parent2.Execute(context.Background()) }()
	wg.Wait()

	if fake.Runs != 1 {
		t.Fatalf("expected the shared child stage to execute exactly once, ran %d times", fake.Runs)
	}
}

func TestExecuteChildrenJoinsErrors(t *testing.T) {
	failing := &exectest.ShuffleExchange{Err: errors.New("boom")}
	ex := newShuffleExchange(leaf("t"), nil, 1, failing)
	child := newStage(testCfg(), ShuffleStageKind, ex)
	top := newStage(testCfg(), ResultStageKind, &ShuffleStageInput{Child: child})

	_, err := top.Execute(context.Background())
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected the child's error to propagate, got %v", err)
	}
}

func TestQueryStageExecuteRespectsCancellation(t *testing.T) {
	fake := &exectest.ShuffleExchange{Stats: coordinator.MapOutputStatistics{
		BytesByPartition: []uint64{1, 1}, RowsByPartition: []uint64{1, 1}, NumMappers: 1,
	}}
	ex := newShuffleExchange(leaf("t"), nil, 2, fake)
	st := newStage(testCfg(), ShuffleStageKind, ex)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := st.Execute(ctx)
	if err == nil {
		t.Fatalf("expected an error from an already-canceled context")
	}
	if fake.Runs != 0 {
		t.Fatalf("expected EagerExecute not to run once the context was already canceled, ran %d times", fake.Runs)
	}
}

func TestBroadcastStagePrepareAndExecute(t *testing.T) {
	fake := &exectest.BroadcastExchange{Result: "handle"}
	ex := plan.NewExchange(leaf("small"), plan.BroadcastExchangeKind, plan.Partitioning{}, nil)
	ex.Runtime = fake
	st := newStage(testCfg(), BroadcastStageKind, ex)

	if err := st.PrepareBroadcast(context.Background()); err != nil {
		t.Fatalf("PrepareBroadcast: %v", err)
	}
	got, err := st.ExecuteBroadcast(context.Background())
	if err != nil {
		t.Fatalf("ExecuteBroadcast: %v", err)
	}
	if got != "handle" {
		t.Fatalf("expected the materialized handle, got %v", got)
	}
	if fake.Runs != 1 {
		t.Fatalf("expected Materialize to run once, ran %d times", fake.Runs)
	}
}

func TestBroadcastMethodsRejectWrongKind(t *testing.T) {
	st := newStage(testCfg(), ShuffleStageKind, leaf("t"))
	if err := st.PrepareBroadcast(context.Background()); err == nil {
		t.Fatalf("expected PrepareBroadcast to reject a non-broadcast stage")
	}
	if _, err := st.ExecuteBroadcast(context.Background()); err == nil {
		t.Fatalf("expected ExecuteBroadcast to reject a non-broadcast stage")
	}
}

func shuffleChild(numParts int, stats coordinator.MapOutputStatistics) *QueryStage {
	child := newStage(testCfg(), ShuffleStageKind, newShuffleExchange(leaf("t"), nil, numParts, &exectest.ShuffleExchange{}))
	child.setStats(stats)
	return child
}

func TestDetermineReducerCountsSkipsSkewedPartitions(t *testing.T) {
	stats := coordinator.MapOutputStatistics{
		BytesByPartition: []uint64{10, 10, 10, 10},
		RowsByPartition:  []uint64{1, 1, 1, 1},
		NumMappers:       2,
	}
	left := &ShuffleStageInput{Child: shuffleChild(4, stats)}
	right := &ShuffleStageInput{Child: shuffleChild(4, stats)}
	left.SetSkewedPartitions(map[int]bool{2: true})
	right.SetSkewedPartitions(map[int]bool{2: true})

	join := &plan.SortMergeJoin{}
	join.Left, join.Right = left, right

	top := newStage(testCfg(), ResultStageKind, join)
	if err := top.determineReducerCounts(join); err != nil {
		t.Fatalf("determineReducerCounts: %v", err)
	}
	for _, si := range []*ShuffleStageInput{left, right} {
		if !si.PartitionIndicesSet() {
			t.Fatalf("expected partition indices to be set")
		}
		for i, s := range si.PartitionStartIndices {
			e := si.PartitionEndIndices[i]
			if s <= 2 && e > 2 {
				t.Fatalf("expected no coalesced group to span the skewed partition 2, got [%d,%d)", s, e)
			}
		}
	}
}

// TestDetermineReducerCountsSharesBoundariesAcrossCoPartitionedInputs
// guards the co-partitioning invariant a SortMergeJoin's two sides
// rely on: differing per-partition byte distributions must still
// land on identical coalesced boundaries, because both sides are
// computed from one shared coordinator call.
func TestDetermineReducerCountsSharesBoundariesAcrossCoPartitionedInputs(t *testing.T) {
	cfg := testCfg()
	cfg.Coordinator = coordinator.Config{TargetPostShuffleInputSize: 15}

	left := &ShuffleStageInput{Child: shuffleChild(4, coordinator.MapOutputStatistics{
		BytesByPartition: []uint64{20, 1, 1, 1},
		RowsByPartition:  []uint64{1, 1, 1, 1},
		NumMappers:       2,
	})}
	right := &ShuffleStageInput{Child: shuffleChild(4, coordinator.MapOutputStatistics{
		BytesByPartition: []uint64{1, 1, 1, 20},
		RowsByPartition:  []uint64{1, 1, 1, 1},
		NumMappers:       2,
	})}

	join := &plan.SortMergeJoin{}
	join.Left, join.Right = left, right

	top := newStage(cfg, ResultStageKind, join)
	if err := top.determineReducerCounts(join); err != nil {
		t.Fatalf("determineReducerCounts: %v", err)
	}
	if !slicesEqualInts(left.PartitionStartIndices, right.PartitionStartIndices) {
		t.Fatalf("expected shared boundaries, got left=%v right=%v", left.PartitionStartIndices, right.PartitionStartIndices)
	}
}

func slicesEqualInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestExecuteNestedStageDAGDoesNotDeadlock exercises a two-level
// nested child stage DAG under the shared pool: each level blocks
// its own pool worker on wg.Wait() while fanning out to the next,
// which a fixed-size worker pool can deadlock once concurrent
// nesting exceeds its worker count.
func TestExecuteNestedStageDAGDoesNotDeadlock(t *testing.T) {
	leafStats := coordinator.MapOutputStatistics{
		BytesByPartition: []uint64{1}, RowsByPartition: []uint64{1}, NumMappers: 1,
	}

	const width = 4
	// Build `width` independent two-level stage chains (grandchild ->
	// middle -> top input) so Execute's own fan-out blocks width pool
	// workers on wg.Wait() each, while every one of them concurrently
	// fans out another width workers one level down.
	var mids []*QueryStage
	for i := 0; i < width; i++ {
		var grandchildInputs []plan.Node
		for j := 0; j < width; j++ {
			fake := &exectest.ShuffleExchange{Stats: leafStats}
			gc := newStage(testCfg(), ShuffleStageKind, newShuffleExchange(leaf("t"), nil, 1, fake))
			grandchildInputs = append(grandchildInputs, &ShuffleStageInput{Child: gc})
		}
		n := grandchildInputs[0]
		for _, gi := range grandchildInputs[1:] {
			sm := &plan.SortMergeJoin{}
			sm.Left, sm.Right = n, gi
			n = sm
		}
		fake := &exectest.ShuffleExchange{Stats: leafStats}
		mids = append(mids, newStage(testCfg(), ShuffleStageKind, newShuffleExchange(n, nil, 1, fake)))
	}

	var top plan.Node = &ShuffleStageInput{Child: mids[0]}
	for _, m := range mids[1:] {
		sm := &plan.SortMergeJoin{}
		sm.Left, sm.Right = top, &ShuffleStageInput{Child: m}
		top = sm
	}

	st := newStage(testCfg(), ResultStageKind, top)
	done := make(chan struct{})
	go func() {
		if _, err := st.Execute(context.Background()); err != nil {
			t.Errorf("Execute: %v", err)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Execute did not complete, suspected pool deadlock")
	}
}

// TestExecuteRecoversInvariantPanic confirms an *aqerr.Invariant
// panicked deep in the call chain (partition.assertValid and the
// rewrite package both do this on a broken plan-shape assumption)
// is converted back into an error at Execute's boundary instead of
// crashing the process.
func TestExecuteRecoversInvariantPanic(t *testing.T) {
	fake := &exectest.ShuffleExchange{Stats: coordinator.MapOutputStatistics{
		BytesByPartition: []uint64{1}, RowsByPartition: []uint64{1}, NumMappers: 1,
	}}
	ex := newShuffleExchange(leaf("t"), nil, 1, fake)
	child := newStage(testCfg(), ShuffleStageKind, ex)

	badSi := &ShuffleStageInput{Child: child}

	top := newStage(testCfg(), ResultStageKind, &panickingNode{inner: badSi})
	_, err := top.Execute(context.Background())
	if err == nil {
		t.Fatalf("expected a recovered invariant error, got nil")
	}
	var inv *aqerr.Invariant
	if !errors.As(err, &inv) {
		t.Fatalf("expected *aqerr.Invariant, got %T: %v", err, err)
	}
}

// panickingNode wraps a child so walking it forces an
// *aqerr.Invariant panic, simulating an invariant violation
// surfacing deep in the stage runtime's call chain (the way
// partition.assertValid or a rewrite-package invariant check
// would).
type panickingNode struct {
	inner plan.Node
}

func (p *panickingNode) Children() []plan.Node {
	panic(aqerr.NewInvariant("stage_test.panickingNode", "forced invariant violation"))
}
func (p *panickingNode) Output() []plan.Attr                   { return p.inner.Output() }
func (p *panickingNode) OutputPartitioning() plan.Partitioning { return p.inner.OutputPartitioning() }
func (p *panickingNode) OutputOrdering() []plan.Ordering       { return p.inner.OutputOrdering() }
func (p *panickingNode) Stats() plan.Stats                     { return p.inner.Stats() }

func TestExecutePostsAdaptiveExecutionUpdate(t *testing.T) {
	var mu sync.Mutex
	var got []event.AdaptiveExecutionUpdate
	event.Subscribe(func(ev event.AdaptiveExecutionUpdate) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	fake := &exectest.ShuffleExchange{Stats: coordinator.MapOutputStatistics{
		BytesByPartition: []uint64{1}, RowsByPartition: []uint64{1}, NumMappers: 1,
	}}
	ex := newShuffleExchange(leaf("t"), nil, 1, fake)
	st := newStage(testCfg(), ShuffleStageKind, ex)
	if _, err := st.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, ev := range got {
		if ev.StageID == st.ID {
			found = true
			if ev.PlanDigest == "" {
				t.Fatalf("expected a non-empty plan digest")
			}
		}
	}
	if !found {
		t.Fatalf("expected an AdaptiveExecutionUpdate posted for stage %s", st.ID)
	}
}

func TestPlanDigestIsStableAndDiscriminating(t *testing.T) {
	a := newShuffleExchange(leaf("t"), []plan.Attr{{ID: 1, Name: "x"}}, 4, nil)
	b := newShuffleExchange(leaf("t"), []plan.Attr{{ID: 1, Name: "x"}}, 4, nil)
	c := newShuffleExchange(leaf("t"), []plan.Attr{{ID: 1, Name: "x"}}, 8, nil)

	da := planDigest(encodeTree(a))
	db := planDigest(encodeTree(b))
	dc := planDigest(encodeTree(c))

	if da != db {
		t.Fatalf("expected structurally identical trees to digest identically")
	}
	if da == dc {
		t.Fatalf("expected trees differing in partition count to digest differently")
	}
}
