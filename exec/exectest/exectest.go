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

// Package exectest provides fakes for the exec package's
// interfaces, used only by this module's own tests: a host engine
// is expected to supply real implementations in production.
package exectest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aqse/stage-engine/coordinator"
	"github.com/aqse/stage-engine/exec"
	"github.com/aqse/stage-engine/plan"
)

// ShuffleExchange is a fake exec.ShuffleExchange that returns a
// fixed result and statistics, counting how many times
// EagerExecute actually ran (as opposed to being served from a
// QueryStage's memoized Execute).
type ShuffleExchange struct {
	Result any
	Stats  coordinator.MapOutputStatistics
	Err    error

	Runs int32
}

func (s *ShuffleExchange) EagerExecute(ctx context.Context) (any, coordinator.MapOutputStatistics, error) {
	atomic.AddInt32(&s.Runs, 1)
	if s.Err != nil {
		return nil, coordinator.MapOutputStatistics{}, s.Err
	}
	return s.Result, s.Stats, nil
}

// BroadcastExchange is a fake exec.BroadcastExchange.
type BroadcastExchange struct {
	Result any
	Err    error

	Runs int32
}

func (b *BroadcastExchange) Materialize(ctx context.Context) (any, error) {
	atomic.AddInt32(&b.Runs, 1)
	if b.Err != nil {
		return nil, b.Err
	}
	return b.Result, nil
}

// Reader is a no-op exec.RowReader fake.
type Reader struct{}

func (Reader) Close() error { return nil }

// ShuffleManager is a fake exec.ShuffleManager that always hands
// back a Reader, recording every request it received.
type ShuffleManager struct {
	mu       sync.Mutex
	Requests [][4]int // reducerStart, reducerEnd, mapStart, mapEnd
}

func (m *ShuffleManager) Reader(ctx context.Context, handle any, reducerStart, reducerEnd, mapStart, mapEnd int) (exec.RowReader, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, [4]int{reducerStart, reducerEnd, mapStart, mapEnd})
	m.mu.Unlock()
	return Reader{}, nil
}

// MapOutputTracker is a fake exec.MapOutputTracker returning the
// fixed Hosts list for every request.
type MapOutputTracker struct {
	Hosts []string
}

func (t *MapOutputTracker) Locations(ctx context.Context, handle any, mapStart, mapEnd int) ([]string, error) {
	return t.Hosts, nil
}

// EnsureRequirements is the identity exec.EnsureRequirements, for
// tests that don't care about exchange insertion.
func EnsureRequirements(n plan.Node) plan.Node { return n }

// CollapseCodegenStages is the identity exec.CollapseCodegenStages.
func CollapseCodegenStages(n plan.Node) plan.Node { return n }

var (
	_ exec.ShuffleExchange   = (*ShuffleExchange)(nil)
	_ exec.BroadcastExchange = (*BroadcastExchange)(nil)
	_ exec.RowReader         = Reader{}
	_ exec.ShuffleManager    = (*ShuffleManager)(nil)
	_ exec.MapOutputTracker  = (*MapOutputTracker)(nil)
)
