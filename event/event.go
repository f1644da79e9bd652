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

// Package event is the UI/observability hook the stage runtime
// posts to after every round of adaptive rewriting. A host engine
// subscribes with Subscribe; AQSE itself never reads the events
// back.
package event

import (
	"sync"

	"github.com/google/uuid"
)

// AdaptiveExecutionUpdate is posted once per Execute protocol run
// (see stage package §4.4 step 5), after rewriting and before the
// stage's own execution, so a UI can show the plan as it will
// actually run.
type AdaptiveExecutionUpdate struct {
	StageID  uuid.UUID
	PlanText string
	// PlanDigest is a stable content hash of the rewritten plan,
	// stable across process restarts (unlike StageID, which is
	// minted fresh every time a query is planned), so a UI or log
	// aggregator can correlate updates for the same logical stage
	// across retries.
	PlanDigest string
}

var (
	mu   sync.Mutex
	subs []func(AdaptiveExecutionUpdate)
)

// Subscribe registers fn to be called for every event posted
// after Subscribe returns. It does not replay past events.
func Subscribe(fn func(AdaptiveExecutionUpdate)) {
	mu.Lock()
	defer mu.Unlock()
	subs = append(subs, fn)
}

// Post notifies every subscriber of ev, synchronously, in
// registration order. Subscribers must not block.
func Post(ev AdaptiveExecutionUpdate) {
	mu.Lock()
	fns := make([]func(AdaptiveExecutionUpdate), len(subs))
	copy(fns, subs)
	mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
