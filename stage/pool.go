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

import "sync"

// pool is a process-wide, unbounded-cached goroutine pool used to
// fan out child-stage preparation: do spawns a fresh goroutine per
// submission rather than queuing onto a fixed worker set. A bounded
// pool deadlocks here, because executeChildren blocks its own
// worker goroutine on wg.Wait() while that wait depends on other
// submissions draining the same pool; a stage DAG nested more than
// one level deep can exceed any fixed worker count and leave no
// free worker to make progress.
type pool struct{}

func (pool) do(f func()) { go f() }

var (
	poolOnce sync.Once
	sharedP  pool
)

// shared returns the process-wide stage pool, started lazily on
// first use.
func shared() pool {
	poolOnce.Do(func() {
		sharedP = pool{}
	})
	return sharedP
}
