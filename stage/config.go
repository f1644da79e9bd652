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
	"github.com/aqse/stage-engine/exec"
	"github.com/aqse/stage-engine/rewrite"
)

// Config bundles everything PlanQueryStage and the stage runtime
// need for one query: the adaptive-execution feature gate, the
// coordinator and rewriter settings (narrowed from aqseconf.Config
// by the caller), and the two host-supplied plan transforms this
// package cannot perform itself. Every stage PlanQueryStage mints
// carries a copy, since both the rewriters and reducer-count
// determination run once per stage, long after planning returns.
type Config struct {
	AdaptiveExecutionEnabled bool

	Rewrite     rewrite.Config
	Coordinator coordinator.Config

	EnsureRequirements    exec.EnsureRequirements
	CollapseCodegenStages exec.CollapseCodegenStages
}
