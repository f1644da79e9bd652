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
	"encoding/hex"

	"github.com/aqse/stage-engine/rewrite"
	"github.com/google/uuid"
)

// ID is a QueryStage's externally-visible identity: minted once
// when the planner creates the stage, carried into every
// AdaptiveExecutionUpdate event for that stage.
type ID = uuid.UUID

func newID() ID { return uuid.New() }

// key is rewrite.PlanFingerprint's digest of a stage's output-
// schema-qualified child plan, used as the planner's reuse-table
// lookup key. It is a fast-reject filter only: two different plans
// may in principle collide on the same key, so plan.Equal is the
// authoritative check once a candidate turns up (see
// planner.stageFor).
type key [32]byte

func (k key) String() string { return hex.EncodeToString(k[:]) }

// fingerprint hashes buf (the canonical encoding of a plan subtree,
// see planner.go's encodeTree) into a key.
func fingerprint(buf []byte) key {
	return key(rewrite.PlanFingerprint(buf))
}

// planDigest returns the same fingerprint as a hex string, for the
// externally-visible AdaptiveExecutionUpdate event: a UI or log
// aggregator can compare it across process restarts and retries of
// the same query, unlike StageID, which is minted fresh every time
// a query is planned.
func planDigest(buf []byte) string {
	return fingerprint(buf).String()
}
