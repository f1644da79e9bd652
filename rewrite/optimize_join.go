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

import "github.com/aqse/stage-engine/plan"

// EnsureRequirements inserts whatever exchanges a plan needs so
// every operator's input requirements are satisfied. AQSE treats
// it as an external collaborator (see exec.EnsureRequirements);
// OptimizeJoin takes it as a parameter rather than importing
// package exec, since exec already depends on plan and
// coordinator and has no reason to also depend on rewrite.
type EnsureRequirements func(plan.Node) plan.Node

// OptimizeJoin walks child bottom-up and demotes any
// SortMergeJoin whose build side is small enough into a
// BroadcastHashJoin, provided that once ensureRequirements has run
// over the candidate join no Exchange remains, or exactly one
// remains and tolerateOneExchange is set. tolerateOneExchange
// should be true when the
// enclosing stage is a shuffle stage (which itself already
// tolerates one final shuffle).
//
// It returns the (possibly unchanged) plan and whether it made
// any change.
func OptimizeJoin(cfg Config, child plan.Node, ensureRequirements EnsureRequirements, tolerateOneExchange bool) (plan.Node, bool) {
	if !cfg.AdaptiveJoinEnabled {
		return child, false
	}
	changed := false
	out := plan.Rewrite(plan.RewriterFunc(func(n plan.Node) plan.Node {
		smj, ok := n.(*plan.SortMergeJoin)
		if !ok {
			return n
		}
		candidate, ok := tryBroadcast(cfg, smj)
		if !ok {
			return n
		}
		if !accept(candidate, ensureRequirements, tolerateOneExchange) {
			return n
		}
		markLocalShuffle(candidate)
		changed = true
		return candidate
	}), child)
	return out, changed
}

// tryBroadcast decides whether smj can be demoted and, if so,
// returns the BroadcastHashJoin candidate (not yet accepted).
func tryBroadcast(cfg Config, smj *plan.SortMergeJoin) (*plan.BroadcastHashJoin, bool) {
	rightOK := smj.JoinType.RightBuildable() && buildable(smj.Right, cfg.AdaptiveBroadcastJoinThreshold)
	leftOK := smj.JoinType.LeftBuildable() && buildable(smj.Left, cfg.AdaptiveBroadcastJoinThreshold)

	var build plan.BuildSide
	switch {
	case rightOK:
		build = plan.BuildRight
	case leftOK:
		build = plan.BuildLeft
	default:
		return nil, false
	}

	return plan.NewBroadcastHashJoin(
		plan.StripSort(smj.Left), plan.StripSort(smj.Right),
		smj.LeftKeys, smj.RightKeys,
		smj.JoinType, build, smj.Cond, smj.Out,
	), true
}

func buildable(side plan.Node, threshold int64) bool {
	sz := side.Stats().SizeInBytes
	return sz >= 0 && sz <= threshold
}

// accept runs ensureRequirements over the candidate join subtree
// alone and counts the Exchange nodes in the result, accepting
// iff none remain, or exactly one remains and the enclosing stage
// tolerates a final shuffle. The rest of the enclosing stage's
// plan is not part of this check.
func accept(candidate *plan.BroadcastHashJoin, ensureRequirements EnsureRequirements, tolerateOneExchange bool) bool {
	var checked plan.Node = candidate
	if ensureRequirements != nil {
		checked = ensureRequirements(checked)
	}
	exchanges := plan.Count(checked, func(n plan.Node) bool {
		_, ok := n.(*plan.Exchange)
		return ok
	})
	if exchanges == 0 {
		return true
	}
	return tolerateOneExchange && exchanges == 1
}

// markLocalShuffle sets IsLocalShuffle on every ShuffleInput that
// is a direct child of the accepted broadcast-hash join: the
// broadcast removed the need to read that side as a shuffle.
func markLocalShuffle(j *plan.BroadcastHashJoin) {
	for _, side := range []plan.Node{j.Left, j.Right} {
		if si, ok := AsShuffleInput(side); ok {
			si.SetLocalShuffle(true)
		}
	}
}
