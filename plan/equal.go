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

package plan

// Equal reports whether a and b have the same shape "modulo
// attribute renaming": attribute identity (Attr.ID) is ignored,
// but attribute names, node kinds, and all other fields must
// match. This is the fallback comparison the Stage Planner's
// reuse rule (see stage.PlanQueryStage) falls through to after a
// fingerprint fast-path rejects an obviously-different candidate.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !attrsEqual(a.Output(), b.Output()) {
		return false
	}
	switch av := a.(type) {
	case *Leaf:
		bv, ok := b.(*Leaf)
		return ok && av.Name == bv.Name
	case *Exchange:
		bv, ok := b.(*Exchange)
		return ok && av.Kind == bv.Kind && partitioningEqual(av.TargetPartitioning, bv.TargetPartitioning) && Equal(av.Input, bv.Input)
	case *Sort:
		bv, ok := b.(*Sort)
		return ok && orderingsEqual(av.By, bv.By) && Equal(av.Input, bv.Input)
	case *Union:
		bv, ok := b.(*Union)
		if !ok || len(av.Kids) != len(bv.Kids) {
			return false
		}
		for i := range av.Kids {
			if !Equal(av.Kids[i], bv.Kids[i]) {
				return false
			}
		}
		return true
	case *SortMergeJoin:
		bv, ok := b.(*SortMergeJoin)
		return ok && av.JoinType == bv.JoinType && av.Cond == bv.Cond &&
			attrsEqual(av.LeftKeys, bv.LeftKeys) && attrsEqual(av.RightKeys, bv.RightKeys) &&
			Equal(av.Left, bv.Left) && Equal(av.Right, bv.Right)
	case *BroadcastHashJoin:
		bv, ok := b.(*BroadcastHashJoin)
		return ok && av.JoinType == bv.JoinType && av.Build == bv.Build && av.Cond == bv.Cond &&
			attrsEqual(av.LeftKeys, bv.LeftKeys) && attrsEqual(av.RightKeys, bv.RightKeys) &&
			Equal(av.Left, bv.Left) && Equal(av.Right, bv.Right)
	default:
		return false
	}
}

func attrsEqual(a, b []Attr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

func partitioningEqual(a, b Partitioning) bool {
	return a.NumPartitions == b.NumPartitions && attrsEqual(a.Keys, b.Keys)
}

func orderingsEqual(a, b []Ordering) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Attr.Name != b[i].Attr.Name || a[i].Direction != b[i].Direction || a[i].Nulls != b[i].Nulls {
			return false
		}
	}
	return true
}
