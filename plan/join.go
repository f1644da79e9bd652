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

// JoinType is the SQL join variant a SortMergeJoin or
// BroadcastHashJoin implements.
type JoinType int

const (
	Inner JoinType = iota
	LeftOuter
	RightOuter
	Cross
	LeftSemi
	LeftAnti
	Existence
)

// BuildSide is which input a broadcast-hash join materializes
// into a lookup table ("builds").
type BuildSide int

const (
	BuildLeft BuildSide = iota
	BuildRight
)

// RightBuildable reports whether jt admits building its right
// side into a broadcast hash table.
func (jt JoinType) RightBuildable() bool {
	switch jt {
	case Inner, LeftOuter, LeftSemi, LeftAnti, Existence:
		return true
	default:
		return false
	}
}

// LeftBuildable reports whether jt admits building its left
// side into a broadcast hash table.
func (jt JoinType) LeftBuildable() bool {
	switch jt {
	case Inner, RightOuter:
		return true
	default:
		return false
	}
}

// JoinCond is an opaque join condition/predicate; AQSE never
// evaluates it, only carries it across a rewrite.
type JoinCond struct {
	Text string
}

// SortMergeJoin joins two Sort-ordered inputs on equality keys.
// The rewriters in package rewrite either leave it as-is, demote
// it to a BroadcastHashJoin (OptimizeJoin), or split it into a
// Union of sub-joins over skewed partitions (HandleSkewedJoin).
type SortMergeJoin struct {
	binary
	LeftKeys, RightKeys []Attr
	JoinType            JoinType
	Cond                JoinCond
	Out                 []Attr
}

func (j *SortMergeJoin) Output() []Attr { return j.Out }

func (j *SortMergeJoin) OutputPartitioning() Partitioning {
	return j.Left.OutputPartitioning()
}

func (j *SortMergeJoin) OutputOrdering() []Ordering { return j.Left.OutputOrdering() }

func (j *SortMergeJoin) Stats() Stats {
	ls, rs := j.Left.Stats(), j.Right.Stats()
	return Stats{
		SizeInBytes: ls.SizeInBytes + rs.SizeInBytes,
		RowCount:    maxInt64(ls.RowCount, rs.RowCount),
	}
}

func (j *SortMergeJoin) rewrite(r Rewriter) Node {
	l := Rewrite(r, j.Left)
	rr := Rewrite(r, j.Right)
	if l == j.Left && rr == j.Right {
		return j
	}
	cp := *j
	cp.Left, cp.Right = l, rr
	return &cp
}

// BroadcastHashJoin joins a streamed input against a broadcast
// hash table built from the other side. It is produced only by
// OptimizeJoin, never by the upstream logical/physical planner
// (which is out of this module's scope).
type BroadcastHashJoin struct {
	binary
	LeftKeys, RightKeys []Attr
	JoinType            JoinType
	Build               BuildSide
	Cond                JoinCond
	Out                 []Attr
}

func (j *BroadcastHashJoin) Output() []Attr { return j.Out }

func (j *BroadcastHashJoin) OutputPartitioning() Partitioning {
	if j.Build == BuildRight {
		return j.Left.OutputPartitioning()
	}
	return j.Right.OutputPartitioning()
}

func (j *BroadcastHashJoin) OutputOrdering() []Ordering {
	if j.Build == BuildRight {
		return j.Left.OutputOrdering()
	}
	return j.Right.OutputOrdering()
}

func (j *BroadcastHashJoin) Stats() Stats {
	ls, rs := j.Left.Stats(), j.Right.Stats()
	return Stats{
		SizeInBytes: ls.SizeInBytes + rs.SizeInBytes,
		RowCount:    maxInt64(ls.RowCount, rs.RowCount),
	}
}

func (j *BroadcastHashJoin) rewrite(r Rewriter) Node {
	l := Rewrite(r, j.Left)
	rr := Rewrite(r, j.Right)
	if l == j.Left && rr == j.Right {
		return j
	}
	cp := *j
	cp.Left, cp.Right = l, rr
	return &cp
}

// NewSortMergeJoin builds a SortMergeJoin with the given keys,
// type, and condition copied from an existing join; used by
// HandleSkewedJoin to build sub-joins over split partitions. See
// NewBroadcastHashJoin for why a constructor is needed here.
func NewSortMergeJoin(left, right Node, leftKeys, rightKeys []Attr, jt JoinType, cond JoinCond, out []Attr) *SortMergeJoin {
	return &SortMergeJoin{
		binary:    binary{Left: left, Right: right},
		LeftKeys:  leftKeys,
		RightKeys: rightKeys,
		JoinType:  jt,
		Cond:      cond,
		Out:       out,
	}
}

// NewBroadcastHashJoin builds a BroadcastHashJoin. It exists because
// binary is unexported, so callers outside this package (namely
// package rewrite, demoting a SortMergeJoin) cannot set Left/Right
// through a keyed struct literal directly.
func NewBroadcastHashJoin(left, right Node, leftKeys, rightKeys []Attr, jt JoinType, build BuildSide, cond JoinCond, out []Attr) *BroadcastHashJoin {
	return &BroadcastHashJoin{
		binary:    binary{Left: left, Right: right},
		LeftKeys:  leftKeys,
		RightKeys: rightKeys,
		JoinType:  jt,
		Build:     build,
		Cond:      cond,
		Out:       out,
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
