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

// Sort orders its input rows. SortMergeJoin requires its inputs
// to be Sort nodes; OptimizeJoin strips them when demoting to a
// broadcast-hash join, since only the merge-join strategy needs
// its inputs pre-sorted.
type Sort struct {
	unary
	By []Ordering
}

func (s *Sort) Output() []Attr                  { return s.Input.Output() }
func (s *Sort) OutputPartitioning() Partitioning { return s.Input.OutputPartitioning() }
func (s *Sort) OutputOrdering() []Ordering       { return s.By }
func (s *Sort) Stats() Stats                     { return s.Input.Stats() }

func (s *Sort) rewrite(r Rewriter) Node {
	child := Rewrite(r, s.Input)
	if child == s.Input {
		return s
	}
	cp := *s
	cp.Input = child
	return &cp
}

// NewSort builds a Sort over input. unary is unexported, so
// callers outside this package cannot set Input through a keyed
// struct literal directly.
func NewSort(input Node, by []Ordering) *Sort {
	return &Sort{unary: unary{Input: input}, By: by}
}

// StripSort returns n.Input if n is a *Sort, or n unchanged
// otherwise. Sort-merge join plans always sort both sides;
// a broadcast-hash join needs neither sort.
func StripSort(n Node) Node {
	if s, ok := n.(*Sort); ok {
		return s.Input
	}
	return n
}
