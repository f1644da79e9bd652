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

// Leaf is a scan or other source node with no children of
// its own. It stands in for the physical scan operators that
// live outside this module; AQSE only needs its schema and
// size estimate to reason about exchanges above it.
type Leaf struct {
	Out     []Attr
	Part    Partitioning
	Order   []Ordering
	EstStat Stats
	// Name identifies the underlying source for Explain output
	// and test fixtures; it carries no planning semantics.
	Name string
}

func (l *Leaf) Children() []Node                  { return nil }
func (l *Leaf) Output() []Attr                    { return l.Out }
func (l *Leaf) OutputPartitioning() Partitioning   { return l.Part }
func (l *Leaf) OutputOrdering() []Ordering         { return l.Order }
func (l *Leaf) Stats() Stats                       { return l.EstStat }

// unary is embedded by single-child nodes to supply the
// default Children/rewrite behavior, mirroring the teacher's
// Nonterminal embedding in plan.Op implementations.
type unary struct {
	Input Node
}

func (u *unary) Children() []Node { return []Node{u.Input} }

// binary is embedded by two-child nodes (SortMergeJoin and
// BroadcastHashJoin); Union keeps its own Kids slice instead.
type binary struct {
	Left, Right Node
}

func (b *binary) Children() []Node { return []Node{b.Left, b.Right} }
