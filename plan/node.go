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

// Package plan models the subset of a distributed SQL physical plan
// that the adaptive query stage engine has to pattern-match and
// rebuild: exchanges, joins, sorts, and unions. The concrete physical
// operator library (the real join/sort/scan implementations) lives
// outside this module; Node is a structural stand-in sized exactly
// to what the stage planner, the coordinator, and the rewriters need
// to walk and rewrite.
package plan

import "github.com/aqse/stage-engine/sorting"

// Attr is a single output attribute (column) of a Node.
// Two attributes are the same logical column iff their IDs match.
// Name is the column's display name; plan.Equal and the stage
// planner's plan encoding compare names rather than IDs.
type Attr struct {
	ID   int
	Name string
}

// Stats is an estimated (pre-execution) size record attached to a Node.
type Stats struct {
	SizeInBytes int64
	RowCount    int64
}

// Ordering describes one column of a plan's output ordering.
type Ordering struct {
	Attr      Attr
	Direction sorting.Direction
	Nulls     sorting.NullsOrder
}

// Partitioning describes how a Node's output rows are distributed.
type Partitioning struct {
	// Keys is nil for unpartitioned/single outputs (e.g. broadcast).
	Keys []Attr
	// NumPartitions is the number of partitions this node's
	// output is split across, if known.
	NumPartitions int
}

// Node is the closed set of physical plan shapes the engine
// must be able to walk, pattern-match, and functionally rewrite.
//
// Node mirrors the shape of a sum type via an interface plus a
// fixed, small set of implementing structs (see exchange.go, join.go,
// sort.go, union.go, leaf.go) rather than open-ended dynamic dispatch.
type Node interface {
	// Children returns this node's immediate children.
	// Callers must not modify the returned slice.
	Children() []Node

	// Output returns the node's output schema.
	Output() []Attr

	// OutputPartitioning describes how this node's output
	// is distributed, if known.
	OutputPartitioning() Partitioning

	// OutputOrdering describes this node's output order, if any.
	OutputOrdering() []Ordering

	// Stats returns the node's estimated size.
	Stats() Stats
}

// nonleaf is implemented by every Node with children of its own
// (Exchange, Sort, Union, SortMergeJoin, BroadcastHashJoin).
// Leaves (Leaf, and any external leaf such as a
// stage.QueryStageInput variant) do not implement it and are
// returned unchanged by Rewrite/Walk's descent.
type nonleaf interface {
	// rewrite applies r to this node's children (depth-first,
	// matching the teacher's Nonterminal.rewrite convention)
	// and returns a node with the rewritten children grafted in.
	rewrite(r Rewriter) Node
}

// Rewriter is applied to every node of a plan tree in depth-first
// order by Rewrite; see expr.Rewriter for the pattern this mirrors.
type Rewriter interface {
	// Rewrite is called on n after its children (if any)
	// have already been rewritten.
	Rewrite(n Node) Node
}

// RewriterFunc adapts a plain function to a Rewriter.
type RewriterFunc func(Node) Node

func (f RewriterFunc) Rewrite(n Node) Node { return f(n) }

// Rewrite recursively applies r to n in depth-first order,
// returning the (possibly new) rewritten tree.
func Rewrite(r Rewriter, n Node) Node {
	if n == nil {
		return nil
	}
	if nl, ok := n.(nonleaf); ok {
		n = nl.rewrite(r)
	}
	return r.Rewrite(n)
}

// Visitor observes a plan tree without rewriting it.
type Visitor interface {
	// Visit is called for every node; if it returns false,
	// Walk does not descend into n's children.
	Visit(n Node) bool
}

// VisitorFunc adapts a plain function to a Visitor.
type VisitorFunc func(Node) bool

func (f VisitorFunc) Visit(n Node) bool { return f(n) }

// Walk calls v.Visit on every node of the tree rooted at n,
// depth-first, pre-order.
func Walk(v Visitor, n Node) {
	if n == nil {
		return
	}
	if !v.Visit(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(v, c)
	}
}

// Find returns the first node in the tree rooted at n for which
// pred returns true, or nil if none match.
func Find(n Node, pred func(Node) bool) Node {
	var found Node
	Walk(VisitorFunc(func(c Node) bool {
		if found != nil {
			return false
		}
		if pred(c) {
			found = c
			return false
		}
		return true
	}), n)
	return found
}

// Collect returns every node in the tree rooted at n for which
// pred returns true, in depth-first pre-order.
func Collect(n Node, pred func(Node) bool) []Node {
	var out []Node
	Walk(VisitorFunc(func(c Node) bool {
		if pred(c) {
			out = append(out, c)
		}
		return true
	}), n)
	return out
}

// Count returns the number of nodes in the tree rooted at n
// for which pred returns true.
func Count(n Node, pred func(Node) bool) int {
	count := 0
	Walk(VisitorFunc(func(c Node) bool {
		if pred(c) {
			count++
		}
		return true
	}), n)
	return count
}
