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

// AttrMap renames output attribute identities. A
// QueryStageInput's Out attributes can differ from its child
// stage's; when an OutputPartitioning or OutputOrdering computed
// against the child stage's attributes is propagated up through
// the input, it must be translated through the same map.
//
// This mirrors the substitution role plan/subplan.go's replacer
// played for sub-query results in the teacher: a small from->to
// lookup applied while walking an already-built structure, rather
// than a general expression rewriter.
type AttrMap map[int]Attr

// NewAttrMap builds an AttrMap from a child's output attributes
// to a renamed output, matching by position. from and to must
// have equal length.
func NewAttrMap(from, to []Attr) AttrMap {
	m := make(AttrMap, len(from))
	for i := range from {
		m[from[i].ID] = to[i]
	}
	return m
}

// Apply translates a through the map, leaving attributes with no
// entry unchanged.
func (m AttrMap) Apply(a Attr) Attr {
	if r, ok := m[a.ID]; ok {
		return r
	}
	return a
}

// ApplyAll translates every attribute in attrs.
func (m AttrMap) ApplyAll(attrs []Attr) []Attr {
	out := make([]Attr, len(attrs))
	for i, a := range attrs {
		out[i] = m.Apply(a)
	}
	return out
}

// ApplyPartitioning translates the keys of p through the map.
func (m AttrMap) ApplyPartitioning(p Partitioning) Partitioning {
	if len(p.Keys) == 0 {
		return p
	}
	return Partitioning{Keys: m.ApplyAll(p.Keys), NumPartitions: p.NumPartitions}
}

// ApplyOrdering translates the attribute of every Ordering through the map.
func (m AttrMap) ApplyOrdering(order []Ordering) []Ordering {
	if len(order) == 0 {
		return nil
	}
	out := make([]Ordering, len(order))
	for i, o := range order {
		out[i] = Ordering{Attr: m.Apply(o.Attr), Direction: o.Direction, Nulls: o.Nulls}
	}
	return out
}
