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

import (
	"fmt"
	"strings"
)

// Explain renders a plan tree as an indented, human-readable
// string, used for the AdaptiveExecutionUpdate event posted after
// each round of adaptive rewriting (see event.AdaptiveExecutionUpdate).
func Explain(n Node) string {
	var sb strings.Builder
	explain(&sb, n, 0)
	return sb.String()
}

func explain(sb *strings.Builder, n Node, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(describe(n))
	sb.WriteByte('\n')
	for _, c := range n.Children() {
		explain(sb, c, depth+1)
	}
}

func describe(n Node) string {
	switch v := n.(type) {
	case nil:
		return "<nil>"
	case *Leaf:
		return fmt.Sprintf("Leaf(%s)", v.Name)
	case *Exchange:
		kind := "Shuffle"
		if v.Kind == BroadcastExchangeKind {
			kind = "Broadcast"
		}
		return fmt.Sprintf("%sExchange", kind)
	case *Sort:
		return "Sort"
	case *Union:
		return fmt.Sprintf("Union(%d)", len(v.Kids))
	case *SortMergeJoin:
		return fmt.Sprintf("SortMergeJoin(%s)", joinTypeName(v.JoinType))
	case *BroadcastHashJoin:
		return fmt.Sprintf("BroadcastHashJoin(%s, build=%s)", joinTypeName(v.JoinType), buildSideName(v.Build))
	default:
		return fmt.Sprintf("%T", n)
	}
}

func joinTypeName(jt JoinType) string {
	switch jt {
	case Inner:
		return "Inner"
	case LeftOuter:
		return "LeftOuter"
	case RightOuter:
		return "RightOuter"
	case Cross:
		return "Cross"
	case LeftSemi:
		return "LeftSemi"
	case LeftAnti:
		return "LeftAnti"
	case Existence:
		return "Existence"
	default:
		return "Unknown"
	}
}

func buildSideName(b BuildSide) string {
	if b == BuildLeft {
		return "left"
	}
	return "right"
}
