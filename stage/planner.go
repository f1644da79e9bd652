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
	"bytes"
	"fmt"

	"github.com/aqse/stage-engine/exec"
	"github.com/aqse/stage-engine/plan"
	"golang.org/x/exp/slices"
)

// PlanQueryStage is the one-shot transform that wraps every
// *plan.Exchange in root with the matching QueryStageInput,
// reusing a previously-emitted stage whenever two exchanges wrap
// semantically identical (modulo attribute renaming) sub-plans.
// Disabled (identity) when cfg.AdaptiveExecutionEnabled is false.
func PlanQueryStage(cfg Config, root plan.Node) plan.Node {
	if !cfg.AdaptiveExecutionEnabled {
		return root
	}
	p := &planner{cfg: cfg, reuse: make(map[key][]*QueryStage)}
	transformed := p.walk(root)
	if _, ok := transformed.(exec.SideEffecting); ok {
		return transformed
	}
	return newStage(cfg, ResultStageKind, transformed)
}

type planner struct {
	cfg   Config
	reuse map[key][]*QueryStage
}

func (p *planner) walk(n plan.Node) plan.Node {
	return plan.Rewrite(plan.RewriterFunc(func(n plan.Node) plan.Node {
		ex, ok := n.(*plan.Exchange)
		if !ok {
			return n
		}
		st := p.stageFor(ex)
		switch ex.Kind {
		case plan.ShuffleExchangeKind:
			return &ShuffleStageInput{Child: st, Out: ex.Output()}
		default:
			return &BroadcastStageInput{Child: st, Out: ex.Output()}
		}
	}), n)
}

// stageFor returns an existing stage to reuse for ex, or mints a
// new one. The fingerprint is a blake2b-256 fast-reject filter
// only; plan.Equal is the authoritative check on any candidate it
// turns up, so a hash collision never causes an incorrect reuse.
func (p *planner) stageFor(ex *plan.Exchange) *QueryStage {
	k := fingerprint(encodeTree(ex))
	bucket := p.reuse[k]
	if i := slices.IndexFunc(bucket, func(cand *QueryStage) bool {
		candExchange, ok := cand.Child.(*plan.Exchange)
		return ok && plan.Equal(candExchange, ex)
	}); i >= 0 {
		return bucket[i]
	}
	kind := ShuffleStageKind
	if ex.Kind == plan.BroadcastExchangeKind {
		kind = BroadcastStageKind
	}
	st := newStage(p.cfg, kind, ex)
	p.reuse[k] = append(p.reuse[k], st)
	return st
}

// encodeTree produces a canonical byte encoding of the tree rooted
// at n: node kind tags and attribute names only, never attribute
// ids, so that two subtrees equal modulo attribute renaming encode
// identically. Used both as fingerprint's input (stage reuse) and
// planDigest's input (the externally-visible plan digest).
func encodeTree(n plan.Node) []byte {
	var buf bytes.Buffer
	encodeNode(&buf, n)
	return buf.Bytes()
}

func encodeNode(buf *bytes.Buffer, n plan.Node) {
	switch v := n.(type) {
	case nil:
		buf.WriteString("nil;")
	case *plan.Leaf:
		fmt.Fprintf(buf, "Leaf(%s)[", v.Name)
		encodeAttrs(buf, v.Output())
		buf.WriteString("];")
	case *plan.Exchange:
		fmt.Fprintf(buf, "Exchange(%d,%d)[", v.Kind, v.TargetPartitioning.NumPartitions)
		encodeAttrs(buf, v.TargetPartitioning.Keys)
		buf.WriteString("];")
		encodeNode(buf, v.Input)
	case *plan.Sort:
		buf.WriteString("Sort[")
		for _, o := range v.By {
			fmt.Fprintf(buf, "%s:%d:%d,", o.Attr.Name, o.Direction, o.Nulls)
		}
		buf.WriteString("];")
		encodeNode(buf, v.Input)
	case *plan.Union:
		fmt.Fprintf(buf, "Union(%d)[", len(v.Kids))
		for _, k := range v.Kids {
			encodeNode(buf, k)
		}
		buf.WriteString("];")
	case *plan.SortMergeJoin:
		fmt.Fprintf(buf, "SortMergeJoin(%d)[", v.JoinType)
		encodeAttrs(buf, v.LeftKeys)
		encodeAttrs(buf, v.RightKeys)
		buf.WriteString("];")
		encodeNode(buf, v.Left)
		encodeNode(buf, v.Right)
	case *plan.BroadcastHashJoin:
		fmt.Fprintf(buf, "BroadcastHashJoin(%d,%d)[", v.JoinType, v.Build)
		encodeAttrs(buf, v.LeftKeys)
		encodeAttrs(buf, v.RightKeys)
		buf.WriteString("];")
		encodeNode(buf, v.Left)
		encodeNode(buf, v.Right)
	default:
		fmt.Fprintf(buf, "%T;", n)
	}
}

func encodeAttrs(buf *bytes.Buffer, attrs []plan.Attr) {
	for _, a := range attrs {
		buf.WriteString(a.Name)
		buf.WriteByte(',')
	}
}
