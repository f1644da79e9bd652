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

// ExchangeKind distinguishes the two flavors of Exchange the
// stage planner wraps.
type ExchangeKind int

const (
	// ShuffleExchangeKind redistributes rows across a
	// partitioning; it is wrapped in a ShuffleStage.
	ShuffleExchangeKind ExchangeKind = iota
	// BroadcastExchangeKind replicates its input to every
	// worker; it is wrapped in a BroadcastStage.
	BroadcastExchangeKind
)

// Exchange is a plan node that redistributes (shuffle) or
// replicates (broadcast) its input. The Stage Planner replaces
// every Exchange with the matching QueryStageInput; by the time
// the rewriters or the runtime see a plan, no Exchange should
// remain unwrapped below a stage's own root.
type Exchange struct {
	unary
	Kind ExchangeKind
	// TargetPartitioning is the partitioning the shuffle
	// is keyed on (ignored for broadcast exchanges).
	TargetPartitioning Partitioning
	Out                []Attr
	// Runtime is the host-supplied collaborator that actually
	// performs this exchange: an exec.ShuffleExchange for
	// ShuffleExchangeKind, an exec.BroadcastExchange for
	// BroadcastExchangeKind. It is opaque here (package exec
	// imports package plan, not the reverse) and is type-asserted
	// by the stage runtime immediately before use.
	Runtime any
}

func (e *Exchange) Output() []Attr                  { return e.Out }
func (e *Exchange) OutputPartitioning() Partitioning { return e.TargetPartitioning }
func (e *Exchange) OutputOrdering() []Ordering       { return nil }
func (e *Exchange) Stats() Stats                     { return e.Input.Stats() }

// NewExchange builds an Exchange over input. unary is unexported,
// so callers outside this package cannot set Input through a
// keyed struct literal directly.
func NewExchange(input Node, kind ExchangeKind, target Partitioning, out []Attr) *Exchange {
	return &Exchange{unary: unary{Input: input}, Kind: kind, TargetPartitioning: target, Out: out}
}

func (e *Exchange) rewrite(r Rewriter) Node {
	child := Rewrite(r, e.Input)
	if child == e.Input {
		return e
	}
	cp := *e
	cp.Input = child
	return &cp
}
