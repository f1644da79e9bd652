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

// Package aqerr defines the error taxonomy used
// across the adaptive query stage engine.
package aqerr

import "fmt"

// Invariant is returned (or panicked, then recovered
// at the stage execution boundary) when a plan-shape
// assumption that the engine relies on does not hold.
//
// Encountering an Invariant means the query cannot proceed;
// callers should not retry without re-planning.
type Invariant struct {
	Where string
	Msg   string
}

func (e *Invariant) Error() string {
	return fmt.Sprintf("%s: invariant violated: %s", e.Where, e.Msg)
}

// NewInvariant constructs an *Invariant.
func NewInvariant(where, format string, args ...any) *Invariant {
	return &Invariant{Where: where, Msg: fmt.Sprintf(format, args...)}
}

// CoordinatorPrecondition is returned by the exchange coordinator
// when its inputs are inconsistent (e.g. MapOutputStatistics
// disagree on the number of partitions).
type CoordinatorPrecondition struct {
	Msg string
}

func (e *CoordinatorPrecondition) Error() string {
	return "coordinator precondition failed: " + e.Msg
}

// NewCoordinatorPrecondition constructs a *CoordinatorPrecondition.
func NewCoordinatorPrecondition(format string, args ...any) *CoordinatorPrecondition {
	return &CoordinatorPrecondition{Msg: fmt.Sprintf(format, args...)}
}

// Append combines outerr and err, preserving both error
// messages when both are non-nil.
func Append(outerr, err error) error {
	if outerr == nil {
		return err
	}
	if err == nil {
		return outerr
	}
	return fmt.Errorf("%w; %s", outerr, err.Error())
}

// AppendAll calls Append for every element of errs.
func AppendAll(outerr error, errs []error) error {
	for i := range errs {
		outerr = Append(outerr, errs[i])
	}
	return outerr
}
