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

package aqerr

import (
	"errors"
	"testing"
)

func TestAppendNil(t *testing.T) {
	if Append(nil, nil) != nil {
		t.Fatal("expected nil")
	}
	e := errors.New("boom")
	if Append(nil, e) != e {
		t.Fatal("expected single error passed through unchanged")
	}
	if Append(e, nil) != e {
		t.Fatal("expected single error passed through unchanged")
	}
}

func TestAppendBoth(t *testing.T) {
	e1 := errors.New("first")
	e2 := errors.New("second")
	got := Append(e1, e2)
	if !errors.Is(got, e1) {
		t.Fatalf("combined error %q lost first error", got)
	}
}

func TestAppendAll(t *testing.T) {
	errs := []error{errors.New("a"), nil, errors.New("b")}
	got := AppendAll(nil, errs)
	if got == nil {
		t.Fatal("expected non-nil combined error")
	}
}

func TestInvariantError(t *testing.T) {
	err := NewInvariant("stage", "child %d is not a shuffle exchange", 3)
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}
