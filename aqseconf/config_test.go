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

package aqseconf

import "testing"

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(`adaptiveJoinEnabled: true`))
	if err != nil {
		t.Fatal(err)
	}
	if !c.AdaptiveJoinEnabled {
		t.Fatal("expected explicit field to survive parsing")
	}
	if c.TargetPostShuffleInputSize <= 0 {
		t.Fatal("expected zero-valued threshold to be defaulted")
	}
	if c.AdaptiveSkewedFactor <= 0 {
		t.Fatal("expected skew factor to be defaulted")
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`targetPostShuffleInputSize: 1234`))
	if err != nil {
		t.Fatal(err)
	}
	if c.TargetPostShuffleInputSize != 1234 {
		t.Fatalf("expected explicit value to survive, got %d", c.TargetPostShuffleInputSize)
	}
}

func TestDefaultEnablesAdaptiveExecution(t *testing.T) {
	c := Default()
	if !c.AdaptiveExecutionEnabled {
		t.Fatal("expected adaptive execution on by default")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
