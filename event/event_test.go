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

package event

import (
	"testing"

	"github.com/google/uuid"
)

func TestPostNotifiesSubscribers(t *testing.T) {
	got := make(chan AdaptiveExecutionUpdate, 1)
	Subscribe(func(ev AdaptiveExecutionUpdate) { got <- ev })

	id := uuid.New()
	Post(AdaptiveExecutionUpdate{StageID: id, PlanText: "Leaf(t)"})

	select {
	case ev := <-got:
		if ev.StageID != id {
			t.Fatalf("expected stage id %v, got %v", id, ev.StageID)
		}
	default:
		t.Fatal("expected subscriber to be notified synchronously")
	}
}
