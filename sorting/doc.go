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

// Package sorting holds the ORDER BY vocabulary plan.Ordering is
// expressed in: sort direction and null placement. Actually
// sorting a row stream is the host engine's job, the same way
// actually shuffling or broadcasting one is (see package exec);
// AQSE only needs the enumeration to reason about a plan's
// required and current orderings when deciding whether a rewrite
// preserves them.
package sorting
