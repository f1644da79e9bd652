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

import "log"

// Errorf is called for unexpected-but-recoverable conditions
// during stage execution (a second statistics report for a stage
// that already has one; see setStats). A host engine can override
// it to route into its own
// logging; the default falls back to the stdlib logger.
var Errorf = func(f string, args ...any) {
	log.Printf(f, args...)
}
