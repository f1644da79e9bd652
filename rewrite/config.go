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

// Package rewrite implements the adaptive plan rewriters that run
// once a stage's child stages have reported their statistics:
// OptimizeJoin (broadcast-hash demotion) and HandleSkewedJoin
// (skew splitting).
package rewrite

// Config is the subset of aqseconf.Config the rewriters consult.
// It is a separate, narrower type (rather than importing
// aqseconf directly) so this package's public surface documents
// exactly what it depends on.
type Config struct {
	AdaptiveJoinEnabled       bool
	AdaptiveSkewedJoinEnabled bool

	AdaptiveBroadcastJoinThreshold int64

	AdaptiveSkewedFactor            float64
	AdaptiveSkewedSizeThreshold     int64
	AdaptiveSkewedRowCountThreshold int64
}
