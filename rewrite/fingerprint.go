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

package rewrite

import "golang.org/x/crypto/blake2b"

// PlanFingerprint returns the blake2b-256 digest of buf, the
// canonical byte encoding of a plan subtree's shape and literals
// (attribute names, never attribute ids, so two subtrees equal
// modulo attribute renaming encode and fingerprint identically).
//
// It is a fast-reject filter for the Stage Planner's reuse rule: a
// collision only means two plans might be equal modulo attribute
// renaming, never that they are — callers still fall back to
// plan.Equal on any candidate it turns up. siphash is deliberately
// not used here: siphash needs a secret key to resist adversarial
// collisions, which a local canonicalization buffer isn't
// defending against, and blake2b gives a wider digest that's cheap
// to carry as a map key.
func PlanFingerprint(buf []byte) [32]byte {
	return blake2b.Sum256(buf)
}
