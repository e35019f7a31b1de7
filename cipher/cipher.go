// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cipher defines the narrow encrypted-arithmetic capability the
// coordinator consumes. The coordinator only ever combines ciphertexts and
// checks their well-formedness; it never decrypts. Concrete schemes live in
// subpackages (e.g. paillier for development and testing).
package cipher

import "errors"

// Common errors returned by scheme implementations.
var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrValueTooLarge     = errors.New("value too large for scheme")
)

// Ciphertext is an opaque encrypted value. The coordinator treats it as a
// byte string; only the scheme that produced it can interpret it.
type Ciphertext []byte

// Scheme provides the homomorphic operations the coordinator needs.
// Implementations must be safe for concurrent use.
type Scheme interface {
	// Zero returns a fresh encrypted representation of zero. Aggregates
	// are initialized with it so an empty batch decrypts to zero.
	Zero() (Ciphertext, error)
	// Encrypt returns a fresh encryption of the given value. The
	// coordinator uses it for constant increments (e.g. counting
	// responses); submitters use it to produce response ciphertexts.
	Encrypt(value uint64) (Ciphertext, error)
	// Add homomorphically combines two ciphertexts into an encryption of
	// the sum of their plaintexts.
	Add(a Ciphertext, b Ciphertext) (Ciphertext, error)
	// IsInitialized reports whether the ciphertext is well-formed for
	// this scheme. Malformed or empty ciphertexts must never reach an
	// aggregate.
	IsInitialized(ct Ciphertext) bool
}
