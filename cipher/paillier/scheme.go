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

package paillier

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/blinklabs-io/tally/cipher"
)

// Scheme adapts a Paillier public key to the coordinator's cipher.Scheme
// interface. Ciphertexts are the big-endian bytes of the ciphertext integer.
type Scheme struct {
	pub *PublicKey
}

// NewScheme returns a Scheme combining ciphertexts under the given public
// key.
func NewScheme(pub *PublicKey) *Scheme {
	return &Scheme{
		pub: pub,
	}
}

func (s *Scheme) Zero() (cipher.Ciphertext, error) {
	return s.Encrypt(0)
}

func (s *Scheme) Encrypt(value uint64) (cipher.Ciphertext, error) {
	c, err := s.pub.Encrypt(rand.Reader, new(big.Int).SetUint64(value))
	if err != nil {
		return nil, fmt.Errorf("paillier encrypt: %w", err)
	}
	return c.Bytes(), nil
}

func (s *Scheme) Add(
	a cipher.Ciphertext,
	b cipher.Ciphertext,
) (cipher.Ciphertext, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, cipher.ErrInvalidCiphertext
	}
	c, err := s.pub.Add(
		new(big.Int).SetBytes(a),
		new(big.Int).SetBytes(b),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cipher.ErrInvalidCiphertext, err)
	}
	return c.Bytes(), nil
}

func (s *Scheme) IsInitialized(ct cipher.Ciphertext) bool {
	if len(ct) == 0 {
		return false
	}
	return s.pub.Validate(new(big.Int).SetBytes(ct)) == nil
}
