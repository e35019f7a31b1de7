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

// Package paillier implements the Paillier additively homomorphic
// cryptosystem over math/big integers. It exists so the full submission and
// decryption pipeline can run end to end in development and tests. It is NOT
// hardened against side channels and must not be used to protect real
// responses in production.
package paillier

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// DefaultKeyBits is the modulus size used when no size is specified.
const DefaultKeyBits = 2048

// MinKeyBits is the smallest modulus size GenerateKey accepts. Small keys
// are only useful to keep tests fast.
const MinKeyBits = 256

var (
	ErrKeyTooSmall        = errors.New("key size below minimum")
	ErrMessageOutOfRange  = errors.New("message out of range for key")
	ErrCiphertextInvalid  = errors.New("ciphertext is not a unit modulo n^2")
	ErrCiphertextTooLarge = errors.New("ciphertext out of range for key")
)

var one = big.NewInt(1)

// PublicKey holds the public parameters. G is fixed to n+1, which makes
// encryption cheap (no modular exponentiation for the g^m term) without
// weakening the scheme.
type PublicKey struct {
	N        *big.Int // modulus
	NSquared *big.Int // n^2, cached
	G        *big.Int // generator, n+1
}

// PrivateKey holds the decryption parameters alongside the public key.
type PrivateKey struct {
	PublicKey
	Lambda *big.Int // lcm(p-1, q-1)
	Mu     *big.Int // lambda^-1 mod n
}

// NewPublicKey builds a public key from a modulus, deriving the cached
// parameters. Used when loading keys from disk.
func NewPublicKey(n *big.Int) *PublicKey {
	return &PublicKey{
		N:        new(big.Int).Set(n),
		NSquared: new(big.Int).Mul(n, n),
		G:        new(big.Int).Add(n, one),
	}
}

// NewPrivateKey builds a private key from its stored parameters. Used when
// loading keys from disk.
func NewPrivateKey(n *big.Int, lambda *big.Int, mu *big.Int) *PrivateKey {
	return &PrivateKey{
		PublicKey: *NewPublicKey(n),
		Lambda:    new(big.Int).Set(lambda),
		Mu:        new(big.Int).Set(mu),
	}
}

// GenerateKey creates a Paillier keypair with a modulus of the given bit
// size, reading randomness from random.
func GenerateKey(random io.Reader, bits int) (*PrivateKey, error) {
	if bits < MinKeyBits {
		return nil, fmt.Errorf(
			"%w: %d bits, minimum %d",
			ErrKeyTooSmall,
			bits,
			MinKeyBits,
		)
	}
	for {
		p, err := rand.Prime(random, bits/2)
		if err != nil {
			return nil, fmt.Errorf("failed to generate prime: %w", err)
		}
		q, err := rand.Prime(random, bits/2)
		if err != nil {
			return nil, fmt.Errorf("failed to generate prime: %w", err)
		}
		if p.Cmp(q) == 0 {
			continue
		}
		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}
		pMinus1 := new(big.Int).Sub(p, one)
		qMinus1 := new(big.Int).Sub(q, one)
		// lambda = lcm(p-1, q-1) = (p-1)(q-1) / gcd(p-1, q-1)
		gcd := new(big.Int).GCD(nil, nil, pMinus1, qMinus1)
		lambda := new(big.Int).Mul(pMinus1, qMinus1)
		lambda.Div(lambda, gcd)
		// With g = n+1, L(g^lambda mod n^2) = lambda mod n, so
		// mu = lambda^-1 mod n
		mu := new(big.Int).ModInverse(lambda, n)
		if mu == nil {
			continue
		}
		return &PrivateKey{
			PublicKey: *NewPublicKey(n),
			Lambda:    lambda,
			Mu:        mu,
		}, nil
	}
}

// Encrypt encrypts m under the public key, reading blinding randomness from
// random. The message must satisfy 0 <= m < n.
func (pub *PublicKey) Encrypt(random io.Reader, m *big.Int) (*big.Int, error) {
	if m.Sign() < 0 || m.Cmp(pub.N) >= 0 {
		return nil, ErrMessageOutOfRange
	}
	r, err := randomUnit(random, pub.N)
	if err != nil {
		return nil, err
	}
	// c = g^m * r^n mod n^2, with g = n+1 so g^m = 1 + m*n mod n^2
	gm := new(big.Int).Mul(m, pub.N)
	gm.Add(gm, one)
	gm.Mod(gm, pub.NSquared)
	rn := new(big.Int).Exp(r, pub.N, pub.NSquared)
	c := new(big.Int).Mul(gm, rn)
	c.Mod(c, pub.NSquared)
	return c, nil
}

// Add homomorphically combines two ciphertexts: the product of ciphertexts
// modulo n^2 encrypts the sum of the plaintexts. Both inputs must pass
// Validate.
func (pub *PublicKey) Add(a *big.Int, b *big.Int) (*big.Int, error) {
	if err := pub.Validate(a); err != nil {
		return nil, err
	}
	if err := pub.Validate(b); err != nil {
		return nil, err
	}
	c := new(big.Int).Mul(a, b)
	c.Mod(c, pub.NSquared)
	return c, nil
}

// Validate checks that c is a plausible ciphertext for this key: in range
// (0, n^2) and a unit modulo n. A ciphertext sharing a factor with n cannot
// have been produced by Encrypt and would corrupt an aggregate.
func (pub *PublicKey) Validate(c *big.Int) error {
	if c == nil || c.Sign() <= 0 {
		return ErrCiphertextInvalid
	}
	if c.Cmp(pub.NSquared) >= 0 {
		return ErrCiphertextTooLarge
	}
	gcd := new(big.Int).GCD(nil, nil, c, pub.N)
	if gcd.Cmp(one) != 0 {
		return ErrCiphertextInvalid
	}
	return nil
}

// Decrypt recovers the plaintext from a ciphertext.
func (priv *PrivateKey) Decrypt(c *big.Int) (*big.Int, error) {
	if err := priv.Validate(c); err != nil {
		return nil, err
	}
	// m = L(c^lambda mod n^2) * mu mod n, where L(x) = (x-1)/n
	x := new(big.Int).Exp(c, priv.Lambda, priv.NSquared)
	x.Sub(x, one)
	x.Div(x, priv.N)
	m := x.Mul(x, priv.Mu)
	m.Mod(m, priv.N)
	return m, nil
}

// randomUnit returns a uniformly random element of (Z/nZ)* for blinding.
func randomUnit(random io.Reader, n *big.Int) (*big.Int, error) {
	gcd := new(big.Int)
	for {
		r, err := rand.Int(random, n)
		if err != nil {
			return nil, fmt.Errorf("failed to read randomness: %w", err)
		}
		if r.Sign() == 0 {
			continue
		}
		if gcd.GCD(nil, nil, r, n).Cmp(one) == 0 {
			return r, nil
		}
	}
}
