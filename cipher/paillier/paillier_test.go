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
	"math/big"
	"testing"

	"github.com/blinklabs-io/tally/cipher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKeyBits keeps key generation fast in tests. Production keys use
// DefaultKeyBits.
const testKeyBits = 512

// newTestKey generates a small keypair for testing
func newTestKey(t *testing.T) *PrivateKey {
	t.Helper()
	priv, err := GenerateKey(rand.Reader, testKeyBits)
	require.NoError(t, err)
	return priv
}

// =============================================================================
// Primitive Tests
// =============================================================================

func TestGenerateKeyRejectsSmallSizes(t *testing.T) {
	_, err := GenerateKey(rand.Reader, 128)
	require.ErrorIs(t, err, ErrKeyTooSmall)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	priv := newTestKey(t)
	for _, value := range []uint64{0, 1, 5, 7, 42, 1 << 40} {
		ct, err := priv.PublicKey.Encrypt(
			rand.Reader,
			new(big.Int).SetUint64(value),
		)
		require.NoError(t, err)
		pt, err := priv.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, value, pt.Uint64())
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	priv := newTestKey(t)
	m := big.NewInt(7)
	a, err := priv.PublicKey.Encrypt(rand.Reader, m)
	require.NoError(t, err)
	b, err := priv.PublicKey.Encrypt(rand.Reader, m)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "two encryptions of the same value should differ")
}

func TestEncryptRejectsOutOfRange(t *testing.T) {
	priv := newTestKey(t)
	_, err := priv.PublicKey.Encrypt(rand.Reader, big.NewInt(-1))
	require.ErrorIs(t, err, ErrMessageOutOfRange)
	_, err = priv.PublicKey.Encrypt(rand.Reader, priv.N)
	require.ErrorIs(t, err, ErrMessageOutOfRange)
}

func TestHomomorphicAdd(t *testing.T) {
	priv := newTestKey(t)
	a, err := priv.PublicKey.Encrypt(rand.Reader, big.NewInt(5))
	require.NoError(t, err)
	b, err := priv.PublicKey.Encrypt(rand.Reader, big.NewInt(7))
	require.NoError(t, err)
	sum, err := priv.PublicKey.Add(a, b)
	require.NoError(t, err)
	pt, err := priv.Decrypt(sum)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), pt.Uint64())
}

func TestValidateRejectsBadCiphertexts(t *testing.T) {
	priv := newTestKey(t)
	// Zero and negative values
	require.ErrorIs(t, priv.PublicKey.Validate(big.NewInt(0)), ErrCiphertextInvalid)
	require.ErrorIs(t, priv.PublicKey.Validate(big.NewInt(-4)), ErrCiphertextInvalid)
	// Out of range
	require.ErrorIs(
		t,
		priv.PublicKey.Validate(priv.NSquared),
		ErrCiphertextTooLarge,
	)
	// Shares a factor with n (c = n is never a unit mod n)
	require.ErrorIs(t, priv.PublicKey.Validate(priv.N), ErrCiphertextInvalid)
}

func TestKeyReconstruction(t *testing.T) {
	priv := newTestKey(t)
	rebuilt := NewPrivateKey(priv.N, priv.Lambda, priv.Mu)
	ct, err := rebuilt.PublicKey.Encrypt(rand.Reader, big.NewInt(99))
	require.NoError(t, err)
	pt, err := rebuilt.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), pt.Uint64())
}

// =============================================================================
// Scheme Tests
// =============================================================================

func TestSchemeZeroDecryptsToZero(t *testing.T) {
	priv := newTestKey(t)
	scheme := NewScheme(&priv.PublicKey)
	zero, err := scheme.Zero()
	require.NoError(t, err)
	require.True(t, scheme.IsInitialized(zero))
	pt, err := priv.Decrypt(new(big.Int).SetBytes(zero))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), pt.Uint64())
}

func TestSchemeAccumulation(t *testing.T) {
	priv := newTestKey(t)
	scheme := NewScheme(&priv.PublicKey)
	acc, err := scheme.Zero()
	require.NoError(t, err)
	var expected uint64
	for _, value := range []uint64{5, 7, 3} {
		ct, err := scheme.Encrypt(value)
		require.NoError(t, err)
		acc, err = scheme.Add(acc, ct)
		require.NoError(t, err)
		expected += value
	}
	pt, err := priv.Decrypt(new(big.Int).SetBytes(acc))
	require.NoError(t, err)
	assert.Equal(t, expected, pt.Uint64())
}

func TestSchemeIsInitialized(t *testing.T) {
	priv := newTestKey(t)
	scheme := NewScheme(&priv.PublicKey)
	assert.False(t, scheme.IsInitialized(nil))
	assert.False(t, scheme.IsInitialized(cipher.Ciphertext{}))
	assert.False(t, scheme.IsInitialized(priv.N.Bytes()))
	ct, err := scheme.Encrypt(3)
	require.NoError(t, err)
	assert.True(t, scheme.IsInitialized(ct))
}

func TestSchemeAddRejectsEmpty(t *testing.T) {
	priv := newTestKey(t)
	scheme := NewScheme(&priv.PublicKey)
	ct, err := scheme.Encrypt(1)
	require.NoError(t, err)
	_, err = scheme.Add(ct, nil)
	require.ErrorIs(t, err, cipher.ErrInvalidCiphertext)
	_, err = scheme.Add(nil, ct)
	require.ErrorIs(t, err, cipher.ErrInvalidCiphertext)
}

func TestSchemeAddRejectsNonUnit(t *testing.T) {
	priv := newTestKey(t)
	scheme := NewScheme(&priv.PublicKey)
	ct, err := scheme.Encrypt(1)
	require.NoError(t, err)
	// The modulus itself is in range but shares a factor with n, so it
	// can never be a real ciphertext.
	_, err = scheme.Add(ct, priv.N.Bytes())
	require.ErrorIs(t, err, cipher.ErrInvalidCiphertext)
}

// interface conformance
var _ cipher.Scheme = (*Scheme)(nil)
