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

package devoracle

import (
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/cipher/paillier"
	"github.com/blinklabs-io/tally/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyBits = 512

var testSecret = []byte("test oracle shared secret")

func newTestOracle(t *testing.T) (*Oracle, *paillier.Scheme) {
	t.Helper()
	priv, err := paillier.GenerateKey(rand.Reader, testKeyBits)
	require.NoError(t, err)
	o := New(Config{
		PrivateKey: priv,
		Secret:     testSecret,
	})
	t.Cleanup(o.Stop)
	return o, paillier.NewScheme(&priv.PublicKey)
}

func encryptValues(
	t *testing.T,
	scheme *paillier.Scheme,
	values ...uint64,
) []cipher.Ciphertext {
	t.Helper()
	cts := make([]cipher.Ciphertext, 0, len(values))
	for _, v := range values {
		ct, err := scheme.Encrypt(v)
		require.NoError(t, err)
		cts = append(cts, ct)
	}
	return cts
}

func TestRequestDecryptionReturnsUniqueIds(t *testing.T) {
	o, scheme := newTestOracle(t)
	cts := encryptValues(t, scheme, 3, 15)
	seen := map[string]bool{}
	for range 5 {
		requestId, err := o.RequestDecryption(t.Context(), cts)
		require.NoError(t, err)
		assert.NotEmpty(t, requestId)
		assert.False(t, seen[requestId], "request id reused")
		seen[requestId] = true
	}
}

func TestRequestDecryptionEmpty(t *testing.T) {
	o, _ := newTestOracle(t)
	_, err := o.RequestDecryption(t.Context(), nil)
	require.ErrorIs(t, err, oracle.ErrEmptyRequest)
}

func TestResultMatchesSubmissionOrder(t *testing.T) {
	o, scheme := newTestOracle(t)
	cts := encryptValues(t, scheme, 3, 15)
	requestId, err := o.RequestDecryption(t.Context(), cts)
	require.NoError(t, err)
	cleartexts, proof, err := o.Result(requestId)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 15}, cleartexts)
	assert.NotEmpty(t, proof)
}

func TestResultUnknownRequest(t *testing.T) {
	o, _ := newTestOracle(t)
	_, _, err := o.Result("nope")
	require.ErrorIs(t, err, oracle.ErrUnknownRequestId)
}

func TestVerifyProof(t *testing.T) {
	o, scheme := newTestOracle(t)
	cts := encryptValues(t, scheme, 7)
	requestId, err := o.RequestDecryption(t.Context(), cts)
	require.NoError(t, err)
	cleartexts, proof, err := o.Result(requestId)
	require.NoError(t, err)

	ok, err := o.VerifyProof(t.Context(), requestId, cleartexts, proof)
	require.NoError(t, err)
	assert.True(t, ok)

	// Tampered cleartexts must not verify
	ok, err = o.VerifyProof(t.Context(), requestId, []uint64{8}, proof)
	require.NoError(t, err)
	assert.False(t, ok)

	// Tampered proof must not verify
	badProof := append([]byte{}, proof...)
	badProof[0] ^= 0xff
	ok, err = o.VerifyProof(t.Context(), requestId, cleartexts, badProof)
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown request id is an error, not a bare false
	_, err = o.VerifyProof(t.Context(), "unknown", cleartexts, proof)
	require.ErrorIs(t, err, oracle.ErrUnknownRequestId)
}

func TestAsyncCallbackDelivery(t *testing.T) {
	o, scheme := newTestOracle(t)

	type delivery struct {
		requestId  string
		cleartexts []uint64
		proof      []byte
	}
	deliveries := make(chan delivery, 1)
	o.SetCallback(func(requestId string, cleartexts []uint64, proof []byte) {
		deliveries <- delivery{requestId, cleartexts, proof}
	})

	cts := encryptValues(t, scheme, 5, 12)
	requestId, err := o.RequestDecryption(t.Context(), cts)
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		assert.Equal(t, requestId, d.requestId)
		assert.Equal(t, []uint64{5, 12}, d.cleartexts)
		ok, err := o.VerifyProof(
			t.Context(),
			d.requestId,
			d.cleartexts,
			d.proof,
		)
		require.NoError(t, err)
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for callback delivery")
	}
}

func TestStopCancelsPendingDeliveries(t *testing.T) {
	priv, err := paillier.GenerateKey(rand.Reader, testKeyBits)
	require.NoError(t, err)
	o := New(Config{
		PrivateKey: priv,
		Secret:     testSecret,
		Delay:      time.Hour,
	})
	scheme := paillier.NewScheme(&priv.PublicKey)

	var mu sync.Mutex
	delivered := 0
	o.SetCallback(func(string, []uint64, []byte) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	cts := encryptValues(t, scheme, 1)
	_, err = o.RequestDecryption(t.Context(), cts)
	require.NoError(t, err)

	// Stop waits for the delivery goroutine, which should bail out
	// without invoking the callback
	o.Stop()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, delivered)

	// New requests after stop are rejected
	_, err = o.RequestDecryption(t.Context(), cts)
	require.ErrorIs(t, err, oracle.ErrStopped)
}
