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

package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("remote-oracle-test-secret-32byte")

func TestRequestDecryption(t *testing.T) {
	var gotReq decryptionRequest
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/v1/decrypt", r.URL.Path)
			require.Equal(
				t,
				"application/json",
				r.Header.Get("Content-Type"),
			)
			require.NoError(
				t,
				json.NewDecoder(r.Body).Decode(&gotReq),
			)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(decryptionResponse{
				RequestId: "req-1",
			})
		}),
	)
	defer server.Close()
	client := New(Config{
		BaseURL:     server.URL,
		CallbackURL: "http://coordinator.local/v1/oracle/callback",
		Secret:      testSecret,
	})
	requestId, err := client.RequestDecryption(
		context.Background(),
		[]cipher.Ciphertext{
			[]byte("count-ciphertext"),
			[]byte("sum-ciphertext"),
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "req-1", requestId)
	require.Len(t, gotReq.Ciphertexts, 2)
	assert.Equal(
		t,
		base64.StdEncoding.EncodeToString([]byte("count-ciphertext")),
		gotReq.Ciphertexts[0],
	)
	assert.Equal(
		t,
		"http://coordinator.local/v1/oracle/callback",
		gotReq.CallbackUrl,
	)
}

func TestRequestDecryptionEmpty(t *testing.T) {
	client := New(Config{BaseURL: "http://unused", Secret: testSecret})
	_, err := client.RequestDecryption(context.Background(), nil)
	require.ErrorIs(t, err, oracle.ErrEmptyRequest)
}

func TestRequestDecryptionInvalidCiphertext(t *testing.T) {
	client := New(Config{BaseURL: "http://unused", Secret: testSecret})
	_, err := client.RequestDecryption(
		context.Background(),
		[]cipher.Ciphertext{{}},
	)
	require.ErrorIs(t, err, cipher.ErrInvalidCiphertext)
}

func TestRequestDecryptionServerError(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "oracle unavailable", http.StatusServiceUnavailable)
		}),
	)
	defer server.Close()
	client := New(Config{BaseURL: server.URL, Secret: testSecret})
	_, err := client.RequestDecryption(
		context.Background(),
		[]cipher.Ciphertext{[]byte("ct")},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "oracle unavailable")
}

func TestRequestDecryptionEmptyRequestId(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(decryptionResponse{})
		}),
	)
	defer server.Close()
	client := New(Config{BaseURL: server.URL, Secret: testSecret})
	_, err := client.RequestDecryption(
		context.Background(),
		[]cipher.Ciphertext{[]byte("ct")},
	)
	require.Error(t, err)
}

func TestVerifyProof(t *testing.T) {
	client := New(Config{BaseURL: "http://unused", Secret: testSecret})
	cleartexts := []uint64{3, 15}
	proof := oracle.ComputeHMACProof(testSecret, "req-1", cleartexts)

	ok, err := client.VerifyProof(
		context.Background(), "req-1", cleartexts, proof,
	)
	require.NoError(t, err)
	assert.True(t, ok)

	// Tampered cleartexts
	ok, err = client.VerifyProof(
		context.Background(), "req-1", []uint64{3, 16}, proof,
	)
	require.NoError(t, err)
	assert.False(t, ok)

	// Wrong request id
	ok, err = client.VerifyProof(
		context.Background(), "req-2", cleartexts, proof,
	)
	require.NoError(t, err)
	assert.False(t, ok)

	// Malformed input fails closed
	ok, err = client.VerifyProof(
		context.Background(), "", cleartexts, nil,
	)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBaseURLTrailingSlash(t *testing.T) {
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/decrypt", r.URL.Path)
			_ = json.NewEncoder(w).Encode(decryptionResponse{
				RequestId: "req-1",
			})
		}),
	)
	defer server.Close()
	client := New(Config{BaseURL: server.URL + "/", Secret: testSecret})
	_, err := client.RequestDecryption(
		context.Background(),
		[]cipher.Ciphertext{[]byte("ct")},
	)
	require.NoError(t, err)
}
