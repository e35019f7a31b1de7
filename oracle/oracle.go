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

// Package oracle defines the external decryption capability the coordinator
// consumes. The coordinator submits ciphertexts for decryption and later
// receives the cleartexts through a callback carrying a proof; the oracle
// implementation is responsible for generating and verifying that proof.
package oracle

import (
	"context"
	"errors"

	"github.com/blinklabs-io/tally/cipher"
)

// Common errors returned by oracle implementations.
var (
	ErrEmptyRequest     = errors.New("empty decryption request")
	ErrUnknownRequestId = errors.New("unknown request id")
	ErrStopped          = errors.New("oracle stopped")
)

// CallbackFunc receives asynchronous decryption results. Cleartexts arrive
// in the order the ciphertexts were submitted. The proof must be validated
// via the oracle's VerifyProof before the result is trusted.
type CallbackFunc func(requestId string, cleartexts []uint64, proof []byte)

// Oracle is an external decryption service. RequestDecryption submits
// ciphertexts for asynchronous decryption and returns the oracle-assigned
// request identifier; the result arrives later through a callback.
// VerifyProof checks the proof attached to a callback against the request
// it claims to answer. Implementations must be safe for concurrent use.
type Oracle interface {
	RequestDecryption(
		ctx context.Context,
		ciphertexts []cipher.Ciphertext,
	) (string, error)
	VerifyProof(
		ctx context.Context,
		requestId string,
		cleartexts []uint64,
		proof []byte,
	) (bool, error)
}
