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

package oracle

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// ComputeHMACProof derives the HMAC-SHA256 proof over the request id and
// the cleartexts in delivery order. Oracles that authenticate results with
// a shared secret produce proofs in this format.
func ComputeHMACProof(
	secret []byte,
	requestId string,
	cleartexts []uint64,
) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(requestId))
	var buf [8]byte
	for _, v := range cleartexts {
		binary.BigEndian.PutUint64(buf[:], v)
		mac.Write(buf[:])
	}
	return mac.Sum(nil)
}

// VerifyHMACProof checks a shared-secret proof in constant time.
func VerifyHMACProof(
	secret []byte,
	requestId string,
	cleartexts []uint64,
	proof []byte,
) bool {
	expected := ComputeHMACProof(secret, requestId, cleartexts)
	return hmac.Equal(expected, proof)
}
