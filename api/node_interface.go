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
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package api

import (
	"context"
	"time"

	"github.com/blinklabs-io/tally/cipher"
)

// CoordinatorNode is the interface that the REST API server uses to drive
// the coordinator. This decouples the HTTP server from the concrete
// component structs and enables testing with mock implementations.
type CoordinatorNode interface {
	// TransferOwnership replaces the administrator identity.
	TransferOwnership(caller string, newAdmin string) error

	// AddSubmitter authorizes an identity to submit encrypted responses.
	AddSubmitter(caller string, identity string) error

	// RemoveSubmitter revokes a submitter authorization.
	RemoveSubmitter(caller string, identity string) error

	// SetPaused sets the coordinator-wide pause flag.
	SetPaused(caller string, paused bool) error

	// SetCooldownSeconds reconfigures the rate limiter cooldown.
	SetCooldownSeconds(caller string, seconds uint64) error

	// OpenBatch opens a new collection batch and returns its id.
	OpenBatch(caller string) (uint64, error)

	// CloseBatch permanently closes the current batch.
	CloseBatch(caller string, batchId uint64) error

	// RequestDecryption asks the decryption oracle for a closed batch's
	// aggregates and returns the oracle request id.
	RequestDecryption(
		ctx context.Context,
		caller string,
		batchId uint64,
	) (string, error)

	// SubmitResponses folds encrypted responses into an open batch.
	SubmitResponses(
		caller string,
		batchId uint64,
		ciphertexts []cipher.Ciphertext,
	) error

	// DeliverDecryptionResult processes a decryption oracle callback.
	DeliverDecryptionResult(
		ctx context.Context,
		requestId string,
		cleartexts []uint64,
		proof []byte,
	) error

	// Status returns the coordinator status snapshot.
	Status() StatusInfo

	// Submitters returns the active submitter identities.
	Submitters() ([]string, error)

	// Batch returns a batch by id, or nil if it does not exist.
	Batch(batchId uint64) (*BatchInfo, error)

	// Batches returns batches ordered by batch id.
	Batches(limit int, offset int) ([]BatchInfo, error)

	// BatchCount returns the total number of batches.
	BatchCount() (uint64, error)

	// BatchExportURLs returns download URLs for a batch's encrypted
	// aggregates when the blob store supports them.
	BatchExportURLs(
		ctx context.Context,
		batchId uint64,
	) (*BatchExportInfo, error)

	// DecryptionRequest returns a decryption request by id, or nil if it
	// does not exist.
	DecryptionRequest(requestId string) (*DecryptionRequestInfo, error)

	// BatchDecryptionRequests returns all decryption requests for a batch.
	BatchDecryptionRequests(batchId uint64) ([]DecryptionRequestInfo, error)
}

// StatusInfo holds the coordinator status needed by the API.
type StatusInfo struct {
	Administrator   string
	Paused          bool
	CooldownSeconds uint64
	CurrentBatchId  uint64 // 0 if no batch has been opened yet
	CurrentOpen     bool
}

// BatchInfo holds batch data needed by the API.
type BatchInfo struct {
	BatchId     uint64
	Open        bool
	Submissions uint64
	OpenedAt    time.Time
	ClosedAt    *time.Time
}

// BatchExportInfo holds aggregate download URLs for a batch.
type BatchExportInfo struct {
	BatchId  uint64
	CountURL string
	SumURL   string
}

// DecryptionRequestInfo holds decryption request data needed by the API.
type DecryptionRequestInfo struct {
	RequestId   string
	BatchId     uint64
	Processed   bool
	Count       uint64
	Sum         uint64
	RequestedAt time.Time
	CompletedAt *time.Time
}
