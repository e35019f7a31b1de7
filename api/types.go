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

import "time"

// RootResponse is returned by GET /.
type RootResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	IsHealthy bool `json:"is_healthy"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	Administrator   string  `json:"administrator"`
	Paused          bool    `json:"paused"`
	CooldownSeconds uint64  `json:"cooldown_seconds"`
	CurrentBatch    *uint64 `json:"current_batch"`
	CurrentOpen     bool    `json:"current_open"`
}

// TransferOwnershipRequest is the body of
// POST /v1/admin/transfer-ownership.
type TransferOwnershipRequest struct {
	NewAdministrator *string `json:"new_administrator"`
}

// AdministratorResponse reports the administrator after a transfer.
type AdministratorResponse struct {
	Administrator string `json:"administrator"`
}

// SubmitterRequest is the body of POST /v1/admin/submitters/{add,remove}.
type SubmitterRequest struct {
	Identity string `json:"identity"`
}

// SubmitterResponse reports a submitter authorization change.
type SubmitterResponse struct {
	Identity string `json:"identity"`
	Active   bool   `json:"active"`
}

// PauseRequest is the body of POST /v1/admin/pause.
type PauseRequest struct {
	Paused *bool `json:"paused"`
}

// PauseResponse reports the pause flag after a change.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// CooldownRequest is the body of POST /v1/admin/cooldown.
type CooldownRequest struct {
	Seconds *uint64 `json:"seconds"`
}

// CooldownResponse reports the cooldown after a change.
type CooldownResponse struct {
	CooldownSeconds uint64 `json:"cooldown_seconds"`
}

// BatchIdRequest addresses a batch by id (close batch, request
// decryption).
type BatchIdRequest struct {
	BatchId *uint64 `json:"batch_id"`
}

// BatchIdResponse reports the affected batch id.
type BatchIdResponse struct {
	BatchId uint64 `json:"batch_id"`
}

// SubmitResponsesRequest is the body of
// POST /v1/batches/{batchId}/responses. Ciphertexts are base64-encoded.
type SubmitResponsesRequest struct {
	Ciphertexts []string `json:"ciphertexts"`
}

// SubmitResponsesResponse reports an accepted submission.
type SubmitResponsesResponse struct {
	BatchId  uint64 `json:"batch_id"`
	Accepted int    `json:"accepted"`
}

// DecryptionRequestResponse represents a decryption request. Count and Sum
// are only present once the request has been processed.
type DecryptionRequestResponse struct {
	RequestId   string     `json:"request_id"`
	BatchId     uint64     `json:"batch_id"`
	Processed   bool       `json:"processed"`
	Count       *uint64    `json:"count"`
	Sum         *uint64    `json:"sum"`
	RequestedAt time.Time  `json:"requested_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// OracleCallbackRequest is the body of POST /v1/oracle/callback. The proof
// is base64-encoded.
type OracleCallbackRequest struct {
	RequestId  string   `json:"request_id"`
	Cleartexts []uint64 `json:"cleartexts"`
	Proof      string   `json:"proof"`
}

// OracleCallbackResponse reports a processed callback.
type OracleCallbackResponse struct {
	RequestId string `json:"request_id"`
	Processed bool   `json:"processed"`
}

// BatchResponse represents a batch.
type BatchResponse struct {
	BatchId     uint64     `json:"batch_id"`
	Open        bool       `json:"open"`
	Submissions uint64     `json:"submissions"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at"`
}

// BatchExportResponse reports aggregate download URLs for a batch.
type BatchExportResponse struct {
	BatchId  uint64 `json:"batch_id"`
	CountURL string `json:"count_url"`
	SumURL   string `json:"sum_url"`
}
