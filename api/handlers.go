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
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"github.com/blinklabs-io/tally/access"
	"github.com/blinklabs-io/tally/aggregator"
	"github.com/blinklabs-io/tally/batch"
	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/decryption"
	"github.com/blinklabs-io/tally/ratelimit"
)

const apiVersion = "0.1.0"

// CallerIdentityHeader carries the caller identity on mutating requests.
// The coordinator trusts the fronting proxy to have authenticated it.
const CallerIdentityHeader = "X-Tally-Identity"

// writeJSON writes a JSON response with the given status
// code.
func writeJSON(
	w http.ResponseWriter,
	status int,
	v any,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(
	w http.ResponseWriter,
	status int,
	message string,
) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
}

// writeCoordinatorError maps coordinator errors onto HTTP status codes.
// Unrecognized errors are logged and reported as a generic 500 so internal
// details don't leak to clients.
func (a *API) writeCoordinatorError(
	w http.ResponseWriter,
	err error,
) {
	var cooldownErr *ratelimit.CooldownActiveError
	if errors.As(err, &cooldownErr) {
		w.Header().Set(
			"Retry-After",
			strconv.FormatUint(cooldownErr.RemainingSeconds, 10),
		)
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	switch {
	case errors.Is(err, access.ErrNotAdministrator),
		errors.Is(err, access.ErrNotSubmitter):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, access.ErrPaused),
		errors.Is(err, access.ErrNoAdministrator),
		errors.Is(err, batch.ErrBatchClosed),
		errors.Is(err, batch.ErrBatchNotClosed),
		errors.Is(err, decryption.ErrReplayDetected),
		errors.Is(err, decryption.ErrStateMismatch),
		errors.Is(err, decryption.ErrDecryptionFailed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, access.ErrInvalidParameter),
		errors.Is(err, aggregator.ErrNotInitialized):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error(
			"request failed",
			"error", err,
		)
		writeError(
			w,
			http.StatusInternalServerError,
			"internal server error",
		)
	}
}

// callerIdentity extracts the caller identity header. It writes a 401
// response and returns false when the header is missing.
func (a *API) callerIdentity(
	w http.ResponseWriter,
	r *http.Request,
) (string, bool) {
	identity := r.Header.Get(CallerIdentityHeader)
	if identity == "" {
		writeError(
			w,
			http.StatusUnauthorized,
			"missing "+CallerIdentityHeader+" header",
		)
		return "", false
	}
	return identity, true
}

// decodeRequest decodes a JSON request body. It writes a 400 response and
// returns false when the body is malformed.
func (a *API) decodeRequest(
	w http.ResponseWriter,
	r *http.Request,
	dst any,
) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"invalid request body: "+err.Error(),
		)
		return false
	}
	return true
}

// pathBatchId parses the {batchId} path segment. It writes a 400 response
// and returns false when the segment is not a number.
func (a *API) pathBatchId(
	w http.ResponseWriter,
	r *http.Request,
) (uint64, bool) {
	raw := r.PathValue("batchId")
	batchId, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"invalid batch id: "+raw,
		)
		return 0, false
	}
	return batchId, true
}

func batchResponse(info BatchInfo) BatchResponse {
	return BatchResponse{
		BatchId:     info.BatchId,
		Open:        info.Open,
		Submissions: info.Submissions,
		OpenedAt:    info.OpenedAt,
		ClosedAt:    info.ClosedAt,
	}
}

func decryptionRequestResponse(
	info DecryptionRequestInfo,
) DecryptionRequestResponse {
	resp := DecryptionRequestResponse{
		RequestId:   info.RequestId,
		BatchId:     info.BatchId,
		Processed:   info.Processed,
		RequestedAt: info.RequestedAt,
		CompletedAt: info.CompletedAt,
	}
	// Count/Sum are only meaningful once the oracle result landed
	if info.Processed {
		count := info.Count
		sum := info.Sum
		resp.Count = &count
		resp.Sum = &sum
	}
	return resp
}

// handleRoot handles GET / and returns API metadata.
func (a *API) handleRoot(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, RootResponse{
		Service: "tally",
		Version: apiVersion,
	})
}

// handleHealth handles GET /health and returns service health status.
func (a *API) handleHealth(
	w http.ResponseWriter,
	_ *http.Request,
) {
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
	})
}

// handleStatus handles GET /v1/status and returns the coordinator status
// snapshot.
func (a *API) handleStatus(
	w http.ResponseWriter,
	_ *http.Request,
) {
	status := a.node.Status()
	resp := StatusResponse{
		Administrator:   status.Administrator,
		Paused:          status.Paused,
		CooldownSeconds: status.CooldownSeconds,
		CurrentOpen:     status.CurrentOpen,
	}
	if status.CurrentBatchId != 0 {
		batchId := status.CurrentBatchId
		resp.CurrentBatch = &batchId
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTransferOwnership handles POST /v1/admin/transfer-ownership.
func (a *API) handleTransferOwnership(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.callerIdentity(w, r)
	if !ok {
		return
	}
	var req TransferOwnershipRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}
	if req.NewAdministrator == nil {
		writeError(
			w,
			http.StatusBadRequest,
			"missing new_administrator",
		)
		return
	}
	if err := a.node.TransferOwnership(
		caller,
		*req.NewAdministrator,
	); err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AdministratorResponse{
		Administrator: *req.NewAdministrator,
	})
}

// handleAddSubmitter handles POST /v1/admin/submitters/add.
func (a *API) handleAddSubmitter(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.callerIdentity(w, r)
	if !ok {
		return
	}
	var req SubmitterRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}
	if err := a.node.AddSubmitter(caller, req.Identity); err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitterResponse{
		Identity: req.Identity,
		Active:   true,
	})
}

// handleRemoveSubmitter handles POST /v1/admin/submitters/remove.
func (a *API) handleRemoveSubmitter(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.callerIdentity(w, r)
	if !ok {
		return
	}
	var req SubmitterRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}
	if err := a.node.RemoveSubmitter(caller, req.Identity); err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitterResponse{
		Identity: req.Identity,
		Active:   false,
	})
}

// handlePause handles POST /v1/admin/pause.
func (a *API) handlePause(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.callerIdentity(w, r)
	if !ok {
		return
	}
	var req PauseRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}
	if req.Paused == nil {
		writeError(w, http.StatusBadRequest, "missing paused")
		return
	}
	if err := a.node.SetPaused(caller, *req.Paused); err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PauseResponse{
		Paused: *req.Paused,
	})
}

// handleCooldown handles POST /v1/admin/cooldown.
func (a *API) handleCooldown(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.callerIdentity(w, r)
	if !ok {
		return
	}
	var req CooldownRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}
	if req.Seconds == nil {
		writeError(w, http.StatusBadRequest, "missing seconds")
		return
	}
	if err := a.node.SetCooldownSeconds(
		caller,
		*req.Seconds,
	); err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CooldownResponse{
		CooldownSeconds: *req.Seconds,
	})
}

// handleOpenBatch handles POST /v1/admin/batches/open.
func (a *API) handleOpenBatch(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.callerIdentity(w, r)
	if !ok {
		return
	}
	batchId, err := a.node.OpenBatch(caller)
	if err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchIdResponse{
		BatchId: batchId,
	})
}

// handleCloseBatch handles POST /v1/admin/batches/close.
func (a *API) handleCloseBatch(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.callerIdentity(w, r)
	if !ok {
		return
	}
	var req BatchIdRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}
	if req.BatchId == nil {
		writeError(w, http.StatusBadRequest, "missing batch_id")
		return
	}
	if err := a.node.CloseBatch(caller, *req.BatchId); err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchIdResponse{
		BatchId: *req.BatchId,
	})
}

// handleRequestDecryption handles POST /v1/admin/decryption-requests.
func (a *API) handleRequestDecryption(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.callerIdentity(w, r)
	if !ok {
		return
	}
	var req BatchIdRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}
	if req.BatchId == nil {
		writeError(w, http.StatusBadRequest, "missing batch_id")
		return
	}
	requestId, err := a.node.RequestDecryption(
		r.Context(),
		caller,
		*req.BatchId,
	)
	if err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	info, err := a.node.DecryptionRequest(requestId)
	if err != nil || info == nil {
		// The request was created but the read-back failed. Return
		// the identifiers so the caller can poll for the result.
		writeJSON(w, http.StatusOK, DecryptionRequestResponse{
			RequestId: requestId,
			BatchId:   *req.BatchId,
		})
		return
	}
	writeJSON(w, http.StatusOK, decryptionRequestResponse(*info))
}

// handleSubmitResponses handles POST /v1/batches/{batchId}/responses.
func (a *API) handleSubmitResponses(
	w http.ResponseWriter,
	r *http.Request,
) {
	caller, ok := a.callerIdentity(w, r)
	if !ok {
		return
	}
	batchId, ok := a.pathBatchId(w, r)
	if !ok {
		return
	}
	var req SubmitResponsesRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}
	ciphertexts := make([]cipher.Ciphertext, 0, len(req.Ciphertexts))
	for i, encoded := range req.Ciphertexts {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			writeError(
				w,
				http.StatusBadRequest,
				fmt.Sprintf(
					"invalid base64 in ciphertext %d",
					i,
				),
			)
			return
		}
		ciphertexts = append(ciphertexts, cipher.Ciphertext(raw))
	}
	if err := a.node.SubmitResponses(
		caller,
		batchId,
		ciphertexts,
	); err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponsesResponse{
		BatchId:  batchId,
		Accepted: len(ciphertexts),
	})
}

// handleOracleCallback handles POST /v1/oracle/callback. The callback is
// authenticated by its proof rather than a caller identity header.
func (a *API) handleOracleCallback(
	w http.ResponseWriter,
	r *http.Request,
) {
	var req OracleCallbackRequest
	if !a.decodeRequest(w, r, &req) {
		return
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		writeError(
			w,
			http.StatusBadRequest,
			"invalid base64 in proof",
		)
		return
	}
	if err := a.node.DeliverDecryptionResult(
		r.Context(),
		req.RequestId,
		req.Cleartexts,
		proof,
	); err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OracleCallbackResponse{
		RequestId: req.RequestId,
		Processed: true,
	})
}

// handleSubmitters handles GET /v1/submitters and returns the active
// submitter identities.
func (a *API) handleSubmitters(
	w http.ResponseWriter,
	_ *http.Request,
) {
	identities, err := a.node.Submitters()
	if err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	resp := make([]SubmitterResponse, 0, len(identities))
	for _, identity := range identities {
		resp = append(resp, SubmitterResponse{
			Identity: identity,
			Active:   true,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleBatches handles GET /v1/batches with pagination.
func (a *API) handleBatches(
	w http.ResponseWriter,
	r *http.Request,
) {
	pagination, err := ParsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	total, err := a.node.BatchCount()
	if err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	if total > uint64(maxInt) {
		total = uint64(maxInt)
	}
	SetPaginationHeaders(w, int(total), pagination)

	var batches []BatchInfo
	if pagination.Order == PaginationOrderDesc {
		// Batches are stored in ascending batch id order, so a
		// descending page is fetched from the end and reversed.
		end := int64(total) -
			int64(pagination.Page-1)*int64(pagination.Count)
		start := end - int64(pagination.Count)
		if start < 0 {
			start = 0
		}
		if end > 0 {
			batches, err = a.node.Batches(
				int(end-start),
				int(start),
			)
			if err != nil {
				a.writeCoordinatorError(w, err)
				return
			}
			slices.Reverse(batches)
		}
	} else {
		offset := (pagination.Page - 1) * pagination.Count
		batches, err = a.node.Batches(pagination.Count, offset)
		if err != nil {
			a.writeCoordinatorError(w, err)
			return
		}
	}

	resp := make([]BatchResponse, 0, len(batches))
	for _, info := range batches {
		resp = append(resp, batchResponse(info))
	}
	writeJSON(w, http.StatusOK, resp)
}

const maxInt = int(^uint(0) >> 1)

// handleBatch handles GET /v1/batches/{batchId}.
func (a *API) handleBatch(
	w http.ResponseWriter,
	r *http.Request,
) {
	batchId, ok := a.pathBatchId(w, r)
	if !ok {
		return
	}
	info, err := a.node.Batch(batchId)
	if err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	if info == nil {
		writeError(
			w,
			http.StatusNotFound,
			fmt.Sprintf("batch %d not found", batchId),
		)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse(*info))
}

// handleBatchExport handles GET /v1/batches/{batchId}/export and returns
// download URLs for the batch's encrypted aggregates.
func (a *API) handleBatchExport(
	w http.ResponseWriter,
	r *http.Request,
) {
	batchId, ok := a.pathBatchId(w, r)
	if !ok {
		return
	}
	info, err := a.node.BatchExportURLs(r.Context(), batchId)
	if err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	if info == nil {
		writeError(
			w,
			http.StatusNotFound,
			fmt.Sprintf("batch %d not found", batchId),
		)
		return
	}
	writeJSON(w, http.StatusOK, BatchExportResponse{
		BatchId:  info.BatchId,
		CountURL: info.CountURL,
		SumURL:   info.SumURL,
	})
}

// handleBatchDecryptionRequests handles
// GET /v1/batches/{batchId}/decryption-requests.
func (a *API) handleBatchDecryptionRequests(
	w http.ResponseWriter,
	r *http.Request,
) {
	batchId, ok := a.pathBatchId(w, r)
	if !ok {
		return
	}
	batchInfo, err := a.node.Batch(batchId)
	if err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	if batchInfo == nil {
		writeError(
			w,
			http.StatusNotFound,
			fmt.Sprintf("batch %d not found", batchId),
		)
		return
	}
	infos, err := a.node.BatchDecryptionRequests(batchId)
	if err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	resp := make([]DecryptionRequestResponse, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, decryptionRequestResponse(info))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDecryptionRequest handles GET /v1/decryption-requests/{requestId}.
func (a *API) handleDecryptionRequest(
	w http.ResponseWriter,
	r *http.Request,
) {
	requestId := r.PathValue("requestId")
	info, err := a.node.DecryptionRequest(requestId)
	if err != nil {
		a.writeCoordinatorError(w, err)
		return
	}
	if info == nil {
		writeError(
			w,
			http.StatusNotFound,
			"decryption request not found",
		)
		return
	}
	writeJSON(w, http.StatusOK, decryptionRequestResponse(*info))
}
