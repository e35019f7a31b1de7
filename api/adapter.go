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
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/tally/access"
	"github.com/blinklabs-io/tally/aggregator"
	"github.com/blinklabs-io/tally/batch"
	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/decryption"
	"github.com/blinklabs-io/tally/ratelimit"
)

// defaultExportExpiry bounds how long batch export URLs stay valid.
const defaultExportExpiry = 15 * time.Minute

// NodeAdapter wraps the coordinator's components to implement the
// CoordinatorNode interface.
type NodeAdapter struct {
	accessControl *access.AccessControl
	rateLimiter   *ratelimit.RateLimiter
	batchRegistry *batch.Registry
	aggregator    *aggregator.Aggregator
	oracle        *decryption.Client
	db            *database.Database
}

// NewNodeAdapter creates a NodeAdapter over the given components. Panics
// if any component is nil.
func NewNodeAdapter(
	accessControl *access.AccessControl,
	rateLimiter *ratelimit.RateLimiter,
	batchRegistry *batch.Registry,
	agg *aggregator.Aggregator,
	oracle *decryption.Client,
	db *database.Database,
) *NodeAdapter {
	if accessControl == nil ||
		rateLimiter == nil ||
		batchRegistry == nil ||
		agg == nil ||
		oracle == nil ||
		db == nil {
		panic("NewNodeAdapter: all components must not be nil")
	}
	return &NodeAdapter{
		accessControl: accessControl,
		rateLimiter:   rateLimiter,
		batchRegistry: batchRegistry,
		aggregator:    agg,
		oracle:        oracle,
		db:            db,
	}
}

func (a *NodeAdapter) TransferOwnership(
	caller string,
	newAdmin string,
) error {
	return a.accessControl.TransferOwnership(caller, newAdmin)
}

func (a *NodeAdapter) AddSubmitter(
	caller string,
	identity string,
) error {
	return a.accessControl.AddSubmitter(caller, identity)
}

func (a *NodeAdapter) RemoveSubmitter(
	caller string,
	identity string,
) error {
	return a.accessControl.RemoveSubmitter(caller, identity)
}

func (a *NodeAdapter) SetPaused(
	caller string,
	paused bool,
) error {
	return a.accessControl.SetPaused(caller, paused)
}

func (a *NodeAdapter) SetCooldownSeconds(
	caller string,
	seconds uint64,
) error {
	return a.rateLimiter.SetCooldownSeconds(caller, seconds)
}

func (a *NodeAdapter) OpenBatch(caller string) (uint64, error) {
	return a.batchRegistry.OpenBatch(caller)
}

func (a *NodeAdapter) CloseBatch(
	caller string,
	batchId uint64,
) error {
	return a.batchRegistry.CloseBatch(caller, batchId)
}

func (a *NodeAdapter) RequestDecryption(
	ctx context.Context,
	caller string,
	batchId uint64,
) (string, error) {
	return a.oracle.RequestBatchSummaryDecryption(ctx, caller, batchId)
}

func (a *NodeAdapter) SubmitResponses(
	caller string,
	batchId uint64,
	ciphertexts []cipher.Ciphertext,
) error {
	return a.aggregator.SubmitEncryptedResponses(
		caller,
		batchId,
		ciphertexts,
	)
}

func (a *NodeAdapter) DeliverDecryptionResult(
	ctx context.Context,
	requestId string,
	cleartexts []uint64,
	proof []byte,
) error {
	return a.oracle.OnDecryptionCallback(
		ctx,
		requestId,
		cleartexts,
		proof,
	)
}

func (a *NodeAdapter) Status() StatusInfo {
	currentBatchId, currentOpen := a.batchRegistry.CurrentBatch()
	return StatusInfo{
		Administrator:   a.accessControl.Administrator(),
		Paused:          a.accessControl.IsPaused(),
		CooldownSeconds: a.rateLimiter.CooldownSeconds(),
		CurrentBatchId:  currentBatchId,
		CurrentOpen:     currentOpen,
	}
}

func (a *NodeAdapter) Submitters() ([]string, error) {
	submitters, err := a.db.GetSubmitters(false, nil)
	if err != nil {
		return nil, err
	}
	identities := make([]string, 0, len(submitters))
	for _, submitter := range submitters {
		identities = append(identities, submitter.Identity)
	}
	return identities, nil
}

func (a *NodeAdapter) Batch(batchId uint64) (*BatchInfo, error) {
	rec, err := a.batchRegistry.Batch(batchId)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	info := batchInfoFromModel(*rec)
	return &info, nil
}

func (a *NodeAdapter) Batches(
	limit int,
	offset int,
) ([]BatchInfo, error) {
	recs, err := a.batchRegistry.Batches(limit, offset)
	if err != nil {
		return nil, err
	}
	infos := make([]BatchInfo, 0, len(recs))
	for _, rec := range recs {
		infos = append(infos, batchInfoFromModel(rec))
	}
	return infos, nil
}

func (a *NodeAdapter) BatchCount() (uint64, error) {
	return a.batchRegistry.BatchCount()
}

func (a *NodeAdapter) BatchExportURLs(
	ctx context.Context,
	batchId uint64,
) (*BatchExportInfo, error) {
	rec, err := a.batchRegistry.Batch(batchId)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	countURL, sumURL, err := a.db.AggregateURLs(
		ctx,
		batchId,
		defaultExportExpiry,
	)
	if err != nil {
		if errors.Is(err, database.ErrNoURLSupport) {
			return nil, fmt.Errorf(
				"%w: blob store does not support export URLs",
				access.ErrInvalidParameter,
			)
		}
		return nil, err
	}
	return &BatchExportInfo{
		BatchId:  batchId,
		CountURL: countURL.String(),
		SumURL:   sumURL.String(),
	}, nil
}

func (a *NodeAdapter) DecryptionRequest(
	requestId string,
) (*DecryptionRequestInfo, error) {
	rec, err := a.oracle.Request(requestId)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	info := decryptionRequestInfoFromModel(*rec)
	return &info, nil
}

func (a *NodeAdapter) BatchDecryptionRequests(
	batchId uint64,
) ([]DecryptionRequestInfo, error) {
	recs, err := a.oracle.RequestsByBatch(batchId)
	if err != nil {
		return nil, err
	}
	infos := make([]DecryptionRequestInfo, 0, len(recs))
	for _, rec := range recs {
		infos = append(infos, decryptionRequestInfoFromModel(rec))
	}
	return infos, nil
}

func batchInfoFromModel(rec models.Batch) BatchInfo {
	return BatchInfo{
		BatchId:     rec.BatchId,
		Open:        rec.Open,
		Submissions: rec.Submissions,
		OpenedAt:    rec.OpenedAt,
		ClosedAt:    rec.ClosedAt,
	}
}

func decryptionRequestInfoFromModel(
	rec models.DecryptionRequest,
) DecryptionRequestInfo {
	return DecryptionRequestInfo{
		RequestId:   rec.RequestId,
		BatchId:     rec.BatchId,
		Processed:   rec.Processed,
		Count:       uint64(rec.Count),
		Sum:         uint64(rec.Sum),
		RequestedAt: rec.RequestedAt,
		CompletedAt: rec.CompletedAt,
	}
}
