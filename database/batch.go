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

package database

import (
	"github.com/blinklabs-io/tally/database/models"
)

// GetBatch returns a single batch by its batch ID, or nil if not found
func (d *Database) GetBatch(
	batchId uint64,
	txn *Txn,
) (*models.Batch, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetBatch(batchId, txn.Metadata())
}

// GetBatches returns batches ordered by batch ID with optional pagination
func (d *Database) GetBatches(
	limit int,
	offset int,
	txn *Txn,
) ([]models.Batch, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetBatches(limit, offset, txn.Metadata())
}

// GetBatchCount returns the total number of batches
func (d *Database) GetBatchCount(txn *Txn) (uint64, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetBatchCount(txn.Metadata())
}

// GetCurrentBatch returns the most recently opened batch, or nil if no
// batch has ever been opened
func (d *Database) GetCurrentBatch(txn *Txn) (*models.Batch, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetCurrentBatch(txn.Metadata())
}

// SetBatch creates or updates a batch
func (d *Database) SetBatch(batch *models.Batch, txn *Txn) error {
	if txn == nil {
		txn = d.Transaction(true)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.SetBatch(batch, txn.Metadata())
}

// AddSubmission records an accepted submission audit row
func (d *Database) AddSubmission(
	submission *models.Submission,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.AddSubmission(submission, txn.Metadata())
}

// GetSubmissions returns the submission audit records for a batch in
// arrival order
func (d *Database) GetSubmissions(
	batchId uint64,
	txn *Txn,
) ([]models.Submission, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetSubmissions(batchId, txn.Metadata())
}
