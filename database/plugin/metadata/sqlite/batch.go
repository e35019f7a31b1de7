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

package sqlite

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetBatch returns a single batch by its batch ID, or nil if not found.
func (d *MetadataStoreSqlite) GetBatch(
	batchId uint64,
	txn types.Txn,
) (*models.Batch, error) {
	var ret models.Batch
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetBatch: resolve db: %w", err,
		)
	}
	result := db.Where("batch_id = ?", batchId).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf(
			"GetBatch: query: %w", result.Error,
		)
	}
	return &ret, nil
}

// GetBatches returns batches ordered by batch ID with optional pagination.
// A non-positive limit returns all batches from the given offset.
func (d *MetadataStoreSqlite) GetBatches(
	limit int,
	offset int,
	txn types.Txn,
) ([]models.Batch, error) {
	var ret []models.Batch
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetBatches: resolve db: %w", err,
		)
	}
	query := db.Order("batch_id")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	result := query.Find(&ret)
	if result.Error != nil {
		return nil, fmt.Errorf(
			"GetBatches: query: %w", result.Error,
		)
	}
	return ret, nil
}

// GetBatchCount returns the total number of batches.
func (d *MetadataStoreSqlite) GetBatchCount(
	txn types.Txn,
) (uint64, error) {
	var count int64
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return 0, fmt.Errorf(
			"GetBatchCount: resolve db: %w", err,
		)
	}
	result := db.Model(&models.Batch{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf(
			"GetBatchCount: query: %w", result.Error,
		)
	}
	if count < 0 {
		return 0, nil
	}
	return uint64(count), nil
}

// GetCurrentBatch returns the most recently opened batch, or nil if no
// batch has ever been opened. Batch IDs are assigned sequentially, so the
// current batch is the one with the highest ID regardless of state.
func (d *MetadataStoreSqlite) GetCurrentBatch(
	txn types.Txn,
) (*models.Batch, error) {
	var ret models.Batch
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetCurrentBatch: resolve db: %w", err,
		)
	}
	result := db.Order("batch_id DESC").First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf(
			"GetCurrentBatch: query: %w", result.Error,
		)
	}
	return &ret, nil
}

// SetBatch creates or updates a batch. The batch ID is the conflict key, so
// closing a batch or bumping its submission counter reuses this method.
func (d *MetadataStoreSqlite) SetBatch(
	batch *models.Batch,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return fmt.Errorf(
			"SetBatch: resolve db: %w", err,
		)
	}
	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "batch_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open",
			"submissions",
			"closed_at",
		}),
	}).Create(batch)
	if result.Error != nil {
		return fmt.Errorf(
			"SetBatch: upsert: %w", result.Error,
		)
	}
	return nil
}

// AddSubmission records an accepted submission. These are append-only audit
// rows and carry only the ciphertext count, never ciphertext bytes.
func (d *MetadataStoreSqlite) AddSubmission(
	submission *models.Submission,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return fmt.Errorf(
			"AddSubmission: resolve db: %w", err,
		)
	}
	if result := db.Create(submission); result.Error != nil {
		return fmt.Errorf(
			"AddSubmission: create: %w", result.Error,
		)
	}
	return nil
}

// GetSubmissions returns the submission audit records for a batch in
// arrival order.
func (d *MetadataStoreSqlite) GetSubmissions(
	batchId uint64,
	txn types.Txn,
) ([]models.Submission, error) {
	var ret []models.Submission
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetSubmissions: resolve db: %w", err,
		)
	}
	result := db.Where("batch_id = ?", batchId).Order("id").Find(&ret)
	if result.Error != nil {
		return nil, fmt.Errorf(
			"GetSubmissions: query: %w", result.Error,
		)
	}
	return ret, nil
}
