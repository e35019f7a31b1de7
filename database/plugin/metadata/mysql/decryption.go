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

package mysql

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetDecryptionRequest returns a decryption request by its oracle request
// ID, or nil if the ID is unknown.
func (d *MetadataStoreMysql) GetDecryptionRequest(
	requestId string,
	txn types.Txn,
) (*models.DecryptionRequest, error) {
	var ret models.DecryptionRequest
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetDecryptionRequest: resolve db: %w", err,
		)
	}
	result := db.Where("request_id = ?", requestId).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf(
			"GetDecryptionRequest: query: %w", result.Error,
		)
	}
	return &ret, nil
}

// GetDecryptionRequestsByBatch returns all decryption requests for a batch
// in request order. Requests are never deleted, so this includes processed
// requests.
func (d *MetadataStoreMysql) GetDecryptionRequestsByBatch(
	batchId uint64,
	txn types.Txn,
) ([]models.DecryptionRequest, error) {
	var ret []models.DecryptionRequest
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetDecryptionRequestsByBatch: resolve db: %w", err,
		)
	}
	result := db.Where("batch_id = ?", batchId).Order("id").Find(&ret)
	if result.Error != nil {
		return nil, fmt.Errorf(
			"GetDecryptionRequestsByBatch: query: %w", result.Error,
		)
	}
	return ret, nil
}

// GetUnprocessedDecryptionRequests returns all decryption requests still
// waiting on an oracle callback, across all batches.
func (d *MetadataStoreMysql) GetUnprocessedDecryptionRequests(
	txn types.Txn,
) ([]models.DecryptionRequest, error) {
	var ret []models.DecryptionRequest
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetUnprocessedDecryptionRequests: resolve db: %w", err,
		)
	}
	result := db.Where("processed = ?", false).Order("id").Find(&ret)
	if result.Error != nil {
		return nil, fmt.Errorf(
			"GetUnprocessedDecryptionRequests: query: %w", result.Error,
		)
	}
	return ret, nil
}

// SetDecryptionRequest creates or updates a decryption request. The oracle
// request ID is the conflict key, so marking a request processed and
// recording the decrypted summary reuses this method.
func (d *MetadataStoreMysql) SetDecryptionRequest(
	request *models.DecryptionRequest,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return fmt.Errorf(
			"SetDecryptionRequest: resolve db: %w", err,
		)
	}
	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "request_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"processed",
			"count",
			"sum",
			"completed_at",
		}),
	}).Create(request)
	if result.Error != nil {
		return fmt.Errorf(
			"SetDecryptionRequest: upsert: %w", result.Error,
		)
	}
	return nil
}
