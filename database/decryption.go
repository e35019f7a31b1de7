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

// GetDecryptionRequest returns a decryption request by its oracle request
// ID, or nil if the ID is unknown
func (d *Database) GetDecryptionRequest(
	requestId string,
	txn *Txn,
) (*models.DecryptionRequest, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetDecryptionRequest(requestId, txn.Metadata())
}

// GetDecryptionRequestsByBatch returns all decryption requests for a batch
// in request order
func (d *Database) GetDecryptionRequestsByBatch(
	batchId uint64,
	txn *Txn,
) ([]models.DecryptionRequest, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetDecryptionRequestsByBatch(batchId, txn.Metadata())
}

// GetUnprocessedDecryptionRequests returns all decryption requests still
// waiting on an oracle callback
func (d *Database) GetUnprocessedDecryptionRequests(
	txn *Txn,
) ([]models.DecryptionRequest, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetUnprocessedDecryptionRequests(txn.Metadata())
}

// SetDecryptionRequest creates or updates a decryption request
func (d *Database) SetDecryptionRequest(
	request *models.DecryptionRequest,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.SetDecryptionRequest(request, txn.Metadata())
}
