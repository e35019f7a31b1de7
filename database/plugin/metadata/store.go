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

package metadata

import (
	"fmt"

	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/plugin"
	"github.com/blinklabs-io/tally/database/types"
	"gorm.io/gorm"
)

// MetadataStore is the interface for all metadata storage implementations.
// It holds the coordinator's relational state: access control, rate limit
// bookkeeping, batches, submission audit records, and decryption requests.
// The encrypted aggregates themselves live in the blob store.
type MetadataStore interface {
	// Database
	AutoMigrate(...any) error
	Close() error
	DB() *gorm.DB
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(types.Txn, int64) error
	Transaction() types.Txn

	// Access control
	GetAccessState(types.Txn) (*models.AccessState, error)
	SetAccessState(*models.AccessState, types.Txn) error
	GetSubmitter(
		string, // identity
		types.Txn,
	) (*models.Submitter, error)
	GetSubmitters(
		bool, // includeInactive
		types.Txn,
	) ([]models.Submitter, error)
	SetSubmitter(
		string, // identity
		bool, // active
		types.Txn,
	) error

	// Rate limiting
	GetCooldown(types.Txn) (*models.Cooldown, error)
	SetCooldown(
		uint64, // seconds
		types.Txn,
	) error
	GetActionUse(
		string, // action
		string, // identity
		types.Txn,
	) (*models.ActionUse, error)
	SetActionUse(
		string, // action
		string, // identity
		int64, // lastUse
		types.Txn,
	) error

	// Batches
	GetBatch(
		uint64, // batchId
		types.Txn,
	) (*models.Batch, error)
	GetBatches(
		int, // limit
		int, // offset
		types.Txn,
	) ([]models.Batch, error)
	GetBatchCount(types.Txn) (uint64, error)
	GetCurrentBatch(types.Txn) (*models.Batch, error)
	SetBatch(*models.Batch, types.Txn) error

	// Submissions
	AddSubmission(*models.Submission, types.Txn) error
	GetSubmissions(
		uint64, // batchId
		types.Txn,
	) ([]models.Submission, error)

	// Decryption requests
	GetDecryptionRequest(
		string, // requestId
		types.Txn,
	) (*models.DecryptionRequest, error)
	GetDecryptionRequestsByBatch(
		uint64, // batchId
		types.Txn,
	) ([]models.DecryptionRequest, error)
	GetUnprocessedDecryptionRequests(
		types.Txn,
	) ([]models.DecryptionRequest, error)
	SetDecryptionRequest(*models.DecryptionRequest, types.Txn) error
}

// New returns the started metadata plugin selected by name
func New(pluginName string) (MetadataStore, error) {
	// Get and start the plugin
	p, err := plugin.StartPlugin(plugin.PluginTypeMetadata, pluginName)
	if err != nil {
		return nil, err
	}

	// Type assert to MetadataStore interface
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}

	return metadataStore, nil
}
