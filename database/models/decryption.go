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

package models

import (
	"time"

	"github.com/blinklabs-io/tally/database/types"
)

// DecryptionRequest tracks an outstanding or completed decryption request
// for a closed batch. Rows are never deleted, which lets the oracle callback
// handler detect replayed request identifiers.
type DecryptionRequest struct {
	ID          uint         `gorm:"primarykey"`
	RequestId   string       `gorm:"uniqueIndex;size:64;not null"`
	BatchId     uint64       `gorm:"index;not null"`
	Fingerprint []byte       `gorm:"size:32;not null"` // digest of aggregates at request time
	Processed   bool         `gorm:"not null;default:false"`
	Count       types.Uint64 `gorm:""`
	Sum         types.Uint64 `gorm:""`
	RequestedAt time.Time    `gorm:"not null"`
	CompletedAt *time.Time   `gorm:""`
}

// TableName returns the table name for DecryptionRequest.
func (DecryptionRequest) TableName() string {
	return "decryption_request"
}
