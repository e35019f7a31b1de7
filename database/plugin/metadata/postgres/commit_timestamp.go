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

package postgres

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/tally/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const commitTimestampRowId = 1

// CommitTimestamp tracks the timestamp of the latest commit spanning both
// the metadata and blob stores. It is compared against the blob store's own
// commit timestamp at startup to detect divergence between the two.
type CommitTimestamp struct {
	ID        uint `gorm:"primarykey"`
	Timestamp int64
}

func (CommitTimestamp) TableName() string {
	return "commit_timestamp"
}

// GetCommitTimestamp returns the stored commit timestamp, or zero if none
// has been recorded yet.
func (d *MetadataStorePostgres) GetCommitTimestamp() (int64, error) {
	var ret CommitTimestamp
	result := d.DB().First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf(
			"GetCommitTimestamp: query: %w", result.Error,
		)
	}
	return ret.Timestamp, nil
}

// SetCommitTimestamp records the commit timestamp inside the given
// transaction so it lands atomically with the rest of the commit.
func (d *MetadataStorePostgres) SetCommitTimestamp(
	txn types.Txn,
	timestamp int64,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return fmt.Errorf(
			"SetCommitTimestamp: resolve db: %w", err,
		)
	}
	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"timestamp",
		}),
	}).Create(&CommitTimestamp{
		ID:        commitTimestampRowId,
		Timestamp: timestamp,
	})
	if result.Error != nil {
		return fmt.Errorf(
			"SetCommitTimestamp: upsert: %w", result.Error,
		)
	}
	return nil
}
