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

	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const accessStateRowId = 1

// GetAccessState returns the current administrator and pause flag, or nil
// if the coordinator has never been initialized.
func (d *MetadataStorePostgres) GetAccessState(
	txn types.Txn,
) (*models.AccessState, error) {
	var ret models.AccessState
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetAccessState: resolve db: %w", err,
		)
	}
	result := db.Where("id = ?", accessStateRowId).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf(
			"GetAccessState: query: %w", result.Error,
		)
	}
	return &ret, nil
}

// SetAccessState updates the administrator and pause flag. There is a
// single row, created on first write.
func (d *MetadataStorePostgres) SetAccessState(
	state *models.AccessState,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return fmt.Errorf(
			"SetAccessState: resolve db: %w", err,
		)
	}
	state.ID = accessStateRowId
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"administrator", "paused"}),
	}).Create(state)
	if result.Error != nil {
		return fmt.Errorf(
			"SetAccessState: upsert: %w", result.Error,
		)
	}
	return nil
}

// GetSubmitter returns a single submitter by identity, or nil if the
// identity has never been registered. Revoked submitters are returned with
// Active unset.
func (d *MetadataStorePostgres) GetSubmitter(
	identity string,
	txn types.Txn,
) (*models.Submitter, error) {
	var ret models.Submitter
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetSubmitter: resolve db: %w", err,
		)
	}
	result := db.Where("identity = ?", identity).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf(
			"GetSubmitter: query: %w", result.Error,
		)
	}
	return &ret, nil
}

// GetSubmitters returns registered submitters ordered by identity. Revoked
// submitters are included when includeInactive is set.
func (d *MetadataStorePostgres) GetSubmitters(
	includeInactive bool,
	txn types.Txn,
) ([]models.Submitter, error) {
	var ret []models.Submitter
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetSubmitters: resolve db: %w", err,
		)
	}
	query := db.Order("identity")
	if !includeInactive {
		query = query.Where("active = ?", true)
	}
	result := query.Find(&ret)
	if result.Error != nil {
		return nil, fmt.Errorf(
			"GetSubmitters: query: %w", result.Error,
		)
	}
	return ret, nil
}

// SetSubmitter registers or revokes a submitter. Rows are never deleted so
// the authorization history is preserved.
func (d *MetadataStorePostgres) SetSubmitter(
	identity string,
	active bool,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return fmt.Errorf(
			"SetSubmitter: resolve db: %w", err,
		)
	}
	tmpItem := models.Submitter{
		Identity: identity,
		Active:   active,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}},
		DoUpdates: clause.AssignmentColumns([]string{"active"}),
	}).Create(&tmpItem)
	if result.Error != nil {
		return fmt.Errorf(
			"SetSubmitter: upsert: %w", result.Error,
		)
	}
	return nil
}
