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

const cooldownRowId = 1

// GetCooldown returns the configured cooldown, or nil if none has been set.
func (d *MetadataStorePostgres) GetCooldown(
	txn types.Txn,
) (*models.Cooldown, error) {
	var ret models.Cooldown
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetCooldown: resolve db: %w", err,
		)
	}
	result := db.Where("id = ?", cooldownRowId).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf(
			"GetCooldown: query: %w", result.Error,
		)
	}
	return &ret, nil
}

// SetCooldown updates the cooldown duration. There is a single row,
// created on first write.
func (d *MetadataStorePostgres) SetCooldown(
	seconds uint64,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return fmt.Errorf(
			"SetCooldown: resolve db: %w", err,
		)
	}
	tmpItem := models.Cooldown{
		ID:      cooldownRowId,
		Seconds: seconds,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"seconds"}),
	}).Create(&tmpItem)
	if result.Error != nil {
		return fmt.Errorf(
			"SetCooldown: upsert: %w", result.Error,
		)
	}
	return nil
}

// GetActionUse returns the last recorded use of an action by an identity,
// or nil if the identity has never performed the action.
func (d *MetadataStorePostgres) GetActionUse(
	action string,
	identity string,
	txn types.Txn,
) (*models.ActionUse, error) {
	var ret models.ActionUse
	db, err := d.resolveReadDB(txn)
	if err != nil {
		return nil, fmt.Errorf(
			"GetActionUse: resolve db: %w", err,
		)
	}
	result := db.Where(
		"action = ? AND identity = ?",
		action,
		identity,
	).First(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf(
			"GetActionUse: query: %w", result.Error,
		)
	}
	return &ret, nil
}

// SetActionUse records the most recent use of an action by an identity.
func (d *MetadataStorePostgres) SetActionUse(
	action string,
	identity string,
	lastUse int64,
	txn types.Txn,
) error {
	db, err := d.resolveDB(txn)
	if err != nil {
		return fmt.Errorf(
			"SetActionUse: resolve db: %w", err,
		)
	}
	tmpItem := models.ActionUse{
		Action:   action,
		Identity: identity,
		LastUse:  lastUse,
	}
	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "action"},
			{Name: "identity"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"last_use"}),
	}).Create(&tmpItem)
	if result.Error != nil {
		return fmt.Errorf(
			"SetActionUse: upsert: %w", result.Error,
		)
	}
	return nil
}
