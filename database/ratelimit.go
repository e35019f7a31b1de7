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

// GetCooldown returns the configured cooldown, or nil if none has been set
func (d *Database) GetCooldown(txn *Txn) (*models.Cooldown, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetCooldown(txn.Metadata())
}

// SetCooldown updates the cooldown duration
func (d *Database) SetCooldown(seconds uint64, txn *Txn) error {
	if txn == nil {
		txn = d.Transaction(true)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.SetCooldown(seconds, txn.Metadata())
}

// GetActionUse returns the last recorded use of an action by an identity,
// or nil if the identity has never performed the action
func (d *Database) GetActionUse(
	action string,
	identity string,
	txn *Txn,
) (*models.ActionUse, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetActionUse(action, identity, txn.Metadata())
}

// SetActionUse records the most recent use of an action by an identity
func (d *Database) SetActionUse(
	action string,
	identity string,
	lastUse int64,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.SetActionUse(action, identity, lastUse, txn.Metadata())
}
