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

// GetAccessState returns the current administrator and pause flag, or nil
// if the coordinator has never been initialized
func (d *Database) GetAccessState(txn *Txn) (*models.AccessState, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetAccessState(txn.Metadata())
}

// SetAccessState updates the administrator and pause flag
func (d *Database) SetAccessState(
	state *models.AccessState,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.SetAccessState(state, txn.Metadata())
}

// GetSubmitter returns a single submitter by identity, or nil if the
// identity has never been registered
func (d *Database) GetSubmitter(
	identity string,
	txn *Txn,
) (*models.Submitter, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetSubmitter(identity, txn.Metadata())
}

// GetSubmitters returns registered submitters ordered by identity
func (d *Database) GetSubmitters(
	includeInactive bool,
	txn *Txn,
) ([]models.Submitter, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.GetSubmitters(includeInactive, txn.Metadata())
}

// SetSubmitter registers or revokes a submitter
func (d *Database) SetSubmitter(
	identity string,
	active bool,
	txn *Txn,
) error {
	if txn == nil {
		txn = d.Transaction(true)
		defer txn.Commit() //nolint:errcheck
	}
	return d.metadata.SetSubmitter(identity, active, txn.Metadata())
}
