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
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
// either express or implied. See the License for the specific language
// governing permissions and limitations under the License.

package mysql

import (
	"github.com/blinklabs-io/tally/database/types"
	"gorm.io/gorm"
)

// dbFromTxn returns d.DB() only when txn is nil, unwraps known *mysqlTxn or provider.MetadataTxn() when available, and returns nil for unrecognized txn types so callers can detect errors
func (d *MetadataStoreMysql) dbFromTxn(txn types.Txn) *gorm.DB {
	if txn == nil {
		return d.DB()
	}
	if stx, ok := txn.(*mysqlTxn); ok && stx != nil {
		return stx.db
	}
	if provider, ok := txn.(interface{ MetadataTxn() *gorm.DB }); ok {
		if db := provider.MetadataTxn(); db != nil {
			return db
		}
	}
	return nil // Return nil for unrecognized txn types to allow callers to detect errors
}

// resolveDB returns the *gorm.DB for the given transaction, or d.DB() if txn is nil.
// Returns nil, ErrTxnWrongType if txn is non-nil but not the expected type.
func (d *MetadataStoreMysql) resolveDB(txn types.Txn) (*gorm.DB, error) {
	if stx, ok := txn.(*mysqlTxn); ok {
		if stx != nil && stx.beginErr != nil {
			return nil, stx.beginErr
		}
	}
	if txn == nil {
		return d.DB(), nil
	}
	db := d.dbFromTxn(txn)
	if db == nil {
		return nil, types.ErrTxnWrongType
	}
	return db, nil
}

// resolveReadDB resolves the DB handle for read paths. Reads use the same
// resolution rules as writes.
func (d *MetadataStoreMysql) resolveReadDB(
	txn types.Txn,
) (*gorm.DB, error) {
	return d.resolveDB(txn)
}
