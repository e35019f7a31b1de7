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
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/database/plugin/blob"
	"github.com/blinklabs-io/tally/database/types"
)

var (
	ErrAggregatesNotFound = errors.New("batch aggregates not found")
	ErrNoURLSupport       = errors.New(
		"blob store does not support object URLs",
	)
)

// GetAggregates returns the encrypted count and sum aggregates for a batch
// from the blob store
func (d *Database) GetAggregates(
	batchId uint64,
	txn *Txn,
) (cipher.Ciphertext, cipher.Ciphertext, error) {
	if txn == nil {
		txn = d.BlobTxn(false)
		defer txn.Rollback() //nolint:errcheck
	}
	blobTxn := txn.Blob()
	if blobTxn == nil {
		return nil, nil, types.ErrNilTxn
	}
	blob := txn.DB().Blob()
	if blob == nil {
		return nil, nil, types.ErrBlobStoreUnavailable
	}
	count, err := blob.Get(blobTxn, types.AggregateCountKey(batchId))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return nil, nil, ErrAggregatesNotFound
		}
		return nil, nil, err
	}
	sum, err := blob.Get(blobTxn, types.AggregateSumKey(batchId))
	if err != nil {
		if errors.Is(err, types.ErrBlobKeyNotFound) {
			return nil, nil, ErrAggregatesNotFound
		}
		return nil, nil, err
	}
	return cipher.Ciphertext(count), cipher.Ciphertext(sum), nil
}

// SetAggregates stores the encrypted count and sum aggregates for a batch
// in the blob store
func (d *Database) SetAggregates(
	batchId uint64,
	count cipher.Ciphertext,
	sum cipher.Ciphertext,
	txn *Txn,
) error {
	owned := false
	if txn == nil {
		txn = d.BlobTxn(true)
		owned = true
		defer txn.Rollback() //nolint:errcheck
	}
	blobTxn := txn.Blob()
	if blobTxn == nil {
		return types.ErrNilTxn
	}
	blob := txn.DB().Blob()
	if blob == nil {
		return types.ErrBlobStoreUnavailable
	}
	if err := blob.Set(blobTxn, types.AggregateCountKey(batchId), count); err != nil {
		return err
	}
	if err := blob.Set(blobTxn, types.AggregateSumKey(batchId), sum); err != nil {
		return err
	}
	if owned {
		return txn.Commit()
	}
	return nil
}

// AggregateURLs returns direct download URLs for a batch's encrypted
// aggregates when the blob store can provide them (presigned S3 or signed
// GCS URLs). Local blob stores return ErrNoURLSupport.
func (d *Database) AggregateURLs(
	ctx context.Context,
	batchId uint64,
	expiry time.Duration,
) (*url.URL, *url.URL, error) {
	provider, ok := d.Blob().(blob.URLProvider)
	if !ok {
		return nil, nil, ErrNoURLSupport
	}
	countURL, err := provider.GetObjectURL(
		ctx,
		types.AggregateCountKey(batchId),
		expiry,
	)
	if err != nil {
		return nil, nil, err
	}
	sumURL, err := provider.GetObjectURL(
		ctx,
		types.AggregateSumKey(batchId),
		expiry,
	)
	if err != nil {
		return nil, nil, err
	}
	return countURL, sumURL, nil
}
