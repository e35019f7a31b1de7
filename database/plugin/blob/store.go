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

package blob

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/blinklabs-io/tally/database/plugin"
	"github.com/blinklabs-io/tally/database/types"
)

// BlobStore is the interface for all blob storage implementations. The
// ciphertext aggregates live here, keyed per batch.
type BlobStore interface {
	Close() error
	NewTransaction(readWrite bool) types.Txn
	Get(txn types.Txn, key []byte) ([]byte, error)
	Set(txn types.Txn, key []byte, value []byte) error
	Delete(txn types.Txn, key []byte) error
	NewIterator(txn types.Txn, opts types.BlobIteratorOptions) types.BlobIterator

	// Commit timestamp tracking for blob/metadata divergence detection
	GetCommitTimestamp() (int64, error)
	SetCommitTimestamp(txn types.Txn, timestamp int64) error
}

// URLProvider is implemented by blob stores that can hand out direct
// download URLs for stored objects (e.g. presigned S3 URLs or signed GCS
// URLs). Local stores do not implement it.
type URLProvider interface {
	GetObjectURL(
		ctx context.Context,
		key []byte,
		expiry time.Duration,
	) (*url.URL, error)
}

// New returns the started blob plugin selected by name
func New(pluginName string) (BlobStore, error) {
	// Get and start the plugin
	p, err := plugin.StartPlugin(plugin.PluginTypeBlob, pluginName)
	if err != nil {
		return nil, err
	}

	// Type assert to BlobStore interface
	blobStore, ok := p.(BlobStore)
	if !ok {
		return nil, fmt.Errorf(
			"plugin '%s' does not implement BlobStore interface",
			pluginName,
		)
	}

	return blobStore, nil
}
