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

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/blinklabs-io/tally/database/types"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// BlobStoreGCS stores data in a Google Cloud Storage bucket.
type BlobStoreGCS struct {
	promRegistry    prometheus.Registerer
	startupCtx      context.Context
	logger          *GcsLogger
	client          *storage.Client
	bucket          *storage.BucketHandle
	startupCancel   context.CancelFunc
	metrics         *blobMetrics
	bucketName      string
	credentialsFile string
	timeout         time.Duration
}

// gcsTxn wraps GCS operations to satisfy types.Txn
// Operations are not atomic but respect the transaction interface used by
// the database layer.
type gcsTxn struct {
	store     *BlobStoreGCS
	finished  bool
	readWrite bool
}

// New creates a new GCS-backed blob store.
func New(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*BlobStoreGCS, error) {
	const prefix = "gcs://"
	var bucketName string
	if after, ok := strings.CutPrefix(dataDir, prefix); ok {
		bucketName = after
	}
	if bucketName == "" {
		return nil, errors.New(
			"gcs blob: bucket not set (expected dataDir='gcs://<bucket>')",
		)
	}

	return NewWithOptions(
		WithBucket(bucketName),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
}

// NewWithOptions creates a new GCS-backed blob store using options.
func NewWithOptions(opts ...BlobStoreGCSOptionFunc) (*BlobStoreGCS, error) {
	db := &BlobStoreGCS{}

	// Apply options
	for _, opt := range opts {
		opt(db)
	}

	// Set defaults
	if db.logger == nil {
		db.logger = NewGcsLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	}

	return db, nil
}

func (d *BlobStoreGCS) opContext() (context.Context, context.CancelFunc) {
	timeout := d.timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func (d *BlobStoreGCS) init() error {
	// Configure metrics
	if d.promRegistry != nil {
		d.registerBlobMetrics()
	}

	// Close the startup context so that initialization will succeed.
	if d.startupCancel != nil {
		d.startupCancel()
		d.startupCancel = nil
	}
	d.startupCtx = context.Background()
	return nil
}

// Close closes the GCS client.
func (d *BlobStoreGCS) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

// Returns the GCS client.
func (d *BlobStoreGCS) Client() *storage.Client {
	return d.client
}

// Returns the bucket handle.
func (d *BlobStoreGCS) Bucket() *storage.BucketHandle {
	return d.bucket
}

// NewTransaction returns a lightweight transaction wrapper.
func (d *BlobStoreGCS) NewTransaction(readWrite bool) types.Txn {
	return &gcsTxn{store: d, readWrite: readWrite}
}

func (t *gcsTxn) assertWritable() error {
	if !t.readWrite {
		return errors.New("transaction is read-only")
	}
	return nil
}

func (t *gcsTxn) Commit() error {
	if t.finished {
		return nil
	}
	t.finished = true
	return nil
}

func (t *gcsTxn) Rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	return nil
}

func (d *BlobStoreGCS) validateTxn(txn types.Txn) (*gcsTxn, error) {
	if txn == nil {
		return nil, types.ErrNilTxn
	}
	t, ok := txn.(*gcsTxn)
	if !ok || t.store != d {
		return nil, types.ErrTxnWrongType
	}
	if t.finished {
		return nil, errors.New("transaction already finished")
	}
	if d.client == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	return t, nil
}

// Get retrieves a value from GCS within a transaction
func (d *BlobStoreGCS) Get(txn types.Txn, key []byte) ([]byte, error) {
	if _, err := d.validateTxn(txn); err != nil {
		return nil, err
	}
	ctx, cancel := d.opContext()
	defer cancel()
	return d.getInternal(ctx, string(key))
}

// Set stores a key-value pair in GCS within a transaction
func (d *BlobStoreGCS) Set(txn types.Txn, key, val []byte) error {
	t, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if err := t.assertWritable(); err != nil {
		return err
	}
	ctx, cancel := d.opContext()
	defer cancel()
	return d.putInternal(ctx, string(key), val)
}

// Delete removes a key from GCS within a transaction
func (d *BlobStoreGCS) Delete(txn types.Txn, key []byte) error {
	t, err := d.validateTxn(txn)
	if err != nil {
		return err
	}
	if err := t.assertWritable(); err != nil {
		return err
	}
	ctx, cancel := d.opContext()
	defer cancel()
	err = d.bucket.Object(string(key)).Delete(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return types.ErrBlobKeyNotFound
		}
		d.logger.Errorf("gcs delete %q failed: %v", string(key), err)
		return err
	}
	d.countOp(0)
	return nil
}

// NewIterator creates an iterator for GCS within a transaction.
//
// Important: items returned by the iterator's `Item()` must only be
// accessed while the transaction used to create the iterator is still
// active. Typical usage iterates and accesses item values within the same
// transaction scope.
func (d *BlobStoreGCS) NewIterator(
	txn types.Txn,
	opts types.BlobIteratorOptions,
) types.BlobIterator {
	if _, err := d.validateTxn(txn); err != nil {
		return &gcsErrorIterator{err: err}
	}
	keys, err := d.listKeys(opts)
	if err != nil {
		d.logger.Errorf("gcs list failed: %v", err)
		return &gcsIterator{
			store:   d,
			keys:    []string{},
			reverse: opts.Reverse,
			err:     err,
			txn:     txn,
		}
	}
	return &gcsIterator{store: d, keys: keys, reverse: opts.Reverse, txn: txn}
}

type gcsIterator struct {
	store   *BlobStoreGCS
	keys    []string
	idx     int
	reverse bool
	err     error
	txn     types.Txn
}

func (it *gcsIterator) Rewind() {
	it.idx = 0
}

func (it *gcsIterator) Seek(prefix []byte) {
	target := string(prefix)
	it.idx = len(it.keys)
	if it.reverse {
		for i, key := range it.keys {
			if key <= target {
				it.idx = i
				break
			}
		}
		return
	}
	for i, key := range it.keys {
		if key >= target {
			it.idx = i
			break
		}
	}
}

func (it *gcsIterator) Valid() bool {
	return it.err == nil && it.idx < len(it.keys)
}

func (it *gcsIterator) ValidForPrefix(prefix []byte) bool {
	if !it.Valid() {
		return false
	}
	return strings.HasPrefix(it.keys[it.idx], string(prefix))
}

func (it *gcsIterator) Next() {
	if it.idx < len(it.keys) {
		it.idx++
	}
}

func (it *gcsIterator) Item() types.BlobItem {
	if !it.Valid() {
		return nil
	}
	return &gcsItem{store: it.store, key: it.keys[it.idx], txn: it.txn}
}

func (it *gcsIterator) Err() error {
	return it.err
}

func (it *gcsIterator) Close() {}

type gcsErrorIterator struct {
	err error
}

func (it *gcsErrorIterator) Rewind()                      {}
func (it *gcsErrorIterator) Seek(prefix []byte)           {}
func (it *gcsErrorIterator) Valid() bool                  { return false }
func (it *gcsErrorIterator) ValidForPrefix(p []byte) bool { return false }
func (it *gcsErrorIterator) Next()                        {}
func (it *gcsErrorIterator) Item() types.BlobItem         { return nil }
func (it *gcsErrorIterator) Close()                       {}
func (it *gcsErrorIterator) Err() error                   { return it.err }

type gcsItem struct {
	store *BlobStoreGCS
	key   string
	txn   types.Txn
}

func (i *gcsItem) Key() []byte {
	return []byte(i.key)
}

func (i *gcsItem) ValueCopy(dst []byte) ([]byte, error) {
	data, err := i.store.Get(i.txn, []byte(i.key))
	if err != nil {
		return nil, err
	}
	if dst != nil {
		return append(dst[:0], data...), nil
	}
	return data, nil
}

func (d *BlobStoreGCS) listKeys(
	opts types.BlobIteratorOptions,
) ([]string, error) {
	ctx, cancel := d.opContext()
	defer cancel()
	query := &storage.Query{}
	if len(opts.Prefix) > 0 {
		query.Prefix = string(opts.Prefix)
	}
	objects := d.bucket.Objects(ctx, query)
	keys := make([]string, 0)
	for {
		attrs, err := objects.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, attrs.Name)
	}
	sort.Strings(keys)
	if opts.Reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	return keys, nil
}

// getInternal reads the value at key.
func (d *BlobStoreGCS) getInternal(
	ctx context.Context,
	key string,
) ([]byte, error) {
	r, err := d.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, types.ErrBlobKeyNotFound
		}
		d.logger.Errorf("gcs get %q failed: %v", key, err)
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		d.logger.Errorf("gcs read %q failed: %v", key, err)
		return nil, err
	}
	d.countOp(len(data))
	d.logger.Infof("gcs get %q ok (%d bytes)", key, len(data))
	return data, nil
}

// putInternal writes a value to key.
func (d *BlobStoreGCS) putInternal(
	ctx context.Context,
	key string,
	value []byte,
) error {
	w := d.bucket.Object(key).NewWriter(ctx)
	if _, err := w.Write(value); err != nil {
		_ = w.Close()
		d.logger.Errorf("gcs put %q failed: %v", key, err)
		return err
	}
	if err := w.Close(); err != nil {
		d.logger.Errorf("gcs put close %q failed: %v", key, err)
		return err
	}
	d.countOp(len(value))
	d.logger.Infof("gcs put %q ok (%d bytes)", key, len(value))
	return nil
}

// Start implements the plugin.Plugin interface.
func (d *BlobStoreGCS) Start() error {
	// Validate required fields
	if d.bucketName == "" {
		return errors.New("gcs blob: bucket not set")
	}

	// Validate credentials file if specified
	if d.credentialsFile != "" {
		if err := ValidateCredentials(d.credentialsFile); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	var clientOpts []option.ClientOption
	clientOpts = append(clientOpts, storage.WithDisabledClientMetrics())
	if d.credentialsFile != "" {
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(d.credentialsFile),
		)
	}

	client, err := storage.NewGRPCClient(
		ctx,
		clientOpts...,
	)
	if err != nil {
		cancel()
		return fmt.Errorf(
			"gcs blob: failed in creating storage client: %w",
			err,
		)
	}

	d.client = client
	d.bucket = client.Bucket(d.bucketName)
	d.startupCtx = ctx
	d.startupCancel = cancel

	if err := d.init(); err != nil {
		// Clean up resources on init failure
		d.Close()
		return err
	}
	return nil
}

// Stop implements the plugin.Plugin interface.
func (d *BlobStoreGCS) Stop() error {
	return d.Close()
}

// GetObjectURL returns a signed download URL for the object at key.
func (d *BlobStoreGCS) GetObjectURL(
	ctx context.Context,
	key []byte,
	expiry time.Duration,
) (*url.URL, error) {
	if d.bucket == nil {
		return nil, types.ErrBlobStoreUnavailable
	}
	if expiry <= 0 {
		expiry = time.Minute
	}
	signedURL, err := d.bucket.SignedURL(string(key), &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return nil, fmt.Errorf("gcs: failed to generate signed url: %w", err)
	}
	u, err := url.Parse(signedURL)
	if err != nil {
		return nil, fmt.Errorf("gcs: failed to parse signed url: %w", err)
	}
	return u, nil
}
