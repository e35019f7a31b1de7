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
	"errors"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/blinklabs-io/tally/database/plugin/blob"
	badgerplugin "github.com/blinklabs-io/tally/database/plugin/blob/badger"
	"github.com/blinklabs-io/tally/database/plugin/metadata"
	"github.com/blinklabs-io/tally/database/plugin/metadata/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultBlobPlugin is used when no blob plugin is named
	DefaultBlobPlugin = "badger"
	// DefaultMetadataPlugin is used when no metadata plugin is named
	DefaultMetadataPlugin = "sqlite"
)

// Config contains the configuration for the database
type Config struct {
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
	DataDir        string
	BlobPlugin     string
	MetadataPlugin string
	BlobCacheSize  int64
}

// Database is a combined store for the coordinator: relational state in the
// metadata store and encrypted aggregates in the blob store
type Database struct {
	logger       *slog.Logger
	blob         blob.BlobStore
	metadata     metadata.MetadataStore
	promRegistry prometheus.Registerer
	dataDir      string
}

// Blob returns the underling blob store instance
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Transaction starts a new database transaction spanning both stores and
// returns a handle to it
func (d *Database) Transaction(readWrite bool) *Txn {
	return NewTxn(d, readWrite)
}

// BlobTxn starts a new blob-only database transaction and returns a handle
// to it
func (d *Database) BlobTxn(readWrite bool) *Txn {
	return NewBlobOnlyTxn(d, readWrite)
}

// MetadataTxn starts a new metadata-only database transaction and returns a
// handle to it
func (d *Database) MetadataTxn(readWrite bool) *Txn {
	return NewMetadataOnlyTxn(d, readWrite)
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	// Close metadata
	metadataErr := d.Metadata().Close()
	err = errors.Join(err, metadataErr)
	// Close blob
	blobErr := d.Blob().Close()
	err = errors.Join(err, blobErr)
	return err
}

func (d *Database) init() error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Check commit timestamp
	if err := d.checkCommitTimestamp(); err != nil {
		return err
	}
	return nil
}

// New creates a new database instance from the provided config. The bundled
// local plugins are constructed directly so the configured data directory,
// logger, and metrics registry apply; other plugins are started through the
// plugin registry and configure themselves from their own options.
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	metadataPlugin := config.MetadataPlugin
	if metadataPlugin == "" {
		metadataPlugin = DefaultMetadataPlugin
	}
	blobPlugin := config.BlobPlugin
	if blobPlugin == "" {
		blobPlugin = DefaultBlobPlugin
	}
	var metadataDb metadata.MetadataStore
	var err error
	if metadataPlugin == "sqlite" {
		metadataDb, err = sqlite.New(
			config.DataDir,
			config.Logger,
			config.PromRegistry,
		)
	} else {
		metadataDb, err = metadata.New(metadataPlugin)
	}
	if err != nil {
		return nil, err
	}
	var blobDb blob.BlobStore
	if blobPlugin == "badger" {
		blobDataDir := config.DataDir
		if blobDataDir != "" {
			blobDataDir = filepath.Join(blobDataDir, "blob")
		}
		opts := []badgerplugin.BlobStoreBadgerOptionFunc{
			badgerplugin.WithDataDir(blobDataDir),
			badgerplugin.WithLogger(config.Logger),
			badgerplugin.WithPromRegistry(config.PromRegistry),
		}
		if config.BlobCacheSize > 0 {
			opts = append(
				opts,
				badgerplugin.WithBlockCacheSize(uint64(config.BlobCacheSize)),
			)
		}
		blobDb, err = badgerplugin.New(opts...)
	} else {
		blobDb, err = blob.New(blobPlugin)
	}
	if err != nil {
		return nil, err
	}
	db := &Database{
		logger:       config.Logger,
		blob:         blobDb,
		metadata:     metadataDb,
		promRegistry: config.PromRegistry,
		dataDir:      config.DataDir,
	}
	if err := db.init(); err != nil {
		// Database is available for recovery, so return it with error
		return db, err
	}
	return db, nil
}
