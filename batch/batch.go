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

// Package batch manages the lifecycle of collection batches. Batch
// identifiers are assigned sequentially starting at 1, at most one batch is
// open at a time, and closing is permanent. Opening a batch initializes its
// encrypted aggregates to encryptions of zero so that submissions can fold
// into them without a special first-submission path.
package batch

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/access"
	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrBatchClosed    = errors.New("batch is closed")
	ErrBatchNotClosed = errors.New("batch is not closed")
)

type RegistryConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Database     *database.Database
	Access       *access.AccessControl
	Scheme       cipher.Scheme
}

type Registry struct {
	config  RegistryConfig
	metrics struct {
		batchesOpened prometheus.Counter
		batchesClosed prometheus.Counter
		currentBatch  prometheus.Gauge
	}
	logger         *slog.Logger
	eventBus       *event.EventBus
	db             *database.Database
	access         *access.AccessControl
	scheme         cipher.Scheme
	mu             sync.RWMutex
	currentBatchId uint64
	currentOpen    bool
}

func New(config RegistryConfig) *Registry {
	r := &Registry{
		config:   config,
		eventBus: config.EventBus,
		db:       config.Database,
		access:   config.Access,
		scheme:   config.Scheme,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		r.logger = config.Logger
	}
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	r.metrics.batchesOpened = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_batch_opened_total",
			Help: "total batches opened",
		},
	)
	r.metrics.batchesClosed = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_batch_closed_total",
			Help: "total batches closed",
		},
	)
	r.metrics.currentBatch = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "tally_batch_current",
		Help: "identifier of the most recently opened batch",
	})
	return r
}

// Start recovers the most recent batch from the metadata store so that
// identifier assignment continues where it left off after a restart
func (r *Registry) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, err := r.db.GetCurrentBatch(nil)
	if err != nil {
		return err
	}
	if current != nil {
		r.currentBatchId = current.BatchId
		r.currentOpen = current.Open
		r.metrics.currentBatch.Set(float64(current.BatchId))
		r.logger.Info(
			"recovered current batch",
			"component", "batch",
			"batch_id", current.BatchId,
			"open", current.Open,
		)
	}
	return nil
}

// OpenBatch opens a new batch and returns its identifier. Only one batch may
// be open at a time: opening while another batch is open fails with
// ErrInvalidParameter. The new batch's aggregates are initialized to
// encryptions of zero.
func (r *Registry) OpenBatch(caller string) (uint64, error) {
	if err := r.access.RequireAdministrator(caller); err != nil {
		return 0, err
	}
	if err := r.access.RequireActive(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentOpen {
		return 0, access.ErrInvalidParameter
	}
	batchId := r.currentBatchId + 1
	zeroCount, err := r.scheme.Zero()
	if err != nil {
		return 0, err
	}
	zeroSum, err := r.scheme.Zero()
	if err != nil {
		return 0, err
	}
	txn := r.db.Transaction(true)
	defer txn.Release()
	if err := r.db.SetBatch(
		&models.Batch{
			BatchId:  batchId,
			Open:     true,
			OpenedAt: time.Now(),
		},
		txn,
	); err != nil {
		return 0, err
	}
	if err := r.db.SetAggregates(batchId, zeroCount, zeroSum, txn); err != nil {
		return 0, err
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	r.currentBatchId = batchId
	r.currentOpen = true
	r.metrics.batchesOpened.Inc()
	r.metrics.currentBatch.Set(float64(batchId))
	r.logger.Info(
		"batch opened",
		"component", "batch",
		"batch_id", batchId,
	)
	r.eventBus.Publish(
		BatchOpenedEventType,
		event.NewEvent(
			BatchOpenedEventType,
			BatchOpenedEvent{
				BatchId: batchId,
			},
		),
	)
	return batchId, nil
}

// CloseBatch permanently closes a batch. Only the current batch is
// addressable: any other identifier fails with ErrInvalidParameter, and
// closing an already-closed batch fails with ErrBatchClosed. There is no
// reopen.
func (r *Registry) CloseBatch(caller string, batchId uint64) error {
	if err := r.access.RequireAdministrator(caller); err != nil {
		return err
	}
	if err := r.access.RequireActive(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentBatchId == 0 || batchId != r.currentBatchId {
		return access.ErrInvalidParameter
	}
	if !r.currentOpen {
		return ErrBatchClosed
	}
	txn := r.db.Transaction(true)
	defer txn.Release()
	batch, err := r.db.GetBatch(batchId, txn)
	if err != nil {
		return err
	}
	if batch == nil {
		return access.ErrInvalidParameter
	}
	closedAt := time.Now()
	batch.Open = false
	batch.ClosedAt = &closedAt
	if err := r.db.SetBatch(batch, txn); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	r.currentOpen = false
	r.metrics.batchesClosed.Inc()
	r.logger.Info(
		"batch closed",
		"component", "batch",
		"batch_id", batchId,
		"submissions", batch.Submissions,
	)
	r.eventBus.Publish(
		BatchClosedEventType,
		event.NewEvent(
			BatchClosedEventType,
			BatchClosedEvent{
				BatchId:     batchId,
				Submissions: batch.Submissions,
			},
		),
	)
	return nil
}

// CurrentBatch returns the identifier of the most recently opened batch and
// whether it is still open. The identifier is zero when no batch has ever
// been opened.
func (r *Registry) CurrentBatch() (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentBatchId, r.currentOpen
}

// Batch returns a batch record by identifier, or nil if it does not exist
func (r *Registry) Batch(batchId uint64) (*models.Batch, error) {
	return r.db.GetBatch(batchId, nil)
}

// Batches returns batch records ordered by identifier. A zero limit returns
// all batches.
func (r *Registry) Batches(limit, offset int) ([]models.Batch, error) {
	return r.db.GetBatches(limit, offset, nil)
}

// BatchCount returns the total number of batches ever opened
func (r *Registry) BatchCount() (uint64, error) {
	return r.db.GetBatchCount(nil)
}
