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

// Package aggregator folds encrypted responses into the open batch's
// running aggregates. The coordinator never decrypts: each accepted
// ciphertext is combined homomorphically into the encrypted sum, and an
// encryption of one is combined into the encrypted count. All checks run
// before any mutation inside a single transaction, so a rejected submission
// leaves the batch byte-identical and consumes no rate-limit budget.
package aggregator

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/tally/access"
	"github.com/blinklabs-io/tally/batch"
	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/event"
	"github.com/blinklabs-io/tally/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ErrNotInitialized = errors.New("ciphertext is not initialized")

type AggregatorConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Database     *database.Database
	Access       *access.AccessControl
	RateLimiter  *ratelimit.RateLimiter
	Scheme       cipher.Scheme
}

type Aggregator struct {
	config  AggregatorConfig
	metrics struct {
		submissionsAccepted   prometheus.Counter
		submissionsRejected   *prometheus.CounterVec
		ciphertextsAggregated prometheus.Counter
	}
	logger   *slog.Logger
	eventBus *event.EventBus
	db       *database.Database
	access   *access.AccessControl
	limiter  *ratelimit.RateLimiter
	scheme   cipher.Scheme
}

func New(config AggregatorConfig) *Aggregator {
	a := &Aggregator{
		config:   config,
		eventBus: config.EventBus,
		db:       config.Database,
		access:   config.Access,
		limiter:  config.RateLimiter,
		scheme:   config.Scheme,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		a.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		a.logger = config.Logger
	}
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	a.metrics.submissionsAccepted = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_aggregator_submissions_accepted_total",
			Help: "total accepted submissions",
		},
	)
	a.metrics.submissionsRejected = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_aggregator_submissions_rejected_total",
			Help: "total rejected submissions",
		},
		[]string{"reason"},
	)
	a.metrics.ciphertextsAggregated = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_aggregator_ciphertexts_total",
			Help: "total ciphertexts folded into batch aggregates",
		},
	)
	return a
}

// SubmitEncryptedResponses folds a submitter's encrypted responses into the
// addressed batch. The batch must exist and be open (BatchClosed otherwise),
// and every ciphertext must be well-formed (NotInitialized rejects the whole
// submission). The count aggregate grows by one encryption of one per
// accepted ciphertext.
func (a *Aggregator) SubmitEncryptedResponses(
	caller string,
	batchId uint64,
	ciphertexts []cipher.Ciphertext,
) error {
	if err := a.access.RequireSubmitter(caller); err != nil {
		a.metrics.submissionsRejected.WithLabelValues("not_submitter").Inc()
		return err
	}
	if err := a.access.RequireActive(); err != nil {
		a.metrics.submissionsRejected.WithLabelValues("paused").Inc()
		return err
	}
	if len(ciphertexts) == 0 {
		a.metrics.submissionsRejected.WithLabelValues("empty").Inc()
		return access.ErrInvalidParameter
	}
	now := time.Now()
	// All checks and writes share one transaction. Release rolls back on
	// any failure below, so a rejected submission also leaves no recorded
	// rate-limit use.
	txn := a.db.Transaction(true)
	defer txn.Release()
	if err := a.limiter.CheckAndUpdate(
		caller,
		ratelimit.ActionSubmitResponse,
		now,
		txn,
	); err != nil {
		var cooldownErr *ratelimit.CooldownActiveError
		if errors.As(err, &cooldownErr) {
			a.metrics.submissionsRejected.WithLabelValues("cooldown").Inc()
		}
		return err
	}
	b, err := a.db.GetBatch(batchId, txn)
	if err != nil {
		return err
	}
	if b == nil || !b.Open {
		a.metrics.submissionsRejected.WithLabelValues("batch_closed").Inc()
		return batch.ErrBatchClosed
	}
	// Validate every ciphertext before touching the aggregates
	for _, ct := range ciphertexts {
		if !a.scheme.IsInitialized(ct) {
			a.metrics.submissionsRejected.WithLabelValues("not_initialized").
				Inc()
			return ErrNotInitialized
		}
	}
	encCount, encSum, err := a.db.GetAggregates(batchId, txn)
	if err != nil {
		return err
	}
	encOne, err := a.scheme.Encrypt(1)
	if err != nil {
		return err
	}
	for _, ct := range ciphertexts {
		if encSum, err = a.scheme.Add(encSum, ct); err != nil {
			return err
		}
		if encCount, err = a.scheme.Add(encCount, encOne); err != nil {
			return err
		}
	}
	b.Submissions += uint64(len(ciphertexts))
	if err := a.db.SetBatch(b, txn); err != nil {
		return err
	}
	if err := a.db.SetAggregates(batchId, encCount, encSum, txn); err != nil {
		return err
	}
	if err := a.db.AddSubmission(
		&models.Submission{
			BatchId:    batchId,
			Submitter:  caller,
			Count:      uint64(len(ciphertexts)),
			ReceivedAt: now,
		},
		txn,
	); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	a.metrics.submissionsAccepted.Inc()
	a.metrics.ciphertextsAggregated.Add(float64(len(ciphertexts)))
	a.logger.Info(
		"responses submitted",
		"component", "aggregator",
		"submitter", caller,
		"batch_id", batchId,
		"count", len(ciphertexts),
	)
	a.eventBus.Publish(
		ResponsesSubmittedEventType,
		event.NewEvent(
			ResponsesSubmittedEventType,
			ResponsesSubmittedEvent{
				Submitter: caller,
				BatchId:   batchId,
				Count:     uint64(len(ciphertexts)),
			},
		),
	)
	return nil
}

// Aggregates returns the current encrypted aggregates for a batch
func (a *Aggregator) Aggregates(
	batchId uint64,
) (cipher.Ciphertext, cipher.Ciphertext, error) {
	return a.db.GetAggregates(batchId, nil)
}
