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

// Package decryption coordinates the asynchronous round trip with the
// external decryption oracle. A request snapshots a fingerprint of the
// closed batch's aggregates; the callback that later delivers the
// cleartexts is accepted only if the request is unprocessed (replay), the
// fingerprint still matches the current aggregates (freshness), and the
// attached proof verifies (authenticity). Request records are never
// deleted, and a request without a callback never expires.
package decryption

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/access"
	"github.com/blinklabs-io/tally/batch"
	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/types"
	"github.com/blinklabs-io/tally/event"
	"github.com/blinklabs-io/tally/oracle"
	"github.com/blinklabs-io/tally/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ErrReplayDetected   = errors.New("decryption callback replayed")
	ErrStateMismatch    = errors.New("batch state changed since request")
	ErrDecryptionFailed = errors.New("decryption proof rejected")
)

type ClientConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Database     *database.Database
	Access       *access.AccessControl
	RateLimiter  *ratelimit.RateLimiter
	Oracle       oracle.Oracle
	// CoordinatorIdentity is folded into every state fingerprint so a
	// callback produced for one coordinator cannot finalize a request on
	// another that happens to hold identical aggregates.
	CoordinatorIdentity string
}

type Client struct {
	config  ClientConfig
	metrics struct {
		requests    prometheus.Counter
		completions prometheus.Counter
		failures    *prometheus.CounterVec
	}
	logger   *slog.Logger
	eventBus *event.EventBus
	db       *database.Database
	access   *access.AccessControl
	limiter  *ratelimit.RateLimiter
	oracle   oracle.Oracle
	mu       sync.Mutex
}

func New(config ClientConfig) *Client {
	c := &Client{
		config:   config,
		eventBus: config.EventBus,
		db:       config.Database,
		access:   config.Access,
		limiter:  config.RateLimiter,
		oracle:   config.Oracle,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		c.logger = config.Logger
	}
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	c.metrics.requests = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "tally_decryption_requests_total",
		Help: "total decryption requests submitted to the oracle",
	})
	c.metrics.completions = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "tally_decryption_completions_total",
			Help: "total decryption callbacks accepted",
		},
	)
	c.metrics.failures = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_decryption_failures_total",
			Help: "total decryption callbacks rejected",
		},
		[]string{"reason"},
	)
	return c
}

// Start surfaces requests still waiting on a callback after a restart.
// There is no expiry: a request whose callback never arrives stays
// outstanding forever and blocks further requests for its batch.
func (c *Client) Start() error {
	outstanding, err := c.db.GetUnprocessedDecryptionRequests(nil)
	if err != nil {
		return err
	}
	for _, request := range outstanding {
		c.logger.Info(
			"outstanding decryption request awaiting callback",
			"component", "decryption",
			"request_id", request.RequestId,
			"batch_id", request.BatchId,
			"requested_at", request.RequestedAt,
		)
	}
	return nil
}

// RequestBatchSummaryDecryption submits a closed batch's aggregates to the
// oracle for decryption and returns the oracle-assigned request id. The
// ciphertexts are submitted count first, then sum; the callback must
// deliver cleartexts in the same order. At most one unprocessed request may
// be outstanding per batch.
func (c *Client) RequestBatchSummaryDecryption(
	ctx context.Context,
	caller string,
	batchId uint64,
) (string, error) {
	if err := c.access.RequireAdministrator(caller); err != nil {
		return "", err
	}
	if err := c.access.RequireActive(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	txn := c.db.Transaction(true)
	defer txn.Release()
	if err := c.limiter.CheckAndUpdate(
		caller,
		ratelimit.ActionRequestDecryption,
		now,
		txn,
	); err != nil {
		return "", err
	}
	b, err := c.db.GetBatch(batchId, txn)
	if err != nil {
		return "", err
	}
	if b == nil {
		return "", access.ErrInvalidParameter
	}
	if b.Open {
		return "", batch.ErrBatchNotClosed
	}
	// One unprocessed request per batch. Additional requests after a
	// processed one remain possible.
	requests, err := c.db.GetDecryptionRequestsByBatch(batchId, txn)
	if err != nil {
		return "", err
	}
	for _, request := range requests {
		if !request.Processed {
			return "", access.ErrInvalidParameter
		}
	}
	encCount, encSum, err := c.db.GetAggregates(batchId, txn)
	if err != nil {
		return "", err
	}
	fingerprint := c.fingerprint(encCount, encSum)
	requestId, err := c.oracle.RequestDecryption(
		ctx,
		[]cipher.Ciphertext{encCount, encSum},
	)
	if err != nil {
		return "", fmt.Errorf("oracle request: %w", err)
	}
	if err := c.db.SetDecryptionRequest(
		&models.DecryptionRequest{
			RequestId:   requestId,
			BatchId:     batchId,
			Fingerprint: fingerprint,
			Processed:   false,
			RequestedAt: now,
		},
		txn,
	); err != nil {
		return "", err
	}
	if err := txn.Commit(); err != nil {
		return "", err
	}
	c.metrics.requests.Inc()
	c.logger.Info(
		"decryption requested",
		"component", "decryption",
		"request_id", requestId,
		"batch_id", batchId,
	)
	c.eventBus.Publish(
		DecryptionRequestedEventType,
		event.NewEvent(
			DecryptionRequestedEventType,
			DecryptionRequestedEvent{
				RequestId: requestId,
				BatchId:   batchId,
			},
		),
	)
	return requestId, nil
}

// OnDecryptionCallback finalizes a decryption request with the cleartexts
// delivered by the oracle. The checks run in strict order: unknown request,
// replay, state fingerprint, proof, cleartext arity. Only when all pass is
// the request marked processed and the summary persisted. Any rejection
// leaves the request open to a later, valid delivery.
func (c *Client) OnDecryptionCallback(
	ctx context.Context,
	requestId string,
	cleartexts []uint64,
	proof []byte,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	txn := c.db.Transaction(true)
	defer txn.Release()
	request, err := c.db.GetDecryptionRequest(requestId, txn)
	if err != nil {
		return err
	}
	if request == nil {
		c.metrics.failures.WithLabelValues("unknown_request").Inc()
		return access.ErrInvalidParameter
	}
	if request.Processed {
		c.metrics.failures.WithLabelValues("replay").Inc()
		c.logger.Warn(
			"replayed decryption callback",
			"component", "decryption",
			"request_id", requestId,
			"batch_id", request.BatchId,
		)
		return ErrReplayDetected
	}
	encCount, encSum, err := c.db.GetAggregates(request.BatchId, txn)
	if err != nil {
		return err
	}
	if !bytes.Equal(c.fingerprint(encCount, encSum), request.Fingerprint) {
		c.metrics.failures.WithLabelValues("state_mismatch").Inc()
		c.logger.Warn(
			"decryption callback for stale batch state",
			"component", "decryption",
			"request_id", requestId,
			"batch_id", request.BatchId,
		)
		return ErrStateMismatch
	}
	// Fail closed: a verification error is indistinguishable from an
	// invalid proof
	ok, err := c.oracle.VerifyProof(ctx, requestId, cleartexts, proof)
	if err != nil {
		c.metrics.failures.WithLabelValues("proof_rejected").Inc()
		return fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	if !ok {
		c.metrics.failures.WithLabelValues("proof_rejected").Inc()
		return ErrDecryptionFailed
	}
	// Cleartexts arrive in submission order: count, then sum
	if len(cleartexts) != 2 {
		c.metrics.failures.WithLabelValues("bad_arity").Inc()
		return access.ErrInvalidParameter
	}
	count, sum := cleartexts[0], cleartexts[1]
	completedAt := time.Now()
	request.Processed = true
	request.Count = types.Uint64(count)
	request.Sum = types.Uint64(sum)
	request.CompletedAt = &completedAt
	if err := c.db.SetDecryptionRequest(request, txn); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	c.metrics.completions.Inc()
	c.logger.Info(
		"decryption completed",
		"component", "decryption",
		"request_id", requestId,
		"batch_id", request.BatchId,
		"count", count,
		"sum", sum,
	)
	c.eventBus.Publish(
		DecryptionCompletedEventType,
		event.NewEvent(
			DecryptionCompletedEventType,
			DecryptionCompletedEvent{
				RequestId: requestId,
				BatchId:   request.BatchId,
				Count:     count,
				Sum:       sum,
			},
		),
	)
	return nil
}

// Request returns a decryption request record by its oracle request id, or
// nil if the id is unknown
func (c *Client) Request(
	requestId string,
) (*models.DecryptionRequest, error) {
	return c.db.GetDecryptionRequest(requestId, nil)
}

// RequestsByBatch returns all decryption requests for a batch in request
// order
func (c *Client) RequestsByBatch(
	batchId uint64,
) ([]models.DecryptionRequest, error) {
	return c.db.GetDecryptionRequestsByBatch(batchId, nil)
}

// fingerprint binds the aggregates and the coordinator identity into the
// digest compared on callback delivery
func (c *Client) fingerprint(
	encCount cipher.Ciphertext,
	encSum cipher.Ciphertext,
) []byte {
	h := sha256.New()
	h.Write(encCount)
	h.Write(encSum)
	h.Write([]byte(c.config.CoordinatorIdentity))
	return h.Sum(nil)
}
