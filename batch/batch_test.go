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

package batch

import (
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/blinklabs-io/tally/access"
	"github.com/blinklabs-io/tally/cipher/paillier"
	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdmin = "admin-1"

// Key generation dominates test time, so all tests share one small key
var (
	testSchemeOnce sync.Once
	testScheme     *paillier.Scheme
	testSchemeErr  error
)

func newTestScheme(t *testing.T) *paillier.Scheme {
	t.Helper()
	testSchemeOnce.Do(func() {
		priv, err := paillier.GenerateKey(rand.Reader, 512)
		if err != nil {
			testSchemeErr = err
			return
		}
		testScheme = paillier.NewScheme(&priv.PublicKey)
	})
	require.NoError(t, testSchemeErr, "failed to generate test key")
	return testScheme
}

func newTestRegistry(
	t *testing.T,
) (*Registry, *access.AccessControl, *database.Database) {
	t.Helper()
	db, err := database.New(&database.Config{
		DataDir: "",
	})
	require.NoError(t, err, "failed to create in-memory database")
	t.Cleanup(func() { db.Close() })
	eventBus := event.NewEventBus(nil, nil)
	a := access.New(access.AccessConfig{
		Logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		EventBus:      eventBus,
		PromRegistry:  prometheus.NewRegistry(),
		Database:      db,
		Administrator: testAdmin,
	})
	require.NoError(t, a.Start())
	r := New(RegistryConfig{
		Logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		EventBus:     eventBus,
		PromRegistry: prometheus.NewRegistry(),
		Database:     db,
		Access:       a,
		Scheme:       newTestScheme(t),
	})
	require.NoError(t, r.Start())
	return r, a, db
}

func TestOpenBatch(t *testing.T) {
	r, _, db := newTestRegistry(t)
	_, evtCh := r.eventBus.Subscribe(BatchOpenedEventType)

	batchId, err := r.OpenBatch(testAdmin)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), batchId)

	currentId, open := r.CurrentBatch()
	assert.Equal(t, uint64(1), currentId)
	assert.True(t, open)

	// Aggregates are initialized to well-formed encryptions of zero
	encCount, encSum, err := db.GetAggregates(batchId, nil)
	require.NoError(t, err)
	assert.True(t, r.scheme.IsInitialized(encCount))
	assert.True(t, r.scheme.IsInitialized(encSum))

	select {
	case evt := <-evtCh:
		payload, ok := evt.Data.(BatchOpenedEvent)
		require.True(t, ok)
		assert.Equal(t, uint64(1), payload.BatchId)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for batch opened event")
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.batchesOpened))
}

func TestOpenBatchSingleOpen(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	_, err := r.OpenBatch(testAdmin)
	require.NoError(t, err)

	// A second batch cannot open while one is open
	_, err = r.OpenBatch(testAdmin)
	require.ErrorIs(t, err, access.ErrInvalidParameter)
}

func TestOpenBatchGuards(t *testing.T) {
	r, a, _ := newTestRegistry(t)

	_, err := r.OpenBatch("mallory")
	require.ErrorIs(t, err, access.ErrNotAdministrator)

	require.NoError(t, a.SetPaused(testAdmin, true))
	_, err = r.OpenBatch(testAdmin)
	require.ErrorIs(t, err, access.ErrPaused)
}

func TestCloseBatch(t *testing.T) {
	r, _, db := newTestRegistry(t)
	_, evtCh := r.eventBus.Subscribe(BatchClosedEventType)

	batchId, err := r.OpenBatch(testAdmin)
	require.NoError(t, err)

	require.NoError(t, r.CloseBatch(testAdmin, batchId))
	currentId, open := r.CurrentBatch()
	assert.Equal(t, batchId, currentId)
	assert.False(t, open)

	stored, err := db.GetBatch(batchId, nil)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Open)
	require.NotNil(t, stored.ClosedAt)

	select {
	case evt := <-evtCh:
		payload, ok := evt.Data.(BatchClosedEvent)
		require.True(t, ok)
		assert.Equal(t, batchId, payload.BatchId)
		assert.Equal(t, uint64(0), payload.Submissions)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for batch closed event")
	}

	// Closing is permanent
	err = r.CloseBatch(testAdmin, batchId)
	require.ErrorIs(t, err, ErrBatchClosed)
}

func TestCloseBatchOnlyCurrentAddressable(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	// No batch exists yet
	err := r.CloseBatch(testAdmin, 1)
	require.ErrorIs(t, err, access.ErrInvalidParameter)

	batch1, err := r.OpenBatch(testAdmin)
	require.NoError(t, err)
	require.NoError(t, r.CloseBatch(testAdmin, batch1))
	batch2, err := r.OpenBatch(testAdmin)
	require.NoError(t, err)

	// Neither a past batch nor a future one is addressable
	err = r.CloseBatch(testAdmin, batch1)
	require.ErrorIs(t, err, access.ErrInvalidParameter)
	err = r.CloseBatch(testAdmin, batch2+1)
	require.ErrorIs(t, err, access.ErrInvalidParameter)
}

func TestCloseBatchGuards(t *testing.T) {
	r, a, _ := newTestRegistry(t)

	batchId, err := r.OpenBatch(testAdmin)
	require.NoError(t, err)

	err = r.CloseBatch("mallory", batchId)
	require.ErrorIs(t, err, access.ErrNotAdministrator)

	require.NoError(t, a.SetPaused(testAdmin, true))
	err = r.CloseBatch(testAdmin, batchId)
	require.ErrorIs(t, err, access.ErrPaused)
}

func TestBatchIdsSequential(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	for want := uint64(1); want <= 3; want++ {
		batchId, err := r.OpenBatch(testAdmin)
		require.NoError(t, err)
		assert.Equal(t, want, batchId)
		require.NoError(t, r.CloseBatch(testAdmin, batchId))
	}

	// Closed batches remain queryable forever
	batches, err := r.Batches(0, 0)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	count, err := r.BatchCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestBatchRecovery(t *testing.T) {
	r, a, db := newTestRegistry(t)

	batch1, err := r.OpenBatch(testAdmin)
	require.NoError(t, err)
	require.NoError(t, r.CloseBatch(testAdmin, batch1))
	batch2, err := r.OpenBatch(testAdmin)
	require.NoError(t, err)

	// A new registry over the same database picks up the open batch
	restarted := New(RegistryConfig{
		Logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		EventBus:     event.NewEventBus(nil, nil),
		PromRegistry: prometheus.NewRegistry(),
		Database:     db,
		Access:       a,
		Scheme:       newTestScheme(t),
	})
	require.NoError(t, restarted.Start())
	currentId, open := restarted.CurrentBatch()
	assert.Equal(t, batch2, currentId)
	assert.True(t, open)

	// Identifier assignment continues after the recovered batch
	require.NoError(t, restarted.CloseBatch(testAdmin, batch2))
	batch3, err := restarted.OpenBatch(testAdmin)
	require.NoError(t, err)
	assert.Equal(t, batch2+1, batch3)
}
