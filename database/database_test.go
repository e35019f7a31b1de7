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

package database_test

import (
	"testing"
	"time"

	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type TestTable struct {
	gorm.Model
}

var dbConfig = &database.Config{
	BlobCacheSize: 1 << 20,
	Logger:        nil,
	PromRegistry:  nil,
	DataDir:       "",
}

func TestAccessStateRoundTrip(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	// No access state until one is stored
	state, err := db.GetAccessState(nil)
	require.NoError(t, err)
	assert.Nil(t, state)

	err = db.SetAccessState(&models.AccessState{
		Administrator: "admin-1",
		Paused:        false,
	}, nil)
	require.NoError(t, err)

	state, err = db.GetAccessState(nil)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "admin-1", state.Administrator)
	assert.False(t, state.Paused)

	// Updating replaces the single row rather than adding another
	err = db.SetAccessState(&models.AccessState{
		Administrator: "admin-2",
		Paused:        true,
	}, nil)
	require.NoError(t, err)

	state, err = db.GetAccessState(nil)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "admin-2", state.Administrator)
	assert.True(t, state.Paused)

	var states []models.AccessState
	err = db.Metadata().DB().Find(&states).Error
	require.NoError(t, err)
	assert.Len(t, states, 1, "access state should be a single row")
}

func TestSubmitters(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	// Unknown identity
	submitter, err := db.GetSubmitter("alice", nil)
	require.NoError(t, err)
	assert.Nil(t, submitter)

	err = db.SetSubmitter("alice", true, nil)
	require.NoError(t, err)
	err = db.SetSubmitter("bob", true, nil)
	require.NoError(t, err)

	submitter, err = db.GetSubmitter("alice", nil)
	require.NoError(t, err)
	require.NotNil(t, submitter)
	assert.True(t, submitter.Active)

	// Revoking clears the flag but keeps the row
	err = db.SetSubmitter("alice", false, nil)
	require.NoError(t, err)

	active, err := db.GetSubmitters(false, nil)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "bob", active[0].Identity)

	all, err := db.GetSubmitters(true, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].Identity)
	assert.False(t, all[0].Active)
	assert.Equal(t, "bob", all[1].Identity)
	assert.True(t, all[1].Active)
}

func TestCooldownAndActionUse(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	cooldown, err := db.GetCooldown(nil)
	require.NoError(t, err)
	assert.Nil(t, cooldown)

	err = db.SetCooldown(300, nil)
	require.NoError(t, err)
	cooldown, err = db.GetCooldown(nil)
	require.NoError(t, err)
	require.NotNil(t, cooldown)
	assert.Equal(t, uint64(300), cooldown.Seconds)

	// Update replaces the single row
	err = db.SetCooldown(60, nil)
	require.NoError(t, err)
	cooldown, err = db.GetCooldown(nil)
	require.NoError(t, err)
	require.NotNil(t, cooldown)
	assert.Equal(t, uint64(60), cooldown.Seconds)

	use, err := db.GetActionUse("submit_response", "alice", nil)
	require.NoError(t, err)
	assert.Nil(t, use)

	err = db.SetActionUse("submit_response", "alice", 1000, nil)
	require.NoError(t, err)
	use, err = db.GetActionUse("submit_response", "alice", nil)
	require.NoError(t, err)
	require.NotNil(t, use)
	assert.Equal(t, int64(1000), use.LastUse)

	// Action kinds are tracked independently for the same identity
	use, err = db.GetActionUse("request_decryption", "alice", nil)
	require.NoError(t, err)
	assert.Nil(t, use)

	// Updating an existing pair keeps a single row
	err = db.SetActionUse("submit_response", "alice", 2000, nil)
	require.NoError(t, err)
	use, err = db.GetActionUse("submit_response", "alice", nil)
	require.NoError(t, err)
	require.NotNil(t, use)
	assert.Equal(t, int64(2000), use.LastUse)

	var uses []models.ActionUse
	err = db.Metadata().DB().
		Where("identity = ?", "alice").
		Find(&uses).
		Error
	require.NoError(t, err)
	assert.Len(t, uses, 1)
}

func TestBatchLifecycle(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	current, err := db.GetCurrentBatch(nil)
	require.NoError(t, err)
	assert.Nil(t, current)

	openedAt := time.Now()
	err = db.SetBatch(&models.Batch{
		BatchId:  1,
		Open:     true,
		OpenedAt: openedAt,
	}, nil)
	require.NoError(t, err)

	current, err = db.GetCurrentBatch(nil)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, uint64(1), current.BatchId)
	assert.True(t, current.Open)
	assert.WithinDuration(t, openedAt, current.OpenedAt, time.Second)

	count, err := db.GetBatchCount(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	// Close the batch
	closedAt := time.Now()
	current.Open = false
	current.ClosedAt = &closedAt
	err = db.SetBatch(current, nil)
	require.NoError(t, err)

	batch, err := db.GetBatch(1, nil)
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.False(t, batch.Open)
	require.NotNil(t, batch.ClosedAt)

	// A later batch becomes the current one
	err = db.SetBatch(&models.Batch{
		BatchId:  2,
		Open:     true,
		OpenedAt: time.Now(),
	}, nil)
	require.NoError(t, err)

	current, err = db.GetCurrentBatch(nil)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, uint64(2), current.BatchId)

	batches, err := db.GetBatches(0, 0, nil)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, uint64(1), batches[0].BatchId)
	assert.Equal(t, uint64(2), batches[1].BatchId)

	// Pagination
	batches, err = db.GetBatches(1, 1, nil)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, uint64(2), batches[0].BatchId)
}

func TestSubmissions(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	err = db.AddSubmission(&models.Submission{
		BatchId:    1,
		Submitter:  "alice",
		Count:      2,
		ReceivedAt: time.Now(),
	}, nil)
	require.NoError(t, err)
	err = db.AddSubmission(&models.Submission{
		BatchId:    1,
		Submitter:  "bob",
		Count:      1,
		ReceivedAt: time.Now(),
	}, nil)
	require.NoError(t, err)
	err = db.AddSubmission(&models.Submission{
		BatchId:    2,
		Submitter:  "alice",
		Count:      3,
		ReceivedAt: time.Now(),
	}, nil)
	require.NoError(t, err)

	submissions, err := db.GetSubmissions(1, nil)
	require.NoError(t, err)
	require.Len(t, submissions, 2)
	assert.Equal(t, "alice", submissions[0].Submitter)
	assert.Equal(t, uint64(2), submissions[0].Count)
	assert.Equal(t, "bob", submissions[1].Submitter)
}

func TestDecryptionRequests(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	request, err := db.GetDecryptionRequest("req-1", nil)
	require.NoError(t, err)
	assert.Nil(t, request)

	fingerprint := make([]byte, 32)
	fingerprint[0] = 0xAB
	err = db.SetDecryptionRequest(&models.DecryptionRequest{
		RequestId:   "req-1",
		BatchId:     1,
		Fingerprint: fingerprint,
		Processed:   false,
		RequestedAt: time.Now(),
	}, nil)
	require.NoError(t, err)

	request, err = db.GetDecryptionRequest("req-1", nil)
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.Equal(t, uint64(1), request.BatchId)
	assert.Equal(t, fingerprint, request.Fingerprint)
	assert.False(t, request.Processed)

	unprocessed, err := db.GetUnprocessedDecryptionRequests(nil)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, "req-1", unprocessed[0].RequestId)

	// Mark processed with the decrypted results
	completedAt := time.Now()
	request.Processed = true
	request.Count = 3
	request.Sum = 15
	request.CompletedAt = &completedAt
	err = db.SetDecryptionRequest(request, nil)
	require.NoError(t, err)

	request, err = db.GetDecryptionRequest("req-1", nil)
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.True(t, request.Processed)
	assert.Equal(t, uint64(3), uint64(request.Count))
	assert.Equal(t, uint64(15), uint64(request.Sum))
	require.NotNil(t, request.CompletedAt)

	unprocessed, err = db.GetUnprocessedDecryptionRequests(nil)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)

	byBatch, err := db.GetDecryptionRequestsByBatch(1, nil)
	require.NoError(t, err)
	require.Len(t, byBatch, 1)
	assert.Equal(t, "req-1", byBatch[0].RequestId)
}

func TestAggregates(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	// The database layer treats ciphertexts as opaque bytes
	encCount := cipher.Ciphertext("enc-count-1")
	encSum := cipher.Ciphertext("enc-sum-1")

	_, _, err = db.GetAggregates(1, nil)
	require.ErrorIs(t, err, database.ErrAggregatesNotFound)

	err = db.SetAggregates(1, encCount, encSum, nil)
	require.NoError(t, err)

	gotCount, gotSum, err := db.GetAggregates(1, nil)
	require.NoError(t, err)
	assert.Equal(t, encCount, gotCount)
	assert.Equal(t, encSum, gotSum)

	// Overwrite in place
	encCount2 := cipher.Ciphertext("enc-count-2")
	err = db.SetAggregates(1, encCount2, encSum, nil)
	require.NoError(t, err)
	gotCount, _, err = db.GetAggregates(1, nil)
	require.NoError(t, err)
	assert.Equal(t, encCount2, gotCount)

	// Aggregates are keyed per batch
	_, _, err = db.GetAggregates(2, nil)
	require.ErrorIs(t, err, database.ErrAggregatesNotFound)
}

func TestTransactionRollback(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	txn := db.Transaction(true)
	err = db.SetAccessState(&models.AccessState{
		Administrator: "admin-1",
	}, txn)
	require.NoError(t, err)
	err = db.SetAggregates(
		1,
		cipher.Ciphertext("enc-count"),
		cipher.Ciphertext("enc-sum"),
		txn,
	)
	require.NoError(t, err)
	require.NoError(t, txn.Rollback())

	// Neither store should have the writes
	state, err := db.GetAccessState(nil)
	require.NoError(t, err)
	assert.Nil(t, state)
	_, _, err = db.GetAggregates(1, nil)
	require.ErrorIs(t, err, database.ErrAggregatesNotFound)
}

func TestTransactionCommitBothStores(t *testing.T) {
	db, err := database.New(dbConfig)
	require.NoError(t, err)
	defer db.Close()

	txn := db.Transaction(true)
	err = txn.Do(func(txn *database.Txn) error {
		if err := db.SetBatch(&models.Batch{
			BatchId:  1,
			Open:     true,
			OpenedAt: time.Now(),
		}, txn); err != nil {
			return err
		}
		return db.SetAggregates(
			1,
			cipher.Ciphertext("enc-count"),
			cipher.Ciphertext("enc-sum"),
			txn,
		)
	})
	require.NoError(t, err)

	batch, err := db.GetBatch(1, nil)
	require.NoError(t, err)
	require.NotNil(t, batch)
	gotCount, gotSum, err := db.GetAggregates(1, nil)
	require.NoError(t, err)
	assert.Equal(t, cipher.Ciphertext("enc-count"), gotCount)
	assert.Equal(t, cipher.Ciphertext("enc-sum"), gotSum)

	// A read-write commit across both stores records matching commit
	// timestamps
	blobTimestamp, err := db.Blob().GetCommitTimestamp()
	require.NoError(t, err)
	metadataTimestamp, err := db.Metadata().GetCommitTimestamp()
	require.NoError(t, err)
	assert.Positive(t, blobTimestamp)
	assert.Equal(t, blobTimestamp, metadataTimestamp)
}

// TestInMemorySqliteMultipleTransaction tests that our sqlite connection allows multiple
// concurrent transactions when using in-memory mode. This requires special URI flags, and
// this is mostly making sure that we don't lose them
func TestInMemorySqliteMultipleTransaction(t *testing.T) {
	var db *database.Database
	doQuery := func(sleep time.Duration) error {
		txn := db.Metadata().DB().Begin()
		if result := txn.First(&TestTable{}); result.Error != nil {
			return result.Error
		}
		time.Sleep(sleep)
		if result := txn.Commit(); result.Error != nil {
			return result.Error
		}
		return nil
	}
	db, err := database.New(dbConfig)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := db.Metadata().DB().AutoMigrate(&TestTable{}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result := db.Metadata().DB().Create(&TestTable{}); result.Error != nil {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	// The linter calls us on the lack of error checking, but it's a goroutine...
	//nolint:errcheck
	go doQuery(5 * time.Second)
	time.Sleep(1 * time.Second)
	if err := doQuery(0); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
}
