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

package sqlite_test

import (
	"testing"
	"time"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/plugin/metadata/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDecryptionRequest(t *testing.T) {
	// Setup database
	db, err := database.New(&database.Config{
		BlobCacheSize: 1 << 20,
		Logger:        nil,
		PromRegistry:  nil,
		DataDir:       "",
	})
	require.NoError(t, err)
	defer db.Close()

	metadataStore := db.Metadata().(*sqlite.MetadataStoreSqlite)

	fingerprint := make([]byte, 32)
	fingerprint[0] = 0x42
	err = metadataStore.SetDecryptionRequest(&models.DecryptionRequest{
		RequestId:   "req-1",
		BatchId:     1,
		Fingerprint: fingerprint,
		RequestedAt: time.Now(),
	}, nil)
	require.NoError(t, err)

	request, err := metadataStore.GetDecryptionRequest("req-1", nil)
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.Equal(t, uint64(1), request.BatchId)
	assert.False(t, request.Processed)

	firstRequestRowID := request.ID

	// Completing the request updates the existing record
	completedAt := time.Now()
	request.Processed = true
	request.Count = 3
	request.Sum = 15
	request.CompletedAt = &completedAt
	err = metadataStore.SetDecryptionRequest(request, nil)
	require.NoError(t, err)

	request, err = metadataStore.GetDecryptionRequest("req-1", nil)
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.Equal(
		t,
		firstRequestRowID,
		request.ID,
		"should be the same request record",
	)
	assert.True(t, request.Processed)
	assert.Equal(t, uint64(3), uint64(request.Count))
	assert.Equal(t, uint64(15), uint64(request.Sum))
	require.NotNil(t, request.CompletedAt)

	var requests []models.DecryptionRequest
	err = metadataStore.DB().
		Where("request_id = ?", "req-1").
		Find(&requests).
		Error
	require.NoError(t, err)
	assert.Len(t, requests, 1, "should have exactly one request record")
}

func TestGetUnprocessedDecryptionRequests(t *testing.T) {
	// Setup database
	db, err := database.New(&database.Config{
		BlobCacheSize: 1 << 20,
		Logger:        nil,
		PromRegistry:  nil,
		DataDir:       "",
	})
	require.NoError(t, err)
	defer db.Close()

	metadataStore := db.Metadata().(*sqlite.MetadataStoreSqlite)

	fingerprint := make([]byte, 32)
	for i, requestId := range []string{"req-1", "req-2", "req-3"} {
		err = metadataStore.SetDecryptionRequest(&models.DecryptionRequest{
			RequestId:   requestId,
			BatchId:     uint64(i + 1),
			Fingerprint: fingerprint,
			RequestedAt: time.Now(),
		}, nil)
		require.NoError(t, err)
	}

	// Process the middle request
	request, err := metadataStore.GetDecryptionRequest("req-2", nil)
	require.NoError(t, err)
	require.NotNil(t, request)
	completedAt := time.Now()
	request.Processed = true
	request.CompletedAt = &completedAt
	require.NoError(t, metadataStore.SetDecryptionRequest(request, nil))

	unprocessed, err := metadataStore.GetUnprocessedDecryptionRequests(nil)
	require.NoError(t, err)
	require.Len(t, unprocessed, 2)
	assert.Equal(t, "req-1", unprocessed[0].RequestId)
	assert.Equal(t, "req-3", unprocessed[1].RequestId)

	byBatch, err := metadataStore.GetDecryptionRequestsByBatch(2, nil)
	require.NoError(t, err)
	require.Len(t, byBatch, 1)
	assert.Equal(t, "req-2", byBatch[0].RequestId)
	assert.True(t, byBatch[0].Processed)
}
