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

package postgres

import (
	"os"
	"strconv"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/database/plugin"
)

// TestTable is a simple table for testing concurrent transactions
type TestTable struct {
	gorm.Model
}

// isPostgresConfigured checks if postgres is configured via cmdlineOptions or environment variables.
// It first checks cmdlineOptions (the plugin's configured state), then falls back to environment variables.
// Returns true if a password or DSN is configured, false otherwise.
func isPostgresConfigured() bool {
	// Check if cmdlineOptions has a password or DSN set
	cmdlineOptionsMutex.RLock()
	password := cmdlineOptions.password
	dsn := cmdlineOptions.dsn
	cmdlineOptionsMutex.RUnlock()

	if password != "" || dsn != "" {
		return true
	}

	// Fall back to environment variables
	return os.Getenv("POSTGRES_PASSWORD") != "" ||
		os.Getenv("POSTGRES_DSN") != ""
}

// getTestPostgresOptions returns options for creating a test postgres store.
// It uses cmdlineOptions if configured, otherwise falls back to environment variables.
func getTestPostgresOptions() []PostgresOptionFunc {
	cmdlineOptionsMutex.RLock()
	host := cmdlineOptions.host
	port := uint(cmdlineOptions.port)
	user := cmdlineOptions.user
	password := cmdlineOptions.password
	database := cmdlineOptions.database
	sslMode := cmdlineOptions.sslMode
	timeZone := cmdlineOptions.timeZone
	dsn := cmdlineOptions.dsn
	cmdlineOptionsMutex.RUnlock()

	// Override with environment variables if cmdlineOptions password is not set
	if password == "" {
		password = os.Getenv("POSTGRES_PASSWORD")

		// Also check for other env vars when using env-based config
		if envHost := os.Getenv("POSTGRES_HOST"); envHost != "" {
			host = envHost
		}
		if envPort := os.Getenv("POSTGRES_PORT"); envPort != "" {
			if p, err := strconv.ParseUint(envPort, 10, 32); err == nil {
				port = uint(p)
			}
		}
		if envUser := os.Getenv("POSTGRES_USER"); envUser != "" {
			user = envUser
		}
		if envDB := os.Getenv("POSTGRES_DATABASE"); envDB != "" {
			database = envDB
		} else if database == "postgres" {
			// Use a separate test database by default
			database = "tally_test"
		}
		if envSSL := os.Getenv("POSTGRES_SSLMODE"); envSSL != "" {
			sslMode = envSSL
		}
		if envDSN := os.Getenv("POSTGRES_DSN"); envDSN != "" {
			dsn = envDSN
		}
	}

	return []PostgresOptionFunc{
		WithHost(host),
		WithPort(port),
		WithUser(user),
		WithPassword(password),
		WithDatabase(database),
		WithSSLMode(sslMode),
		WithTimeZone(timeZone),
		WithDSN(dsn),
	}
}

// newTestPostgresStore creates a new postgres store for testing.
// It skips the test if postgres is not configured (no password in cmdlineOptions or POSTGRES_PASSWORD env var).
func newTestPostgresStore(t *testing.T) *MetadataStorePostgres {
	t.Helper()

	if !isPostgresConfigured() {
		t.Skip(
			"Skipping postgres integration test: postgres not configured (set POSTGRES_PASSWORD or configure via cmdline options)",
		)
	}

	opts := getTestPostgresOptions()
	store, err := NewWithOptions(opts...)
	if err != nil {
		t.Fatalf("failed to create postgres store: %v", err)
	}

	if err := store.Start(); err != nil {
		t.Fatalf("failed to start postgres store: %v", err)
	}

	return store
}

// newTestPostgresStoreFromPlugin creates a postgres store using NewFromCmdlineOptions.
// This tests the plugin registration path. Skips if not configured.
func newTestPostgresStoreFromPlugin(t *testing.T) *MetadataStorePostgres {
	t.Helper()

	if !isPostgresConfigured() {
		t.Skip(
			"Skipping postgres integration test: postgres not configured (set POSTGRES_PASSWORD or configure via cmdline options)",
		)
	}

	// Capture original cmdlineOptions before any modifications
	cmdlineOptionsMutex.RLock()
	originalHost := cmdlineOptions.host
	originalPort := cmdlineOptions.port
	originalUser := cmdlineOptions.user
	originalPassword := cmdlineOptions.password
	originalDatabase := cmdlineOptions.database
	originalSslMode := cmdlineOptions.sslMode
	originalTimeZone := cmdlineOptions.timeZone
	originalDsn := cmdlineOptions.dsn
	cmdlineOptionsMutex.RUnlock()

	// Restore original cmdlineOptions after test setup
	t.Cleanup(func() {
		cmdlineOptionsMutex.Lock()
		cmdlineOptions.host = originalHost
		cmdlineOptions.port = originalPort
		cmdlineOptions.user = originalUser
		cmdlineOptions.password = originalPassword
		cmdlineOptions.database = originalDatabase
		cmdlineOptions.sslMode = originalSslMode
		cmdlineOptions.timeZone = originalTimeZone
		cmdlineOptions.dsn = originalDsn
		cmdlineOptionsMutex.Unlock()
	})

	if originalPassword == "" && originalDsn == "" {
		// Set cmdlineOptions from environment for this test
		cmdlineOptionsMutex.Lock()
		if envHost := os.Getenv("POSTGRES_HOST"); envHost != "" {
			cmdlineOptions.host = envHost
		}
		if envPort := os.Getenv("POSTGRES_PORT"); envPort != "" {
			if p, err := strconv.ParseUint(envPort, 10, 32); err == nil {
				cmdlineOptions.port = p
			}
		}
		if envUser := os.Getenv("POSTGRES_USER"); envUser != "" {
			cmdlineOptions.user = envUser
		}
		cmdlineOptions.password = os.Getenv("POSTGRES_PASSWORD")
		if envDB := os.Getenv("POSTGRES_DATABASE"); envDB != "" {
			cmdlineOptions.database = envDB
		} else {
			cmdlineOptions.database = "tally_test"
		}
		if envSSL := os.Getenv("POSTGRES_SSLMODE"); envSSL != "" {
			cmdlineOptions.sslMode = envSSL
		}
		if envDSN := os.Getenv("POSTGRES_DSN"); envDSN != "" {
			cmdlineOptions.dsn = envDSN
		}
		cmdlineOptionsMutex.Unlock()
	}

	p := NewFromCmdlineOptions()
	if p == nil {
		t.Fatal("NewFromCmdlineOptions returned nil")
	}

	// Check if it's an error plugin
	if _, ok := p.(*plugin.ErrorPlugin); ok {
		t.Fatal("NewFromCmdlineOptions returned an error plugin")
	}

	store, ok := p.(*MetadataStorePostgres)
	if !ok {
		t.Fatalf("expected *MetadataStorePostgres, got %T", p)
	}

	if err := store.Start(); err != nil {
		t.Fatalf("failed to start postgres store: %v", err)
	}

	return store
}

// TestPostgresMultipleTransaction tests that postgres allows multiple
// concurrent transactions
func TestPostgresMultipleTransaction(t *testing.T) {
	pgStore := newTestPostgresStore(t)
	defer pgStore.Close() //nolint:errcheck

	if err := pgStore.DB().AutoMigrate(&TestTable{}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if result := pgStore.DB().Create(&TestTable{}); result.Error != nil {
		t.Fatalf("unexpected error: %s", result.Error)
	}

	doQuery := func(sleep time.Duration) error {
		txn := pgStore.DB().Begin()
		defer txn.Rollback() //nolint:errcheck
		if result := txn.First(&TestTable{}); result.Error != nil {
			return result.Error
		}
		time.Sleep(sleep)
		if result := txn.Commit(); result.Error != nil {
			return result.Error
		}
		return nil
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- doQuery(5 * time.Second)
	}()
	time.Sleep(1 * time.Second)
	if err := doQuery(0); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("goroutine error: %s", err)
	}
}

// TestPostgresAccessStateUpsert tests that access state writes land on a
// single row and survive administrator handover
func TestPostgresAccessStateUpsert(t *testing.T) {
	pgStore := newTestPostgresStore(t)
	defer pgStore.Close() //nolint:errcheck

	// Clean up any existing records from previous test runs to ensure deterministic results
	pgStore.DB().Where("1 = 1").Delete(&models.AccessState{})

	if err := pgStore.SetAccessState(
		&models.AccessState{
			ID:            1,
			Administrator: "admin-initial",
			Paused:        false,
		},
		nil,
	); err != nil {
		t.Fatalf("failed to set access state: %v", err)
	}
	if err := pgStore.SetAccessState(
		&models.AccessState{
			ID:            1,
			Administrator: "admin-successor",
			Paused:        true,
		},
		nil,
	); err != nil {
		t.Fatalf("failed to update access state: %v", err)
	}

	state, err := pgStore.GetAccessState(nil)
	if err != nil {
		t.Fatalf("failed to get access state: %v", err)
	}
	if state == nil {
		t.Fatal("expected access state, got nil")
	}
	if state.Administrator != "admin-successor" {
		t.Errorf(
			"expected administrator 'admin-successor', got '%s'",
			state.Administrator,
		)
	}
	if !state.Paused {
		t.Errorf("expected paused state")
	}

	var count int64
	pgStore.DB().Model(&models.AccessState{}).Count(&count)
	if count != 1 {
		t.Errorf("expected a single access state row, got %d", count)
	}
}

// TestPostgresBatchLifecycle tests batch open/close flow through the
// normalized accessors
func TestPostgresBatchLifecycle(t *testing.T) {
	pgStore := newTestPostgresStore(t)
	defer pgStore.Close() //nolint:errcheck

	// Clean up
	pgStore.DB().Where("1 = 1").Delete(&models.Submission{})
	pgStore.DB().Where("1 = 1").Delete(&models.Batch{})

	openedAt := time.Now().Truncate(time.Second)
	if err := pgStore.SetBatch(
		&models.Batch{
			BatchId:  1,
			Open:     true,
			OpenedAt: openedAt,
		},
		nil,
	); err != nil {
		t.Fatalf("failed to open batch: %v", err)
	}

	current, err := pgStore.GetCurrentBatch(nil)
	if err != nil {
		t.Fatalf("failed to get current batch: %v", err)
	}
	if current == nil {
		t.Fatal("expected current batch, got nil")
	}
	if current.BatchId != 1 {
		t.Errorf("expected batch 1, got %d", current.BatchId)
	}
	if !current.Open {
		t.Errorf("expected batch to be open")
	}

	if err := pgStore.AddSubmission(
		&models.Submission{
			BatchId:    1,
			Submitter:  "submitter-1",
			Count:      2,
			ReceivedAt: time.Now(),
		},
		nil,
	); err != nil {
		t.Fatalf("failed to add submission: %v", err)
	}

	closedAt := time.Now()
	current.Open = false
	current.Submissions = 1
	current.ClosedAt = &closedAt
	if err := pgStore.SetBatch(current, nil); err != nil {
		t.Fatalf("failed to close batch: %v", err)
	}

	closed, err := pgStore.GetBatch(1, nil)
	if err != nil {
		t.Fatalf("failed to get batch: %v", err)
	}
	if closed == nil {
		t.Fatal("expected batch, got nil")
	}
	if closed.Open {
		t.Errorf("expected batch to be closed")
	}
	if closed.Submissions != 1 {
		t.Errorf("expected 1 submission, got %d", closed.Submissions)
	}
	if closed.ClosedAt == nil {
		t.Errorf("expected ClosedAt to be set")
	}

	// Closing must update in place, not create a second row
	var count int64
	pgStore.DB().Model(&models.Batch{}).Count(&count)
	if count != 1 {
		t.Errorf("expected a single batch row, got %d", count)
	}

	submissions, err := pgStore.GetSubmissions(1, nil)
	if err != nil {
		t.Fatalf("failed to get submissions: %v", err)
	}
	if len(submissions) != 1 {
		t.Errorf("expected 1 submission record, got %d", len(submissions))
	}
}

// TestPostgresDecryptionRequestUpsert tests that completing a decryption
// request updates the original row keyed by request ID
func TestPostgresDecryptionRequestUpsert(t *testing.T) {
	pgStore := newTestPostgresStoreFromPlugin(t)
	defer pgStore.Close() //nolint:errcheck

	// Clean up
	pgStore.DB().Where("1 = 1").Delete(&models.DecryptionRequest{})

	if err := pgStore.SetDecryptionRequest(
		&models.DecryptionRequest{
			RequestId:   "req-pg-1",
			BatchId:     1,
			Fingerprint: []byte("fingerprint-1234567890-fingerpri"),
			Processed:   false,
			RequestedAt: time.Now(),
		},
		nil,
	); err != nil {
		t.Fatalf("failed to set decryption request: %v", err)
	}

	pending, err := pgStore.GetUnprocessedDecryptionRequests(nil)
	if err != nil {
		t.Fatalf("failed to get unprocessed requests: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 unprocessed request, got %d", len(pending))
	}

	completedAt := time.Now()
	req := pending[0]
	req.Processed = true
	req.Count = 3
	req.Sum = 15
	req.CompletedAt = &completedAt
	if err := pgStore.SetDecryptionRequest(&req, nil); err != nil {
		t.Fatalf("failed to complete decryption request: %v", err)
	}

	completed, err := pgStore.GetDecryptionRequest("req-pg-1", nil)
	if err != nil {
		t.Fatalf("failed to get decryption request: %v", err)
	}
	if completed == nil {
		t.Fatal("expected decryption request, got nil")
	}
	if !completed.Processed {
		t.Errorf("expected request to be processed")
	}
	if completed.Count != 3 || completed.Sum != 15 {
		t.Errorf(
			"expected count=3 sum=15, got count=%d sum=%d",
			completed.Count,
			completed.Sum,
		)
	}

	var count int64
	pgStore.DB().Model(&models.DecryptionRequest{}).Count(&count)
	if count != 1 {
		t.Errorf("expected a single decryption request row, got %d", count)
	}

	remaining, err := pgStore.GetUnprocessedDecryptionRequests(nil)
	if err != nil {
		t.Fatalf("failed to get unprocessed requests: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no unprocessed requests, got %d", len(remaining))
	}
}
