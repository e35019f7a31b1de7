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

package ratelimit

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blinklabs-io/tally/access"
	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdmin = "admin-1"

func newTestRateLimiter(
	t *testing.T,
	cooldownSeconds uint64,
) (*RateLimiter, *access.AccessControl, *database.Database) {
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
	r := New(RateLimiterConfig{
		Logger:          slog.New(slog.NewJSONHandler(io.Discard, nil)),
		EventBus:        eventBus,
		PromRegistry:    prometheus.NewRegistry(),
		Database:        db,
		Access:          a,
		CooldownSeconds: cooldownSeconds,
	})
	require.NoError(t, r.Start())
	return r, a, db
}

func TestCooldownBootstrap(t *testing.T) {
	r, _, db := newTestRateLimiter(t, 300)
	assert.Equal(t, uint64(300), r.CooldownSeconds())

	cooldown, err := db.GetCooldown(nil)
	require.NoError(t, err)
	require.NotNil(t, cooldown)
	assert.Equal(t, uint64(300), cooldown.Seconds)
}

func TestCooldownStoredValueWins(t *testing.T) {
	r, a, db := newTestRateLimiter(t, 300)
	require.NoError(t, r.SetCooldownSeconds(testAdmin, 60))

	// Restart with a different configured value
	restarted := New(RateLimiterConfig{
		Logger:          slog.New(slog.NewJSONHandler(io.Discard, nil)),
		EventBus:        event.NewEventBus(nil, nil),
		PromRegistry:    prometheus.NewRegistry(),
		Database:        db,
		Access:          a,
		CooldownSeconds: 300,
	})
	require.NoError(t, restarted.Start())
	assert.Equal(t, uint64(60), restarted.CooldownSeconds())
}

func TestCheckAndUpdate(t *testing.T) {
	r, _, db := newTestRateLimiter(t, 300)
	now := time.Now()

	// First use passes and is recorded
	require.NoError(
		t,
		r.CheckAndUpdate("alice", ActionSubmitResponse, now, nil),
	)
	use, err := db.GetActionUse(ActionSubmitResponse, "alice", nil)
	require.NoError(t, err)
	require.NotNil(t, use)
	assert.Equal(t, now.Unix(), use.LastUse)

	// Retry within the cooldown is denied with the remaining time
	err = r.CheckAndUpdate(
		"alice",
		ActionSubmitResponse,
		now.Add(100*time.Second),
		nil,
	)
	var cooldownErr *CooldownActiveError
	require.ErrorAs(t, err, &cooldownErr)
	assert.Equal(t, ActionSubmitResponse, cooldownErr.Action)
	assert.Equal(t, "alice", cooldownErr.Identity)
	assert.Equal(t, uint64(200), cooldownErr.RemainingSeconds)

	// The denied attempt did not refresh the recorded use
	use, err = db.GetActionUse(ActionSubmitResponse, "alice", nil)
	require.NoError(t, err)
	require.NotNil(t, use)
	assert.Equal(t, now.Unix(), use.LastUse)

	// After the cooldown elapses the action passes again
	require.NoError(
		t,
		r.CheckAndUpdate(
			"alice",
			ActionSubmitResponse,
			now.Add(300*time.Second),
			nil,
		),
	)
	assert.Equal(
		t,
		float64(1),
		testutil.ToFloat64(
			r.metrics.denied.WithLabelValues(ActionSubmitResponse),
		),
	)
}

func TestActionKindsIndependent(t *testing.T) {
	r, _, _ := newTestRateLimiter(t, 300)
	now := time.Now()

	require.NoError(
		t,
		r.CheckAndUpdate("alice", ActionSubmitResponse, now, nil),
	)

	// A submission does not consume the decryption-request budget
	require.NoError(
		t,
		r.CheckAndUpdate("alice", ActionRequestDecryption, now, nil),
	)

	// Identities are tracked independently too
	require.NoError(
		t,
		r.CheckAndUpdate("bob", ActionSubmitResponse, now, nil),
	)
}

func TestZeroCooldownStillRecords(t *testing.T) {
	r, _, db := newTestRateLimiter(t, 0)
	now := time.Now()

	require.NoError(
		t,
		r.CheckAndUpdate("alice", ActionSubmitResponse, now, nil),
	)
	require.NoError(
		t,
		r.CheckAndUpdate(
			"alice",
			ActionSubmitResponse,
			now.Add(time.Second),
			nil,
		),
	)

	// Each pass still records the use, so raising the cooldown later
	// applies to the most recent use
	use, err := db.GetActionUse(ActionSubmitResponse, "alice", nil)
	require.NoError(t, err)
	require.NotNil(t, use)
	assert.Equal(t, now.Add(time.Second).Unix(), use.LastUse)
}

func TestCheckAndUpdateRollback(t *testing.T) {
	r, _, db := newTestRateLimiter(t, 300)
	now := time.Now()

	// A use recorded inside a rolled-back transaction is not persisted
	txn := db.Transaction(true)
	require.NoError(
		t,
		r.CheckAndUpdate("alice", ActionSubmitResponse, now, txn),
	)
	require.NoError(t, txn.Rollback())

	use, err := db.GetActionUse(ActionSubmitResponse, "alice", nil)
	require.NoError(t, err)
	assert.Nil(t, use)

	// The identity can immediately act again
	require.NoError(
		t,
		r.CheckAndUpdate("alice", ActionSubmitResponse, now, nil),
	)
}

func TestSetCooldownSeconds(t *testing.T) {
	r, _, _ := newTestRateLimiter(t, 300)
	_, evtCh := r.eventBus.Subscribe(CooldownChangedEventType)

	err := r.SetCooldownSeconds("mallory", 60)
	require.ErrorIs(t, err, access.ErrNotAdministrator)

	// Setting the current value is rejected
	err = r.SetCooldownSeconds(testAdmin, 300)
	require.ErrorIs(t, err, access.ErrInvalidParameter)

	require.NoError(t, r.SetCooldownSeconds(testAdmin, 60))
	assert.Equal(t, uint64(60), r.CooldownSeconds())

	select {
	case evt := <-evtCh:
		payload, ok := evt.Data.(CooldownChangedEvent)
		require.True(t, ok)
		assert.Equal(t, uint64(300), payload.OldSeconds)
		assert.Equal(t, uint64(60), payload.NewSeconds)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for cooldown changed event")
	}
}

func TestSetCooldownSecondsWhilePaused(t *testing.T) {
	r, a, _ := newTestRateLimiter(t, 300)
	require.NoError(t, a.SetPaused(testAdmin, true))

	err := r.SetCooldownSeconds(testAdmin, 60)
	require.ErrorIs(t, err, access.ErrPaused)

	// The admin check comes before the pause check
	err = r.SetCooldownSeconds("mallory", 60)
	require.ErrorIs(t, err, access.ErrNotAdministrator)
}

func TestCooldownChangeAppliesToPastUses(t *testing.T) {
	r, _, _ := newTestRateLimiter(t, 300)
	now := time.Now()

	require.NoError(
		t,
		r.CheckAndUpdate("alice", ActionSubmitResponse, now, nil),
	)

	// Shortening the cooldown unblocks a use recorded under the longer one
	require.NoError(t, r.SetCooldownSeconds(testAdmin, 5))
	require.NoError(
		t,
		r.CheckAndUpdate(
			"alice",
			ActionSubmitResponse,
			now.Add(10*time.Second),
			nil,
		),
	)

	// Lengthening it re-blocks a use that the old duration would allow
	require.NoError(t, r.SetCooldownSeconds(testAdmin, 3600))
	err := r.CheckAndUpdate(
		"alice",
		ActionSubmitResponse,
		now.Add(400*time.Second),
		nil,
	)
	var cooldownErr *CooldownActiveError
	require.True(t, errors.As(err, &cooldownErr))
}
