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

package access

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin     = "admin-1"
	testSubmitter = "submitter-1"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{
		DataDir: "",
	})
	require.NoError(t, err, "failed to create in-memory database")
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestAccess(t *testing.T, db *database.Database) *AccessControl {
	t.Helper()
	a := New(AccessConfig{
		Logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		EventBus:      event.NewEventBus(nil, nil),
		PromRegistry:  prometheus.NewRegistry(),
		Database:      db,
		Administrator: testAdmin,
	})
	require.NoError(t, a.Start())
	return a
}

// expectEvent asserts that an event of the given type was published
func expectEvent(
	t *testing.T,
	evtCh <-chan event.Event,
) event.Event {
	t.Helper()
	select {
	case evt := <-evtCh:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return event.Event{}
	}
}

// expectNoEvent asserts that no event arrives on the channel
func expectNoEvent(t *testing.T, evtCh <-chan event.Event) {
	t.Helper()
	select {
	case evt := <-evtCh:
		t.Fatalf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAccessBootstrap(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)

	assert.Equal(t, testAdmin, a.Administrator())
	assert.False(t, a.IsPaused())

	// The bootstrap state should be persisted
	state, err := db.GetAccessState(nil)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, testAdmin, state.Administrator)
}

func TestAccessBootstrapNoAdministrator(t *testing.T) {
	db := newTestDatabase(t)
	a := New(AccessConfig{
		Logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		EventBus:     event.NewEventBus(nil, nil),
		PromRegistry: prometheus.NewRegistry(),
		Database:     db,
	})
	err := a.Start()
	require.ErrorIs(t, err, ErrNoAdministrator)
}

func TestAccessStoredStateWins(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)

	// Transfer away from the configured identity, then restart with the
	// original configured identity. The stored administrator must win.
	require.NoError(t, a.TransferOwnership(testAdmin, "admin-2"))

	restarted := New(AccessConfig{
		Logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
		EventBus:      event.NewEventBus(nil, nil),
		PromRegistry:  prometheus.NewRegistry(),
		Database:      db,
		Administrator: testAdmin,
	})
	require.NoError(t, restarted.Start())
	assert.Equal(t, "admin-2", restarted.Administrator())
}

func TestTransferOwnership(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)
	_, evtCh := a.eventBus.Subscribe(OwnershipTransferEventType)

	// Only the administrator can transfer
	err := a.TransferOwnership("mallory", "mallory")
	require.ErrorIs(t, err, ErrNotAdministrator)
	expectNoEvent(t, evtCh)

	require.NoError(t, a.TransferOwnership(testAdmin, "admin-2"))
	assert.Equal(t, "admin-2", a.Administrator())

	evt := expectEvent(t, evtCh)
	payload, ok := evt.Data.(OwnershipTransferEvent)
	require.True(t, ok)
	assert.Equal(t, testAdmin, payload.Previous)
	assert.Equal(t, "admin-2", payload.New)

	// The previous administrator loses authority immediately
	err = a.TransferOwnership(testAdmin, testAdmin)
	require.ErrorIs(t, err, ErrNotAdministrator)
}

func TestTransferOwnershipToEmptyIdentity(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)

	// Transferring to the empty identity is allowed and orphans admin
	// authority permanently
	require.NoError(t, a.TransferOwnership(testAdmin, ""))
	assert.Equal(t, "", a.Administrator())

	err := a.TransferOwnership(testAdmin, testAdmin)
	require.ErrorIs(t, err, ErrNotAdministrator)
}

func TestTransferOwnershipWhilePaused(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)

	require.NoError(t, a.SetPaused(testAdmin, true))
	err := a.TransferOwnership(testAdmin, "admin-2")
	require.ErrorIs(t, err, ErrPaused)

	// The admin check comes before the pause check
	err = a.TransferOwnership("mallory", "admin-2")
	require.ErrorIs(t, err, ErrNotAdministrator)
}

func TestAddRemoveSubmitter(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)
	_, addedCh := a.eventBus.Subscribe(SubmitterAddedEventType)
	_, removedCh := a.eventBus.Subscribe(SubmitterRemovedEventType)

	assert.False(t, a.IsSubmitter(testSubmitter))

	require.NoError(t, a.AddSubmitter(testAdmin, testSubmitter))
	assert.True(t, a.IsSubmitter(testSubmitter))
	evt := expectEvent(t, addedCh)
	payload, ok := evt.Data.(SubmitterAddedEvent)
	require.True(t, ok)
	assert.Equal(t, testSubmitter, payload.Identity)

	// Adding again succeeds but changes nothing and emits no event
	require.NoError(t, a.AddSubmitter(testAdmin, testSubmitter))
	expectNoEvent(t, addedCh)

	require.NoError(t, a.RemoveSubmitter(testAdmin, testSubmitter))
	assert.False(t, a.IsSubmitter(testSubmitter))
	evt = expectEvent(t, removedCh)
	removedPayload, ok := evt.Data.(SubmitterRemovedEvent)
	require.True(t, ok)
	assert.Equal(t, testSubmitter, removedPayload.Identity)

	// Removing an identity that was never registered is a no-op
	require.NoError(t, a.RemoveSubmitter(testAdmin, "never-registered"))
	expectNoEvent(t, removedCh)
}

func TestSubmitterAdminOnly(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)

	err := a.AddSubmitter("mallory", testSubmitter)
	require.ErrorIs(t, err, ErrNotAdministrator)
	err = a.RemoveSubmitter("mallory", testSubmitter)
	require.ErrorIs(t, err, ErrNotAdministrator)

	require.NoError(t, a.SetPaused(testAdmin, true))
	err = a.AddSubmitter(testAdmin, testSubmitter)
	require.ErrorIs(t, err, ErrPaused)
	err = a.RemoveSubmitter(testAdmin, testSubmitter)
	require.ErrorIs(t, err, ErrPaused)
}

func TestSetPaused(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)
	_, evtCh := a.eventBus.Subscribe(PauseChangedEventType)

	// Setting the current value is rejected
	err := a.SetPaused(testAdmin, false)
	require.ErrorIs(t, err, ErrInvalidParameter)
	expectNoEvent(t, evtCh)

	require.NoError(t, a.SetPaused(testAdmin, true))
	assert.True(t, a.IsPaused())
	evt := expectEvent(t, evtCh)
	payload, ok := evt.Data.(PauseChangedEvent)
	require.True(t, ok)
	assert.True(t, payload.Paused)
	assert.Equal(t, float64(1), testutil.ToFloat64(a.metrics.paused))

	err = a.SetPaused(testAdmin, true)
	require.ErrorIs(t, err, ErrInvalidParameter)

	// Unpausing works while paused
	require.NoError(t, a.SetPaused(testAdmin, false))
	assert.False(t, a.IsPaused())
	assert.Equal(t, float64(0), testutil.ToFloat64(a.metrics.paused))
}

func TestSetPausedAdminCheckFirst(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)

	// A non-admin requesting the current value gets the admin error, not
	// the parameter error
	err := a.SetPaused("mallory", false)
	require.ErrorIs(t, err, ErrNotAdministrator)
}

func TestRequireGuards(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)

	require.NoError(t, a.RequireAdministrator(testAdmin))
	require.ErrorIs(t, a.RequireAdministrator("mallory"), ErrNotAdministrator)

	require.ErrorIs(t, a.RequireSubmitter(testSubmitter), ErrNotSubmitter)
	require.NoError(t, a.AddSubmitter(testAdmin, testSubmitter))
	require.NoError(t, a.RequireSubmitter(testSubmitter))

	require.NoError(t, a.RequireActive())
	require.NoError(t, a.SetPaused(testAdmin, true))
	require.ErrorIs(t, a.RequireActive(), ErrPaused)
}

func TestSubmitterMetric(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)

	assert.Equal(
		t,
		float64(0),
		testutil.ToFloat64(a.metrics.activeSubmitters),
	)
	require.NoError(t, a.AddSubmitter(testAdmin, "submitter-1"))
	require.NoError(t, a.AddSubmitter(testAdmin, "submitter-2"))
	assert.Equal(
		t,
		float64(2),
		testutil.ToFloat64(a.metrics.activeSubmitters),
	)
	require.NoError(t, a.RemoveSubmitter(testAdmin, "submitter-1"))
	assert.Equal(
		t,
		float64(1),
		testutil.ToFloat64(a.metrics.activeSubmitters),
	)
}

func TestAccessStateRecovery(t *testing.T) {
	db := newTestDatabase(t)
	a := newTestAccess(t, db)

	require.NoError(t, a.AddSubmitter(testAdmin, "submitter-1"))
	require.NoError(t, a.AddSubmitter(testAdmin, "submitter-2"))
	require.NoError(t, a.RemoveSubmitter(testAdmin, "submitter-2"))
	require.NoError(t, a.SetPaused(testAdmin, true))

	// A new instance over the same database recovers the full state
	restarted := New(AccessConfig{
		Logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		EventBus:     event.NewEventBus(nil, nil),
		PromRegistry: prometheus.NewRegistry(),
		Database:     db,
	})
	require.NoError(t, restarted.Start())
	assert.Equal(t, testAdmin, restarted.Administrator())
	assert.True(t, restarted.IsPaused())
	assert.True(t, restarted.IsSubmitter("submitter-1"))
	assert.False(t, restarted.IsSubmitter("submitter-2"))
	assert.Equal(
		t,
		float64(1),
		testutil.ToFloat64(restarted.metrics.paused),
	)
}
