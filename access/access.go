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

// Package access holds the coordinator's role state: a single transferable
// administrator identity, the set of registered submitters, and the
// coordinator-wide pause flag that gates every mutating operation. Other
// components consult it through the Require* guards; role changes take
// effect for the very next guarded call.
package access

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/database/models"
	"github.com/blinklabs-io/tally/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Common errors returned by role and parameter checks. These are shared
// vocabulary: other components return them unchanged when their guard
// checks fail.
var (
	ErrNotAdministrator = errors.New("caller is not the administrator")
	ErrNotSubmitter     = errors.New("caller is not a registered submitter")
	ErrPaused           = errors.New("coordinator is paused")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNoAdministrator  = errors.New("no administrator configured")
)

type AccessConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Database     *database.Database
	// Administrator bootstraps the administrator identity on first start.
	// Once an access state row exists the stored identity wins.
	Administrator string
}

type AccessControl struct {
	config  AccessConfig
	metrics struct {
		paused           prometheus.Gauge
		activeSubmitters prometheus.Gauge
	}
	logger        *slog.Logger
	eventBus      *event.EventBus
	db            *database.Database
	mu            sync.RWMutex
	administrator string
	paused        bool
	submitters    map[string]bool
}

func New(config AccessConfig) *AccessControl {
	a := &AccessControl{
		config:     config,
		eventBus:   config.EventBus,
		db:         config.Database,
		submitters: make(map[string]bool),
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
	a.metrics.paused = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "tally_access_paused",
		Help: "whether the coordinator is paused (1) or active (0)",
	})
	a.metrics.activeSubmitters = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "tally_access_submitters_active",
		Help: "current count of registered submitters",
	})
	return a
}

// Start loads the persisted role state. On a fresh database the configured
// administrator identity is written as the initial state; afterwards the
// stored identity is authoritative and the configured one is ignored.
func (a *AccessControl) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, err := a.db.GetAccessState(nil)
	if err != nil {
		return err
	}
	if state == nil {
		if a.config.Administrator == "" {
			return ErrNoAdministrator
		}
		if err := a.db.SetAccessState(
			&models.AccessState{
				Administrator: a.config.Administrator,
				Paused:        false,
			},
			nil,
		); err != nil {
			return err
		}
		a.administrator = a.config.Administrator
		a.paused = false
		a.logger.Info(
			"initialized administrator",
			"component", "access",
			"administrator", a.administrator,
		)
	} else {
		a.administrator = state.Administrator
		a.paused = state.Paused
		if a.config.Administrator != "" &&
			a.config.Administrator != state.Administrator {
			a.logger.Info(
				"stored administrator differs from configured identity, using stored",
				"component", "access",
				"administrator", state.Administrator,
			)
		}
	}
	submitters, err := a.db.GetSubmitters(false, nil)
	if err != nil {
		return err
	}
	for _, submitter := range submitters {
		a.submitters[submitter.Identity] = true
	}
	a.metrics.activeSubmitters.Set(float64(len(a.submitters)))
	if a.paused {
		a.metrics.paused.Set(1)
	}
	return nil
}

// TransferOwnership replaces the administrator. Transferring to an empty
// identity is allowed and permanently orphans admin authority, so it is
// logged loudly.
func (a *AccessControl) TransferOwnership(caller string, newAdmin string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.administrator {
		return ErrNotAdministrator
	}
	if a.paused {
		return ErrPaused
	}
	txn := a.db.Transaction(true)
	defer txn.Release()
	if err := a.db.SetAccessState(
		&models.AccessState{
			Administrator: newAdmin,
			Paused:        a.paused,
		},
		txn,
	); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	previous := a.administrator
	a.administrator = newAdmin
	if newAdmin == "" {
		a.logger.Warn(
			"ownership transferred to empty identity, admin authority is orphaned",
			"component", "access",
			"previous", previous,
		)
	} else {
		a.logger.Info(
			"ownership transferred",
			"component", "access",
			"previous", previous,
			"new", newAdmin,
		)
	}
	a.eventBus.Publish(
		OwnershipTransferEventType,
		event.NewEvent(
			OwnershipTransferEventType,
			OwnershipTransferEvent{
				Previous: previous,
				New:      newAdmin,
			},
		),
	)
	return nil
}

// AddSubmitter grants submit access to an identity. Adding an identity that
// already has access succeeds without effect or event.
func (a *AccessControl) AddSubmitter(caller string, identity string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.administrator {
		return ErrNotAdministrator
	}
	if a.paused {
		return ErrPaused
	}
	if a.submitters[identity] {
		return nil
	}
	txn := a.db.Transaction(true)
	defer txn.Release()
	if err := a.db.SetSubmitter(identity, true, txn); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	a.submitters[identity] = true
	a.metrics.activeSubmitters.Set(float64(len(a.submitters)))
	a.logger.Info(
		"submitter added",
		"component", "access",
		"identity", identity,
	)
	a.eventBus.Publish(
		SubmitterAddedEventType,
		event.NewEvent(
			SubmitterAddedEventType,
			SubmitterAddedEvent{
				Identity: identity,
			},
		),
	)
	return nil
}

// RemoveSubmitter revokes an identity's submit access. Removing an identity
// without access succeeds without effect or event. Revocation is immediate:
// the identity's next submission fails the submitter check.
func (a *AccessControl) RemoveSubmitter(caller string, identity string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.administrator {
		return ErrNotAdministrator
	}
	if a.paused {
		return ErrPaused
	}
	if !a.submitters[identity] {
		return nil
	}
	txn := a.db.Transaction(true)
	defer txn.Release()
	if err := a.db.SetSubmitter(identity, false, txn); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	delete(a.submitters, identity)
	a.metrics.activeSubmitters.Set(float64(len(a.submitters)))
	a.logger.Info(
		"submitter removed",
		"component", "access",
		"identity", identity,
	)
	a.eventBus.Publish(
		SubmitterRemovedEventType,
		event.NewEvent(
			SubmitterRemovedEventType,
			SubmitterRemovedEvent{
				Identity: identity,
			},
		),
	)
	return nil
}

// SetPaused flips the coordinator-wide pause flag. Requesting the current
// value fails with ErrInvalidParameter: no-op transitions are rejected, not
// silently ignored. SetPaused itself is never blocked by the pause flag,
// otherwise unpausing would be impossible.
func (a *AccessControl) SetPaused(caller string, paused bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.administrator {
		return ErrNotAdministrator
	}
	if paused == a.paused {
		return ErrInvalidParameter
	}
	txn := a.db.Transaction(true)
	defer txn.Release()
	if err := a.db.SetAccessState(
		&models.AccessState{
			Administrator: a.administrator,
			Paused:        paused,
		},
		txn,
	); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	a.paused = paused
	if paused {
		a.metrics.paused.Set(1)
	} else {
		a.metrics.paused.Set(0)
	}
	a.logger.Info(
		"pause state changed",
		"component", "access",
		"paused", paused,
	)
	a.eventBus.Publish(
		PauseChangedEventType,
		event.NewEvent(
			PauseChangedEventType,
			PauseChangedEvent{
				Paused: paused,
			},
		),
	)
	return nil
}

// Administrator returns the current administrator identity
func (a *AccessControl) Administrator() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.administrator
}

// IsSubmitter returns whether an identity currently has submit access
func (a *AccessControl) IsSubmitter(identity string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.submitters[identity]
}

// IsPaused returns whether the coordinator is paused
func (a *AccessControl) IsPaused() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.paused
}

// RequireAdministrator fails with ErrNotAdministrator unless the caller is
// the current administrator
func (a *AccessControl) RequireAdministrator(caller string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if caller != a.administrator {
		return ErrNotAdministrator
	}
	return nil
}

// RequireSubmitter fails with ErrNotSubmitter unless the caller currently
// has submit access
func (a *AccessControl) RequireSubmitter(caller string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.submitters[caller] {
		return ErrNotSubmitter
	}
	return nil
}

// RequireActive fails with ErrPaused while the coordinator is paused
func (a *AccessControl) RequireActive() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.paused {
		return ErrPaused
	}
	return nil
}
