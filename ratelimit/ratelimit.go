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

// Package ratelimit enforces a per-identity cooldown between uses of
// rate-limited actions. Each action kind is tracked independently, so a
// submission does not consume the decryption-request budget. The check and
// the last-use update happen inside the caller's transaction: when a later
// check in the same operation fails and the transaction rolls back, no use
// is recorded.
package ratelimit

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/access"
	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rate-limited action kinds
const (
	ActionSubmitResponse    = "submit_response"
	ActionRequestDecryption = "request_decryption"
)

// CooldownActiveError is returned when an identity retries an action before
// its cooldown has elapsed
type CooldownActiveError struct {
	Action           string
	Identity         string
	RemainingSeconds uint64
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf(
		"cooldown active: action=%s identity=%s remaining=%ds",
		e.Action,
		e.Identity,
		e.RemainingSeconds,
	)
}

type RateLimiterConfig struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Database     *database.Database
	Access       *access.AccessControl
	// CooldownSeconds seeds the cooldown on first start. Once a cooldown
	// row exists the stored value wins.
	CooldownSeconds uint64
}

type RateLimiter struct {
	config  RateLimiterConfig
	metrics struct {
		cooldownSeconds prometheus.Gauge
		denied          *prometheus.CounterVec
	}
	logger          *slog.Logger
	eventBus        *event.EventBus
	db              *database.Database
	access          *access.AccessControl
	mu              sync.RWMutex
	cooldownSeconds uint64
}

func New(config RateLimiterConfig) *RateLimiter {
	r := &RateLimiter{
		config:   config,
		eventBus: config.EventBus,
		db:       config.Database,
		access:   config.Access,
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
	r.metrics.cooldownSeconds = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "tally_ratelimit_cooldown_seconds",
			Help: "configured cooldown between rate-limited actions",
		},
	)
	r.metrics.denied = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_ratelimit_denied_total",
			Help: "total actions denied by an active cooldown",
		},
		[]string{"action"},
	)
	return r
}

// Start loads the persisted cooldown. On a fresh database the configured
// value is written as the initial cooldown.
func (r *RateLimiter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cooldown, err := r.db.GetCooldown(nil)
	if err != nil {
		return err
	}
	if cooldown == nil {
		if err := r.db.SetCooldown(r.config.CooldownSeconds, nil); err != nil {
			return err
		}
		r.cooldownSeconds = r.config.CooldownSeconds
		r.logger.Info(
			"initialized cooldown",
			"component", "ratelimit",
			"seconds", r.cooldownSeconds,
		)
	} else {
		r.cooldownSeconds = cooldown.Seconds
	}
	r.metrics.cooldownSeconds.Set(float64(r.cooldownSeconds))
	return nil
}

// CheckAndUpdate enforces the cooldown for one action by one identity and,
// when the action is allowed, records the use. Both the read and the write
// go through the caller's transaction, so a failed operation never consumes
// the identity's budget. A zero cooldown allows every action but still
// records the use.
func (r *RateLimiter) CheckAndUpdate(
	identity string,
	action string,
	now time.Time,
	txn *database.Txn,
) error {
	r.mu.RLock()
	cooldownSeconds := r.cooldownSeconds
	r.mu.RUnlock()
	use, err := r.db.GetActionUse(action, identity, txn)
	if err != nil {
		return err
	}
	if use != nil && cooldownSeconds > 0 {
		elapsed := now.Unix() - use.LastUse
		if elapsed < int64(cooldownSeconds) { //nolint:gosec
			remaining := int64(cooldownSeconds) - elapsed //nolint:gosec
			r.metrics.denied.WithLabelValues(action).Inc()
			r.logger.Debug(
				"action denied by cooldown",
				"component", "ratelimit",
				"action", action,
				"identity", identity,
				"remaining_seconds", remaining,
			)
			return &CooldownActiveError{
				Action:           action,
				Identity:         identity,
				RemainingSeconds: uint64(remaining),
			}
		}
	}
	return r.db.SetActionUse(action, identity, now.Unix(), txn)
}

// SetCooldownSeconds updates the cooldown duration. Setting the current
// value is rejected with ErrInvalidParameter. The new duration applies to
// all identities and both action kinds immediately, including uses recorded
// under the old duration.
func (r *RateLimiter) SetCooldownSeconds(caller string, seconds uint64) error {
	if err := r.access.RequireAdministrator(caller); err != nil {
		return err
	}
	if err := r.access.RequireActive(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if seconds == r.cooldownSeconds {
		return access.ErrInvalidParameter
	}
	txn := r.db.Transaction(true)
	defer txn.Release()
	if err := r.db.SetCooldown(seconds, txn); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	oldSeconds := r.cooldownSeconds
	r.cooldownSeconds = seconds
	r.metrics.cooldownSeconds.Set(float64(seconds))
	r.logger.Info(
		"cooldown changed",
		"component", "ratelimit",
		"old_seconds", oldSeconds,
		"new_seconds", seconds,
	)
	r.eventBus.Publish(
		CooldownChangedEventType,
		event.NewEvent(
			CooldownChangedEventType,
			CooldownChangedEvent{
				OldSeconds: oldSeconds,
				NewSeconds: seconds,
			},
		),
	)
	return nil
}

// CooldownSeconds returns the current cooldown duration
func (r *RateLimiter) CooldownSeconds() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cooldownSeconds
}
