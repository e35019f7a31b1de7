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

package event

import (
	"io"
	"log/slog"
	"sync"
)

// AuditLogger mirrors selected event types into the structured log so every
// coordinator state change leaves a durable audit record even when no other
// subscriber is attached. Event payloads never contain ciphertext bytes, so
// logging them verbatim is safe.
type AuditLogger struct {
	bus    *EventBus
	logger *slog.Logger
	mu     sync.Mutex
	subIds map[EventType]EventSubscriberId
}

// NewAuditLogger creates an AuditLogger on the given bus.
func NewAuditLogger(bus *EventBus, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &AuditLogger{
		bus:    bus,
		logger: logger.With("component", "audit"),
		subIds: make(map[EventType]EventSubscriberId),
	}
}

// Watch subscribes to the given event types and logs each received event.
// Watching an already-watched type is a no-op.
func (a *AuditLogger) Watch(eventTypes ...EventType) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, eventType := range eventTypes {
		if _, ok := a.subIds[eventType]; ok {
			continue
		}
		a.subIds[eventType] = a.bus.SubscribeFunc(
			eventType,
			func(evt Event) {
				a.logger.Info(
					"audit event",
					"type", string(evt.Type),
					"timestamp", evt.Timestamp,
					"data", evt.Data,
				)
			},
		)
	}
}

// Stop unsubscribes from all watched event types.
func (a *AuditLogger) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for eventType, subId := range a.subIds {
		a.bus.Unsubscribe(eventType, subId)
		delete(a.subIds, eventType)
	}
}
