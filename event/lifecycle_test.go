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

package event_test

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blinklabs-io/tally/event"
	"github.com/blinklabs-io/tally/internal/test/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// syncBuffer guards concurrent writes from subscriber goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Stopping the bus must shut down the async worker pool and close all
// subscriber channels without leaking goroutines.
func TestEventBusStopNoLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	eb := event.NewEventBus(nil, nil)
	var delivered atomic.Int64
	eb.SubscribeFunc("test.lifecycle", func(evt event.Event) {
		delivered.Add(1)
	})
	_, subCh := eb.Subscribe("test.lifecycle")
	for range 10 {
		eb.PublishAsync("test.lifecycle", event.NewEvent("test.lifecycle", nil))
	}
	testutil.WaitForCondition(t, func() bool {
		return delivered.Load() == 10
	}, 5*time.Second, "async events not delivered")
	eb.Stop()
	// Subscriber channels are closed on Stop
	testutil.WaitForCondition(t, func() bool {
		for {
			select {
			case _, ok := <-subCh:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, "subscriber channel not closed")
	// Publishing after Stop is a no-op rather than a panic
	eb.Publish("test.lifecycle", event.NewEvent("test.lifecycle", nil))
}

// The audit logger subscribes on Watch and must drain its subscriptions
// on Stop without leaking its consumer goroutines.
func TestAuditLoggerStopNoLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf syncBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	eb := event.NewEventBus(nil, logger)
	audit := event.NewAuditLogger(eb, logger)
	audit.Watch("test.audit")
	eb.Publish("test.audit", event.NewEvent("test.audit", "payload"))
	testutil.WaitForCondition(t, func() bool {
		return strings.Contains(buf.String(), "test.audit")
	}, 5*time.Second, "audit entry not logged")
	audit.Stop()
	eb.Stop()
	require.Contains(t, buf.String(), "test.audit")
}
