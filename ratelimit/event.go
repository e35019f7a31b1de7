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
	"github.com/blinklabs-io/tally/event"
)

const (
	CooldownChangedEventType event.EventType = "ratelimit.cooldown_changed"
)

// CooldownChangedEvent is published when the administrator changes the
// cooldown duration. It carries both the old and new values.
type CooldownChangedEvent struct {
	OldSeconds uint64
	NewSeconds uint64
}
