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
	"github.com/blinklabs-io/tally/event"
)

const (
	OwnershipTransferEventType event.EventType = "access.ownership_transfer"
	SubmitterAddedEventType    event.EventType = "access.submitter_added"
	SubmitterRemovedEventType  event.EventType = "access.submitter_removed"
	PauseChangedEventType      event.EventType = "access.pause_changed"
)

// OwnershipTransferEvent is emitted when the administrator identity changes
type OwnershipTransferEvent struct {
	Previous string
	New      string
}

// SubmitterAddedEvent is emitted when an identity is granted submit access.
// Idempotent re-adds of an existing submitter do not emit it.
type SubmitterAddedEvent struct {
	Identity string
}

// SubmitterRemovedEvent is emitted when an identity's submit access is
// revoked. Removing an identity that was never registered does not emit it.
type SubmitterRemovedEvent struct {
	Identity string
}

// PauseChangedEvent is emitted when the coordinator-wide pause flag flips
type PauseChangedEvent struct {
	Paused bool
}
