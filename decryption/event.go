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

package decryption

import (
	"github.com/blinklabs-io/tally/event"
)

const (
	DecryptionRequestedEventType event.EventType = "oracle.decryption_requested"
	DecryptionCompletedEventType event.EventType = "oracle.decryption_completed"
)

type DecryptionRequestedEvent struct {
	RequestId string
	BatchId   uint64
}

// DecryptionCompletedEvent reports the final decrypted summary for a batch.
// This is the only place cleartext aggregates ever appear; individual
// responses are never exposed.
type DecryptionCompletedEvent struct {
	RequestId string
	BatchId   uint64
	Count     uint64
	Sum       uint64
}
