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

package types

import "fmt"

const (
	AggregateCountKeyPrefix = "aggregate_count_"
	AggregateSumKeyPrefix   = "aggregate_sum_"
)

// AggregateCountKey returns the blob store key for a batch's encrypted
// response count.
func AggregateCountKey(batchId uint64) []byte {
	return fmt.Appendf(nil, "%s%d", AggregateCountKeyPrefix, batchId)
}

// AggregateSumKey returns the blob store key for a batch's encrypted
// response sum.
func AggregateSumKey(batchId uint64) []byte {
	return fmt.Appendf(nil, "%s%d", AggregateSumKeyPrefix, batchId)
}
