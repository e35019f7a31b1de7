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

package models

import "time"

// Batch records a collection round for encrypted responses. Batch identifiers
// are assigned sequentially starting at 1, and batches are never deleted. The
// encrypted aggregates for a batch live in the blob store keyed on BatchId.
type Batch struct {
	ID          uint       `gorm:"primarykey"`
	BatchId     uint64     `gorm:"uniqueIndex;not null"`
	Open        bool       `gorm:"not null;default:true"`
	Submissions uint64     `gorm:"not null;default:0"` // total encrypted values accumulated
	OpenedAt    time.Time  `gorm:"not null"`
	ClosedAt    *time.Time `gorm:""`
}

// TableName returns the table name for Batch.
func (Batch) TableName() string {
	return "batch"
}
