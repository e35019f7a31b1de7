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

// Submission is an audit record for a single accepted response submission.
// It carries only the number of encrypted values accepted, never the
// ciphertext bytes themselves.
type Submission struct {
	ID         uint      `gorm:"primarykey"`
	BatchId    uint64    `gorm:"index;not null"`
	Submitter  string    `gorm:"index;size:128;not null"`
	Count      uint64    `gorm:"not null"`
	ReceivedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for Submission.
func (Submission) TableName() string {
	return "submission"
}
