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

// MigrateModels contains a list of model objects that should have DB migrations applied
var MigrateModels = []any{
	&AccessState{},
	&ActionUse{},
	&Batch{},
	&Cooldown{},
	&DecryptionRequest{},
	&Submission{},
	&Submitter{},
}

// Cooldown stores the configured cooldown duration applied to rate-limited
// actions. There is a single row with ID 1.
type Cooldown struct {
	ID      uint   `gorm:"primarykey"`
	Seconds uint64 `gorm:"not null"`
}

// TableName returns the table name for Cooldown.
func (Cooldown) TableName() string {
	return "cooldown"
}

// ActionUse records the last use of a rate-limited action by an identity.
// Each action kind is tracked independently.
type ActionUse struct {
	ID       uint   `gorm:"primarykey"`
	Action   string `gorm:"uniqueIndex:uniq_action_identity,priority:1;size:64;not null"`
	Identity string `gorm:"uniqueIndex:uniq_action_identity,priority:2;size:128;not null"`
	LastUse  int64  `gorm:"not null"` // Unix seconds
}

// TableName returns the table name for ActionUse.
func (ActionUse) TableName() string {
	return "action_use"
}
