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

// AccessState stores the current administrator identity and the pause flag.
// There is a single row with ID 1.
type AccessState struct {
	ID            uint   `gorm:"primarykey"`
	Administrator string `gorm:"size:128;not null"`
	Paused        bool   `gorm:"not null;default:false"`
}

// TableName returns the table name for AccessState.
func (AccessState) TableName() string {
	return "access_state"
}

// Submitter records an identity authorized to submit encrypted responses.
// Rows are never deleted; revoking a submitter clears the Active flag so
// the authorization history is preserved.
type Submitter struct {
	ID       uint   `gorm:"primarykey"`
	Identity string `gorm:"uniqueIndex;size:128;not null"`
	Active   bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for Submitter.
func (Submitter) TableName() string {
	return "submitter"
}
