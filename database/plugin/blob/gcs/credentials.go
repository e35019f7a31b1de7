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

package gcs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ValidateCredentials checks that the configured credentials file exists and
// is readable. An empty path is valid: the client falls back to application
// default credentials.
func ValidateCredentials(credentialsFile string) error {
	if credentialsFile == "" {
		return nil
	}
	fi, err := os.Stat(credentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf(
				"GCS credentials file does not exist: %s",
				credentialsFile,
			)
		}
		return fmt.Errorf("failed to stat GCS credentials file: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf(
			"GCS credentials path is a directory: %s",
			credentialsFile,
		)
	}
	return nil
}
