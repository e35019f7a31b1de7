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

package aws

import "testing"

func TestNewFromCmdlineOptions(t *testing.T) {
	// Save original options
	cmdlineOptionsMutex.Lock()
	originalOptions := cmdlineOptions
	cmdlineOptions.bucket = "test-bucket"
	cmdlineOptions.region = "us-east-1"
	cmdlineOptions.prefix = "test-prefix"
	cmdlineOptionsMutex.Unlock()
	defer func() {
		cmdlineOptionsMutex.Lock()
		cmdlineOptions = originalOptions
		cmdlineOptionsMutex.Unlock()
	}()

	// Construction defers AWS config loading to Start(), so this should
	// succeed without credentials
	p := NewFromCmdlineOptions()
	if p == nil {
		t.Error("Expected plugin to be created, got nil")
	}
}

func TestNewRequiresS3Path(t *testing.T) {
	_, err := New("/not/an/s3/path", nil, nil)
	if err == nil {
		t.Error("Expected error for non-s3 dataDir, got nil")
	}
	_, err = New("s3://", nil, nil)
	if err == nil {
		t.Error("Expected error for missing bucket, got nil")
	}
}

func TestNewParsesBucketAndPrefix(t *testing.T) {
	db, err := New("s3://my-bucket/some/prefix", nil, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if db.bucket != "my-bucket" {
		t.Errorf("Expected bucket 'my-bucket', got '%s'", db.bucket)
	}
	if db.prefix != "some/prefix/" {
		t.Errorf("Expected prefix 'some/prefix/', got '%s'", db.prefix)
	}
}
