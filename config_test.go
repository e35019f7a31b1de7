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

package tally

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NotNil(t, cfg.logger)
	assert.Empty(t, cfg.dataDir)
	assert.Empty(t, cfg.apiListenAddress)
	assert.Nil(t, cfg.scheme)
	assert.Nil(t, cfg.oracle)
}

func TestNewConfigOptions(t *testing.T) {
	logger := slog.Default()
	cfg := NewConfig(
		WithLogger(logger),
		WithDatabasePath("/tmp/tally-test"),
		WithBlobPlugin("badger"),
		WithMetadataPlugin("sqlite"),
		WithCoordinatorIdentity("coordinator-1"),
		WithAdministrator("admin-1"),
		WithApiListenAddress("127.0.0.1:0"),
		WithCooldownSeconds(30),
		WithShutdownTimeout(5*time.Second),
	)
	assert.Equal(t, logger, cfg.logger)
	assert.Equal(t, "/tmp/tally-test", cfg.dataDir)
	assert.Equal(t, "badger", cfg.blobPlugin)
	assert.Equal(t, "sqlite", cfg.metadataPlugin)
	assert.Equal(t, "coordinator-1", cfg.identity)
	assert.Equal(t, "admin-1", cfg.administrator)
	assert.Equal(t, "127.0.0.1:0", cfg.apiListenAddress)
	assert.Equal(t, uint64(30), cfg.cooldownSeconds)
	assert.Equal(t, 5*time.Second, cfg.shutdownTimeout)
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	// Missing scheme
	_, err := New(NewConfig(
		WithCoordinatorIdentity("coordinator-1"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	// Missing identity
	scheme, devOracle := newTestSchemeAndOracle(t)
	defer devOracle.Stop()
	_, err = New(NewConfig(
		WithScheme(scheme),
		WithOracle(devOracle),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity")
}
