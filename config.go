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
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/oracle"
	"github.com/prometheus/client_golang/prometheus"
)

type Config struct {
	promRegistry     prometheus.Registerer
	logger           *slog.Logger
	scheme           cipher.Scheme
	oracle           oracle.Oracle
	dataDir          string
	blobPlugin       string
	metadataPlugin   string
	identity         string
	administrator    string
	submitters       []string
	apiListenAddress string
	cooldownSeconds  uint64
	tracing          bool
	tracingStdout    bool
	shutdownTimeout  time.Duration
}

func (c *Coordinator) configValidate() error {
	if c.config.scheme == nil {
		return errors.New("no encryption scheme configured")
	}
	if c.config.oracle == nil {
		return errors.New("no decryption oracle configured")
	}
	if c.config.identity == "" {
		return errors.New("no coordinator identity configured")
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the
// Coordinator config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new tally config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger to use. This defaults to discarding log
// output
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithDatabasePath specifies the persistent data directory to use. The
// default is to store everything in memory
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithBlobPlugin specifies the blob storage plugin to use.
func WithBlobPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.blobPlugin = plugin
	}
}

// WithMetadataPlugin specifies the metadata storage plugin to use.
func WithMetadataPlugin(plugin string) ConfigOptionFunc {
	return func(c *Config) {
		c.metadataPlugin = plugin
	}
}

// WithPrometheusRegistry specifies a prometheus registerer for metrics.
// This defaults to not collecting metrics
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithScheme specifies the encrypted-arithmetic capability used to
// initialize and fold batch aggregates
func WithScheme(scheme cipher.Scheme) ConfigOptionFunc {
	return func(c *Config) {
		c.scheme = scheme
	}
}

// WithOracle specifies the external decryption oracle
func WithOracle(o oracle.Oracle) ConfigOptionFunc {
	return func(c *Config) {
		c.oracle = o
	}
}

// WithCoordinatorIdentity specifies this coordinator's own identity. It is
// folded into every decryption request's state fingerprint to prevent
// cross-deployment replay
func WithCoordinatorIdentity(identity string) ConfigOptionFunc {
	return func(c *Config) {
		c.identity = identity
	}
}

// WithAdministrator specifies the administrator identity to bootstrap on
// first start. Once persisted, the stored identity wins
func WithAdministrator(identity string) ConfigOptionFunc {
	return func(c *Config) {
		c.administrator = identity
	}
}

// WithSubmitters specifies submitter identities to register on startup.
// Registration runs as the administrator, so it requires one to be
// configured. Intended for dev mode
func WithSubmitters(identities ...string) ConfigOptionFunc {
	return func(c *Config) {
		c.submitters = identities
	}
}

// WithApiListenAddress specifies the host:port for the REST API listener
func WithApiListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = address
	}
}

// WithCooldownSeconds specifies the rate limiter cooldown to seed on first
// start. Once persisted, the stored value wins
func WithCooldownSeconds(seconds uint64) ConfigOptionFunc {
	return func(c *Config) {
		c.cooldownSeconds = seconds
	}
}

// WithTracing enables the OpenTelemetry tracing provider. Traces export
// via OTLP-over-HTTP by default, configured via the standard OTEL_
// environment variables
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout exports traces to stdout instead of OTLP
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. This
// defaults to 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
