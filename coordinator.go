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

// Package tally implements a coordinator for confidential survey tallies.
// Registered providers submit encrypted numeric responses into
// administrator-controlled batches; responses are aggregated
// homomorphically and only the sealed batch totals are ever decrypted,
// through an asynchronous round trip with an external decryption oracle.
package tally

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/access"
	"github.com/blinklabs-io/tally/aggregator"
	"github.com/blinklabs-io/tally/api"
	"github.com/blinklabs-io/tally/batch"
	"github.com/blinklabs-io/tally/database"
	"github.com/blinklabs-io/tally/decryption"
	"github.com/blinklabs-io/tally/event"
	"github.com/blinklabs-io/tally/oracle"
	"github.com/blinklabs-io/tally/ratelimit"
)

type Coordinator struct {
	eventBus      *event.EventBus
	db            *database.Database
	accessControl *access.AccessControl
	rateLimiter   *ratelimit.RateLimiter
	batchRegistry *batch.Registry
	aggregator    *aggregator.Aggregator
	decryption    *decryption.Client
	api           *api.API
	audit         *event.AuditLogger
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	shutdownOnce  sync.Once
	apiMu         sync.RWMutex
}

func New(cfg Config) (*Coordinator, error) {
	eventBus := event.NewEventBus(cfg.promRegistry, cfg.logger)
	c := &Coordinator{
		config:   cfg,
		eventBus: eventBus,
		done:     make(chan struct{}),
	}
	if err := c.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func (c *Coordinator) Run(ctx context.Context) error {
	// Configure tracing
	if c.config.tracing {
		if err := c.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:        c.config.dataDir,
		Logger:         c.config.logger,
		PromRegistry:   c.config.promRegistry,
		BlobPlugin:     c.config.blobPlugin,
		MetadataPlugin: c.config.metadataPlugin,
	})
	if db == nil {
		c.config.logger.Error(
			"failed to create database",
			"error",
			"empty database returned",
		)
		return errors.New("empty database returned")
	}
	c.db = db
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// Access control
	c.accessControl = access.New(access.AccessConfig{
		Logger:        c.config.logger,
		EventBus:      c.eventBus,
		PromRegistry:  c.config.promRegistry,
		Database:      c.db,
		Administrator: c.config.administrator,
	})
	if err := c.accessControl.Start(); err != nil {
		return fmt.Errorf("failed to start access control: %w", err)
	}
	// Seed configured submitters
	for _, identity := range c.config.submitters {
		if c.accessControl.IsSubmitter(identity) {
			continue
		}
		if err := c.accessControl.AddSubmitter(
			c.accessControl.Administrator(),
			identity,
		); err != nil {
			return fmt.Errorf("failed to register submitter: %w", err)
		}
	}
	// Rate limiter
	c.rateLimiter = ratelimit.New(ratelimit.RateLimiterConfig{
		Logger:          c.config.logger,
		EventBus:        c.eventBus,
		PromRegistry:    c.config.promRegistry,
		Database:        c.db,
		Access:          c.accessControl,
		CooldownSeconds: c.config.cooldownSeconds,
	})
	if err := c.rateLimiter.Start(); err != nil {
		return fmt.Errorf("failed to start rate limiter: %w", err)
	}
	// Batch registry
	c.batchRegistry = batch.New(batch.RegistryConfig{
		Logger:       c.config.logger,
		EventBus:     c.eventBus,
		PromRegistry: c.config.promRegistry,
		Database:     c.db,
		Access:       c.accessControl,
		Scheme:       c.config.scheme,
	})
	if err := c.batchRegistry.Start(); err != nil {
		return fmt.Errorf("failed to start batch registry: %w", err)
	}
	// Encrypted aggregator
	c.aggregator = aggregator.New(aggregator.AggregatorConfig{
		Logger:       c.config.logger,
		EventBus:     c.eventBus,
		PromRegistry: c.config.promRegistry,
		Database:     c.db,
		Access:       c.accessControl,
		RateLimiter:  c.rateLimiter,
		Scheme:       c.config.scheme,
	})
	// Decryption oracle client
	c.decryption = decryption.New(decryption.ClientConfig{
		Logger:              c.config.logger,
		EventBus:            c.eventBus,
		PromRegistry:        c.config.promRegistry,
		Database:            c.db,
		Access:              c.accessControl,
		RateLimiter:         c.rateLimiter,
		Oracle:              c.config.oracle,
		CoordinatorIdentity: c.config.identity,
	})
	if err := c.decryption.Start(); err != nil {
		return fmt.Errorf("failed to start decryption client: %w", err)
	}
	// Oracles that deliver results in-process (the development oracle)
	// are wired straight to the callback handler
	if loopback, ok := c.config.oracle.(interface {
		SetCallback(oracle.CallbackFunc)
	}); ok {
		loopback.SetCallback(c.handleOracleResult)
	}
	// Audit log of all coordinator state changes
	c.audit = event.NewAuditLogger(c.eventBus, c.config.logger)
	c.audit.Watch(
		access.OwnershipTransferEventType,
		access.SubmitterAddedEventType,
		access.SubmitterRemovedEventType,
		access.PauseChangedEventType,
		ratelimit.CooldownChangedEventType,
		batch.BatchOpenedEventType,
		batch.BatchClosedEventType,
		aggregator.ResponsesSubmittedEventType,
		decryption.DecryptionRequestedEventType,
		decryption.DecryptionCompletedEventType,
	)
	// REST API
	apiServer := api.New(
		api.APIConfig{
			ListenAddress: c.config.apiListenAddress,
		},
		api.NewNodeAdapter(
			c.accessControl,
			c.rateLimiter,
			c.batchRegistry,
			c.aggregator,
			c.decryption,
			c.db,
		),
		c.config.logger,
	)
	if err := apiServer.Start(ctx); err != nil {
		return err
	}
	c.apiMu.Lock()
	c.api = apiServer
	c.apiMu.Unlock()

	// Wait for shutdown signal
	<-c.done
	return nil
}

// ApiListenAddress returns the bound address of the REST API listener, or
// empty if the API has not started yet.
func (c *Coordinator) ApiListenAddress() string {
	c.apiMu.RLock()
	defer c.apiMu.RUnlock()
	if c.api == nil {
		return ""
	}
	return c.api.ListenAddress()
}

// handleOracleResult feeds an in-process oracle delivery through the same
// validation path as an external callback.
func (c *Coordinator) handleOracleResult(
	requestId string,
	cleartexts []uint64,
	proof []byte,
) {
	if err := c.decryption.OnDecryptionCallback(
		context.Background(),
		requestId,
		cleartexts,
		proof,
	); err != nil {
		c.config.logger.Error(
			"oracle result rejected",
			"component", "coordinator",
			"request_id", requestId,
			"error", err,
		)
	}
}

// Database returns the coordinator's database instance. Mainly useful for
// tests that need to inspect persisted state.
func (c *Coordinator) Database() *database.Database {
	return c.db
}

func (c *Coordinator) Stop() error {
	var err error
	c.shutdownOnce.Do(func() {
		err = c.shutdown()
	})
	return err
}

func (c *Coordinator) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if c.config.shutdownTimeout > 0 {
		shutdownTimeout = c.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	c.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	c.config.logger.Debug("shutdown phase 1: stopping new work")

	c.apiMu.RLock()
	apiServer := c.api
	c.apiMu.RUnlock()
	if apiServer != nil {
		if stopErr := apiServer.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Stop oracle deliveries
	c.config.logger.Debug("shutdown phase 2: stopping oracle deliveries")

	if stoppable, ok := c.config.oracle.(interface{ Stop() }); ok {
		stoppable.Stop()
	}

	// Phase 3: Cleanup resources
	c.config.logger.Debug("shutdown phase 3: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range c.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	c.shutdownFuncs = nil

	if c.audit != nil {
		c.audit.Stop()
	}
	if c.eventBus != nil {
		c.eventBus.Stop()
	}

	// Phase 4: Close database
	c.config.logger.Debug("shutdown phase 4: closing database")

	if c.db != nil {
		if closeErr := c.db.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("database close: %w", closeErr),
			)
		}
	}

	c.config.logger.Debug("graceful shutdown complete")
	close(c.done)
	return err
}
