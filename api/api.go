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
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package api implements the coordinator's REST API: the admin surface for
// access control and batch lifecycle, the submitter surface for encrypted
// responses, the oracle callback endpoint, and read endpoints for batches
// and decryption requests.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// APIConfig holds configuration for the API server.
type APIConfig struct {
	// ListenAddress is the host:port the HTTP server binds to.
	ListenAddress string
}

// API is the coordinator REST API server.
type API struct {
	config     APIConfig
	logger     *slog.Logger
	node       CoordinatorNode
	httpServer *http.Server
	listenAddr net.Addr
	mu         sync.Mutex
}

// New creates a new API server instance.
func New(
	cfg APIConfig,
	node CoordinatorNode,
	logger *slog.Logger,
) *API {
	if logger == nil {
		logger = slog.New(
			slog.NewJSONHandler(io.Discard, nil),
		)
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	return &API{
		config: cfg,
		logger: logger,
		node:   node,
	}
}

// routes builds the request mux. Split out from Start so handler tests can
// exercise routing and path parameters.
func (a *API) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /v1/status", a.handleStatus)

	// Admin surface
	mux.HandleFunc(
		"POST /v1/admin/transfer-ownership",
		a.handleTransferOwnership,
	)
	mux.HandleFunc(
		"POST /v1/admin/submitters/add",
		a.handleAddSubmitter,
	)
	mux.HandleFunc(
		"POST /v1/admin/submitters/remove",
		a.handleRemoveSubmitter,
	)
	mux.HandleFunc("POST /v1/admin/pause", a.handlePause)
	mux.HandleFunc("POST /v1/admin/cooldown", a.handleCooldown)
	mux.HandleFunc("POST /v1/admin/batches/open", a.handleOpenBatch)
	mux.HandleFunc("POST /v1/admin/batches/close", a.handleCloseBatch)
	mux.HandleFunc(
		"POST /v1/admin/decryption-requests",
		a.handleRequestDecryption,
	)

	// Submitter surface
	mux.HandleFunc(
		"POST /v1/batches/{batchId}/responses",
		a.handleSubmitResponses,
	)

	// Oracle surface
	mux.HandleFunc("POST /v1/oracle/callback", a.handleOracleCallback)

	// Read surface
	mux.HandleFunc("GET /v1/submitters", a.handleSubmitters)
	mux.HandleFunc("GET /v1/batches", a.handleBatches)
	mux.HandleFunc("GET /v1/batches/{batchId}", a.handleBatch)
	mux.HandleFunc(
		"GET /v1/batches/{batchId}/export",
		a.handleBatchExport,
	)
	mux.HandleFunc(
		"GET /v1/batches/{batchId}/decryption-requests",
		a.handleBatchDecryptionRequests,
	)
	mux.HandleFunc(
		"GET /v1/decryption-requests/{requestId}",
		a.handleDecryptionRequest,
	)

	return mux
}

// Start starts the HTTP server in a background goroutine.
func (a *API) Start(
	ctx context.Context,
) error {
	a.mu.Lock()
	if a.httpServer != nil {
		a.mu.Unlock()
		return errors.New("server already started")
	}

	server := &http.Server{
		Addr:              a.config.ListenAddress,
		Handler:           a.routes(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	a.httpServer = server
	a.mu.Unlock()

	// Start the server with deterministic error detection
	if err := a.startServer(server); err != nil {
		a.mu.Lock()
		a.httpServer = nil
		a.mu.Unlock()
		return err
	}

	a.logger.Info(
		"API listener started on " + a.config.ListenAddress,
	)

	// Monitor context for cancellation
	go func() {
		<-ctx.Done()
		a.mu.Lock()
		srv := a.httpServer
		a.httpServer = nil
		a.mu.Unlock()

		if srv != nil {
			a.logger.Debug(
				"context cancelled, shutting down API server",
			)
			//nolint:contextcheck
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				30*time.Second,
			)
			defer cancel()
			//nolint:contextcheck
			if err := srv.Shutdown(
				shutdownCtx,
			); err != nil {
				a.logger.Error(
					"failed to shutdown API server on "+
						"context cancellation",
					"error", err,
				)
			}
		}
	}()

	return nil
}

// ListenAddress returns the address the HTTP server is bound to, or empty
// if the server has not started. Useful when the configured address uses
// port 0.
func (a *API) ListenAddress() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listenAddr == nil {
		return ""
	}
	return a.listenAddr.String()
}

// Stop gracefully shuts down the HTTP server.
func (a *API) Stop(
	ctx context.Context,
) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.mu.Unlock()

	if srv != nil {
		a.logger.Debug("shutting down API server")
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf(
				"failed to shutdown API server: %w",
				err,
			)
		}
	}
	return nil
}

// startServer starts the HTTP server with deterministic error detection.
// It binds the listening socket first so port conflicts are detected
// immediately, then serves in a background goroutine.
func (a *API) startServer(
	server *http.Server,
) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf(
			"failed to listen for API server: %w",
			err,
		)
	}
	a.mu.Lock()
	a.listenAddr = ln.Addr()
	a.mu.Unlock()
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(
				"API server error",
				"error", err,
			)
		}
	}()
	return nil
}
