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

package node

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	tally "github.com/blinklabs-io/tally"
	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/cipher/paillier"
	"github.com/blinklabs-io/tally/internal/config"
	"github.com/blinklabs-io/tally/keystore"
	"github.com/blinklabs-io/tally/oracle"
	"github.com/blinklabs-io/tally/oracle/devoracle"
	"github.com/blinklabs-io/tally/oracle/remote"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// devPaillierKeyBits keeps dev mode startup fast. Nothing in dev mode is
// secret, so the smaller modulus is acceptable there and only there.
const devPaillierKeyBits = 1024

// credentials holds everything Run derives from key material.
type credentials struct {
	identity string
	scheme   cipher.Scheme
	oracle   oracle.Oracle
}

// loadCredentials loads the coordinator identity and key material from the
// configured key files and builds the remote oracle client.
func loadCredentials(
	cfg *config.Config,
	logger *slog.Logger,
) (*credentials, error) {
	ks := keystore.NewKeyStore(keystore.KeyStoreConfig{
		IdentityPath:          cfg.IdentityKeyPath(),
		OracleSecretPath:      cfg.OracleSecretPath(),
		PaillierPublicKeyPath: cfg.PaillierPublicKeyPath(),
		Logger:                logger,
	})
	if err := ks.LoadFromFiles(); err != nil {
		return nil, fmt.Errorf(
			"failed to load key material (run 'tally keygen' to create it): %w",
			err,
		)
	}
	identity, err := ks.CoordinatorIdentity()
	if err != nil {
		return nil, err
	}
	secret, err := ks.OracleSecret()
	if err != nil {
		return nil, err
	}
	pub, err := ks.PaillierPublicKey()
	if err != nil {
		return nil, err
	}
	if cfg.OracleUrl == "" {
		return nil, fmt.Errorf("no oracle URL configured")
	}
	callbackUrl := cfg.OracleCallbackUrl
	if callbackUrl == "" {
		callbackUrl = fmt.Sprintf(
			"http://%s:%d/v1/oracle/callback",
			cfg.BindAddr,
			cfg.ApiPort,
		)
	}
	return &credentials{
		identity: identity,
		scheme:   paillier.NewScheme(pub),
		oracle: remote.New(remote.Config{
			Logger:      logger,
			BaseURL:     cfg.OracleUrl,
			CallbackURL: callbackUrl,
			Secret:      secret,
		}),
	}, nil
}

// devCredentials generates an ephemeral credential set and a loopback
// oracle holding the private key. Nothing is written to disk.
func devCredentials(logger *slog.Logger) (*credentials, error) {
	keys, err := keystore.Generate(rand.Reader, devPaillierKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dev keys: %w", err)
	}
	logger.Info(
		"generated ephemeral dev credentials",
		"component", "node",
		"identity", keys.Identity,
	)
	return &credentials{
		identity: keys.Identity,
		scheme:   paillier.NewScheme(&keys.PaillierKey.PublicKey),
		oracle: devoracle.New(devoracle.Config{
			Logger:     logger,
			PrivateKey: keys.PaillierKey,
			Secret:     keys.OracleSecret,
		}),
	}, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	var creds *credentials
	var err error
	if cfg.RunMode.IsDevMode() {
		creds, err = devCredentials(logger)
	} else {
		creds, err = loadCredentials(cfg, logger)
	}
	if err != nil {
		return err
	}
	administrator := cfg.Administrator
	var submitters []string
	if cfg.RunMode.IsDevMode() {
		// Dev mode needs usable identities out of the box
		if administrator == "" {
			administrator = "dev-admin"
		}
		submitters = []string{"dev-submitter"}
		logger.Info(
			"using dev identities",
			"component", "node",
			"administrator", administrator,
			"submitters", submitters,
		)
	}
	// Dev mode keeps everything in memory
	databasePath := cfg.DatabasePath
	if cfg.RunMode.IsDevMode() {
		databasePath = ""
	}

	// Parse shutdown timeout
	shutdownTimeout := 30 * time.Second // Default timeout
	if cfg.ShutdownTimeout != "" {
		var err error
		shutdownTimeout, err = time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}

	coordinator, err := tally.New(
		tally.NewConfig(
			tally.WithLogger(logger),
			tally.WithDatabasePath(databasePath),
			tally.WithBlobPlugin(cfg.BlobPlugin),
			tally.WithMetadataPlugin(cfg.MetadataPlugin),
			tally.WithScheme(creds.scheme),
			tally.WithOracle(creds.oracle),
			tally.WithCoordinatorIdentity(creds.identity),
			tally.WithAdministrator(administrator),
			tally.WithSubmitters(submitters...),
			tally.WithApiListenAddress(fmt.Sprintf(
				"%s:%d",
				cfg.BindAddr,
				cfg.ApiPort,
			)),
			tally.WithCooldownSeconds(cfg.CooldownSeconds),
			tally.WithShutdownTimeout(shutdownTimeout),
			tally.WithTracing(cfg.Tracing),
			tally.WithTracingStdout(cfg.TracingStdout),
			// Enable metrics with default prometheus registry
			tally.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		),
	)
	if err != nil {
		return err
	}
	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component",
		"node",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "node",
			)
			os.Exit(1)
		}
	}()
	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	// Run coordinator in goroutine
	errChan := make(chan error, 1)
	go func() {
		//nolint:contextcheck
		err := coordinator.Run(signalCtx)
		select {
		case errChan <- err:
		case <-signalCtx.Done():
		}
	}()

	// Wait for signal or error
	select {
	case <-signalCtx.Done():
		logger.Info("signal received, initiating graceful shutdown")

		// Shutdown metrics server
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}

		// Shutdown coordinator
		if err := coordinator.Stop(); err != nil {
			logger.Error("shutdown errors occurred", "error", err)
			return err
		}
		logger.Info("shutdown complete")
		return nil

	case err := <-errChan:
		if err == nil {
			logger.Info("coordinator stopped")
			shutdownCtx, cancel := context.WithTimeout(
				context.Background(),
				shutdownTimeout,
			)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
			if err := coordinator.Stop(); err != nil {
				logger.Error("shutdown errors occurred", "error", err)
				return err
			}
			return nil
		}
		logger.Error("coordinator error", "error", err)
		signalCtxStop()

		// Shutdown coordinator resources
		if stopErr := coordinator.Stop(); stopErr != nil {
			logger.Error(
				"shutdown errors occurred during error cleanup",
				"error",
				stopErr,
			)
		}

		// Cleanup on error
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Error("metrics server shutdown error", "error", shutdownErr)
		}

		return err
	}
}
