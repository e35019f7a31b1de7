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

package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"

	"github.com/blinklabs-io/tally/internal/config"
	"github.com/blinklabs-io/tally/keystore"
	"github.com/spf13/cobra"
)

var keygenFlags = struct {
	bits            int
	writePrivateKey bool
}{}

func keygenRun(_ *cobra.Command, _ []string, cfg *config.Config) {
	logger := commonRun()

	keys, err := keystore.Generate(rand.Reader, keygenFlags.bits)
	if err != nil {
		slog.Error(fmt.Sprintf("failed to generate keys: %s", err))
		os.Exit(1)
	}
	ksConfig := keystore.KeyStoreConfig{
		IdentityPath:          cfg.IdentityKeyPath(),
		OracleSecretPath:      cfg.OracleSecretPath(),
		PaillierPublicKeyPath: cfg.PaillierPublicKeyPath(),
		Logger:                logger,
	}
	if keygenFlags.writePrivateKey {
		ksConfig.PaillierPrivateKeyPath = cfg.PaillierPrivateKeyPath()
	}
	if err := keys.WriteFiles(ksConfig); err != nil {
		slog.Error(fmt.Sprintf("failed to write key files: %s", err))
		os.Exit(1)
	}
	logger.Info(
		"generated coordinator credentials",
		"component", programName,
		"identity", keys.Identity,
		"identity_file", ksConfig.IdentityPath,
		"oracle_secret_file", ksConfig.OracleSecretPath,
		"paillier_public_key_file", ksConfig.PaillierPublicKeyPath,
	)
	if keygenFlags.writePrivateKey {
		logger.Warn(
			"wrote paillier private key; move it to the decryption oracle and delete the local copy",
			"component", programName,
			"paillier_private_key_file", ksConfig.PaillierPrivateKeyPath,
		)
	}
}

func keygenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate coordinator identity and key material",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			keygenRun(cmd, args, cfg)
		},
	}
	cmd.Flags().
		IntVar(&keygenFlags.bits, "bits", 0, "paillier key size in bits, 0 for default")
	cmd.Flags().
		BoolVar(&keygenFlags.writePrivateKey, "write-private-key", false, "also write the paillier private key (for handoff to the decryption oracle)")
	return cmd
}
