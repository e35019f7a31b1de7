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

// Package keystore provides credential management for the tally coordinator.
// It loads the coordinator identity, the shared secret used to authenticate
// the decryption oracle, and the Paillier keys backing the aggregate cipher
// from JSON key files, enforcing restrictive permissions on secret material.
package keystore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/tally/cipher/paillier"
)

// Common errors returned by KeyStore operations.
var (
	ErrKeysNotLoaded    = errors.New("keys not loaded")
	ErrNoPrivateKey     = errors.New("paillier private key not loaded")
	ErrInsecureFileMode = errors.New("insecure file permissions")
)

// KeyStoreConfig holds configuration for the KeyStore.
type KeyStoreConfig struct {
	// IdentityPath is the path to the coordinator identity file.
	IdentityPath string
	// OracleSecretPath is the path to the oracle shared secret file.
	OracleSecretPath string
	// PaillierPublicKeyPath is the path to the Paillier public key file.
	PaillierPublicKeyPath string
	// PaillierPrivateKeyPath is the path to the Paillier private key file.
	// The private key normally lives with the decryption oracle, not the
	// coordinator. It is only loaded here to run the built-in development
	// oracle.
	PaillierPrivateKeyPath string
	// Logger for keystore events.
	Logger *slog.Logger
}

// KeyStore manages coordinator credentials.
type KeyStore struct {
	config KeyStoreConfig
	logger *slog.Logger

	// Credentials
	identity     string
	oracleSecret []byte
	paillierPub  *paillier.PublicKey
	paillierPriv *paillier.PrivateKey

	// State
	mu     sync.RWMutex
	loaded bool
}

// NewKeyStore creates a new KeyStore with the given configuration.
func NewKeyStore(config KeyStoreConfig) *KeyStore {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &KeyStore{
		config: config,
		logger: config.Logger.With("component", "keystore"),
	}
}

// LoadFromFiles loads all coordinator credentials from the configured file
// paths. The identity and Paillier public key files contain only public
// data; the oracle secret and Paillier private key files must not be
// readable by group or other.
func (ks *KeyStore) LoadFromFiles() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.config.IdentityPath == "" {
		return errors.New("no coordinator identity file configured")
	}
	if ks.config.OracleSecretPath == "" {
		return errors.New("no oracle secret file configured")
	}
	if ks.config.PaillierPublicKeyPath == "" {
		return errors.New("no paillier public key file configured")
	}

	// Load coordinator identity
	identityKey, err := loadPublicKeyFromFile(ks.config.IdentityPath)
	if err != nil {
		return fmt.Errorf("failed to load coordinator identity: %w", err)
	}
	if identityKey.Type != keyTypeIdentity {
		return fmt.Errorf(
			"expected %s in %q, got %s",
			keyTypeIdentity,
			ks.config.IdentityPath,
			identityKey.Type,
		)
	}
	ks.identity = string(identityKey.Payload)

	// Load oracle shared secret
	secretKey, err := loadKeyFromFile(ks.config.OracleSecretPath)
	if err != nil {
		return fmt.Errorf("failed to load oracle secret: %w", err)
	}
	if secretKey.Type != keyTypeOracleSecret {
		return fmt.Errorf(
			"expected %s in %q, got %s",
			keyTypeOracleSecret,
			ks.config.OracleSecretPath,
			secretKey.Type,
		)
	}
	ks.oracleSecret = secretKey.Payload

	// Load Paillier public key
	pubKey, err := loadPublicKeyFromFile(ks.config.PaillierPublicKeyPath)
	if err != nil {
		return fmt.Errorf("failed to load paillier public key: %w", err)
	}
	if pubKey.Type != keyTypePaillierPublic {
		return fmt.Errorf(
			"expected %s in %q, got %s",
			keyTypePaillierPublic,
			ks.config.PaillierPublicKeyPath,
			pubKey.Type,
		)
	}
	ks.paillierPub = pubKey.PaillierPub

	// Load Paillier private key (development oracle only)
	ks.paillierPriv = nil
	if ks.config.PaillierPrivateKeyPath != "" {
		privKey, err := loadKeyFromFile(ks.config.PaillierPrivateKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load paillier private key: %w", err)
		}
		if privKey.Type != keyTypePaillierPrivate {
			return fmt.Errorf(
				"expected %s in %q, got %s",
				keyTypePaillierPrivate,
				ks.config.PaillierPrivateKeyPath,
				privKey.Type,
			)
		}
		if privKey.PaillierPriv.N.Cmp(ks.paillierPub.N) != 0 {
			return errors.New(
				"paillier private key does not match public key: " +
					"ensure both files were generated together",
			)
		}
		ks.paillierPriv = privKey.PaillierPriv
	}

	ks.loaded = true

	ks.logger.Info(
		"coordinator credentials loaded",
		"identity", ks.identity,
		"paillier_bits", ks.paillierPub.N.BitLen(),
		"has_private_key", ks.paillierPriv != nil,
	)

	return nil
}

// IsLoaded returns true if credentials have been loaded.
func (ks *KeyStore) IsLoaded() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.loaded
}

// CoordinatorIdentity returns the coordinator identity string. The identity
// is folded into decryption request fingerprints so that a callback produced
// for one coordinator cannot finalize a request on another.
func (ks *KeyStore) CoordinatorIdentity() (string, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if !ks.loaded {
		return "", ErrKeysNotLoaded
	}
	return ks.identity, nil
}

// OracleSecret returns a copy of the shared secret used to authenticate
// decryption oracle callbacks.
func (ks *KeyStore) OracleSecret() ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if !ks.loaded {
		return nil, ErrKeysNotLoaded
	}
	secret := make([]byte, len(ks.oracleSecret))
	copy(secret, ks.oracleSecret)
	return secret, nil
}

// PaillierPublicKey returns the Paillier public key backing the aggregate
// cipher scheme.
func (ks *KeyStore) PaillierPublicKey() (*paillier.PublicKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if !ks.loaded {
		return nil, ErrKeysNotLoaded
	}
	return ks.paillierPub, nil
}

// HasPrivateKey returns true if a Paillier private key was loaded.
func (ks *KeyStore) HasPrivateKey() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.paillierPriv != nil
}

// PaillierPrivateKey returns the Paillier private key for the development
// oracle. Returns ErrNoPrivateKey when the keystore was loaded without one.
func (ks *KeyStore) PaillierPrivateKey() (*paillier.PrivateKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if !ks.loaded {
		return nil, ErrKeysNotLoaded
	}
	if ks.paillierPriv == nil {
		return nil, ErrNoPrivateKey
	}
	return ks.paillierPriv, nil
}

// GeneratedKeys holds a freshly generated coordinator credential set.
type GeneratedKeys struct {
	Identity     string
	OracleSecret []byte
	PaillierKey  *paillier.PrivateKey
}

// Generate creates a new coordinator credential set: a random identity, a
// random oracle shared secret, and a Paillier keypair of the given bit size
// (paillier.DefaultKeyBits when 0).
func Generate(random io.Reader, paillierBits int) (*GeneratedKeys, error) {
	if paillierBits == 0 {
		paillierBits = paillier.DefaultKeyBits
	}
	identity := make([]byte, identityBytes)
	if _, err := io.ReadFull(random, identity); err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}
	secret := make([]byte, oracleSecretBytes)
	if _, err := io.ReadFull(random, secret); err != nil {
		return nil, fmt.Errorf("failed to read randomness: %w", err)
	}
	paillierKey, err := paillier.GenerateKey(random, paillierBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate paillier key: %w", err)
	}
	return &GeneratedKeys{
		Identity:     hex.EncodeToString(identity),
		OracleSecret: secret,
		PaillierKey:  paillierKey,
	}, nil
}

// WriteFiles writes the generated credentials to the paths in config. Files
// are created with mode 0600 and existing files are never overwritten. The
// Paillier private key is only written when PaillierPrivateKeyPath is set.
func (g *GeneratedKeys) WriteFiles(config KeyStoreConfig) error {
	if config.IdentityPath == "" {
		return errors.New("no coordinator identity file configured")
	}
	if config.OracleSecretPath == "" {
		return errors.New("no oracle secret file configured")
	}
	if config.PaillierPublicKeyPath == "" {
		return errors.New("no paillier public key file configured")
	}
	if err := writeKeyFile(config.IdentityPath, keyFileEnvelope{
		Type:        keyTypeIdentity,
		Description: "Survey Tally Coordinator Identity",
		Hex:         hex.EncodeToString([]byte(g.Identity)),
	}); err != nil {
		return err
	}
	if err := writeKeyFile(config.OracleSecretPath, keyFileEnvelope{
		Type:        keyTypeOracleSecret,
		Description: "Decryption Oracle Shared Secret",
		Hex:         hex.EncodeToString(g.OracleSecret),
	}); err != nil {
		return err
	}
	if err := writeKeyFile(config.PaillierPublicKeyPath, keyFileEnvelope{
		Type:        keyTypePaillierPublic,
		Description: "Paillier Public Key",
		ModulusHex:  hex.EncodeToString(g.PaillierKey.N.Bytes()),
	}); err != nil {
		return err
	}
	if config.PaillierPrivateKeyPath != "" {
		if err := writeKeyFile(config.PaillierPrivateKeyPath, keyFileEnvelope{
			Type:        keyTypePaillierPrivate,
			Description: "Paillier Private Key",
			ModulusHex:  hex.EncodeToString(g.PaillierKey.N.Bytes()),
			LambdaHex:   hex.EncodeToString(g.PaillierKey.Lambda.Bytes()),
			MuHex:       hex.EncodeToString(g.PaillierKey.Mu.Bytes()),
		}); err != nil {
			return err
		}
	}
	return nil
}
