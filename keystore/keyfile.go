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

package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/blinklabs-io/tally/cipher/paillier"
)

// Key file type identifiers.
const (
	keyTypeIdentity        = "TallyCoordinatorIdentity"
	keyTypeOracleSecret    = "TallyOracleSharedSecret"
	keyTypePaillierPublic  = "PaillierPublicKey"
	keyTypePaillierPrivate = "PaillierPrivateKey"
)

const (
	// identityBytes is the number of random bytes in a generated identity.
	identityBytes = 16
	// maxIdentityBytes bounds the identity read from a key file.
	maxIdentityBytes = 256
	// oracleSecretBytes is the size of a generated oracle shared secret.
	oracleSecretBytes = 32
	// minOracleSecretBytes is the smallest oracle secret accepted from a
	// key file. Anything shorter makes the callback HMAC guessable.
	minOracleSecretBytes = 16
)

// keyFileEnvelope represents the JSON structure of a tally key file.
// Flat key material (identity, oracle secret) is carried in Hex. Paillier
// keys carry their parameters as separate big-endian hex fields.
type keyFileEnvelope struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Hex         string `json:"hex,omitempty"`
	ModulusHex  string `json:"modulusHex,omitempty"`
	LambdaHex   string `json:"lambdaHex,omitempty"`
	MuHex       string `json:"muHex,omitempty"`
}

// loadedKey holds the parsed contents of a key file.
type loadedKey struct {
	Type        string
	Description string
	Payload     []byte
	// Paillier fields (only populated for Paillier key types)
	PaillierPub  *paillier.PublicKey
	PaillierPriv *paillier.PrivateKey
}

// loadKeyFromFile loads a secret key file.
// Returns ErrInsecureFileMode if the file has group or other access.
//
// The file is opened first and permissions are checked on the open handle
// (via fstat on Unix) to avoid a TOCTOU race between the permission check
// and the read.
func loadKeyFromFile(path string) (*loadedKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file %q: %w", path, err)
	}
	defer f.Close()

	if err := checkOpenFilePermissions(f); err != nil {
		return nil, err
	}

	// Limit read to 1 MiB to guard against accidentally pointing at a
	// large file. Valid key files are well under this size.
	const maxKeyFileSize = 1 << 20
	data, err := io.ReadAll(io.LimitReader(f, maxKeyFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %q: %w", path, err)
	}
	key, err := parseKeyEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %q: %w", path, err)
	}
	return key, nil
}

// loadPublicKeyFromFile loads a key file without checking file permissions.
// Unlike loadKeyFromFile, this is for files containing only public data
// (the coordinator identity, the Paillier public key) that do not require
// protection like secret keys.
func loadPublicKeyFromFile(path string) (*loadedKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %q: %w", path, err)
	}
	key, err := parseKeyEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %q: %w", path, err)
	}
	return key, nil
}

// parseKeyEnvelope parses a tally key file and validates the key material
// for its declared type.
func parseKeyEnvelope(fileBytes []byte) (*loadedKey, error) {
	var env keyFileEnvelope
	if err := json.Unmarshal(fileBytes, &env); err != nil {
		return nil, fmt.Errorf("could not parse key file envelope: %w", err)
	}

	lk := &loadedKey{
		Type:        env.Type,
		Description: env.Description,
	}

	switch env.Type {
	case keyTypeIdentity:
		payload, err := hex.DecodeString(env.Hex)
		if err != nil {
			return nil, fmt.Errorf("could not decode key from hex: %w", err)
		}
		if len(payload) == 0 {
			return nil, errors.New("coordinator identity is empty")
		}
		if len(payload) > maxIdentityBytes {
			return nil, fmt.Errorf(
				"coordinator identity too long: %d bytes, maximum %d",
				len(payload),
				maxIdentityBytes,
			)
		}
		lk.Payload = payload
		return lk, nil

	case keyTypeOracleSecret:
		payload, err := hex.DecodeString(env.Hex)
		if err != nil {
			return nil, fmt.Errorf("could not decode key from hex: %w", err)
		}
		if len(payload) < minOracleSecretBytes {
			return nil, fmt.Errorf(
				"oracle secret too short: %d bytes, minimum %d",
				len(payload),
				minOracleSecretBytes,
			)
		}
		lk.Payload = payload
		return lk, nil

	case keyTypePaillierPublic:
		n, err := decodeBigHex("modulusHex", env.ModulusHex)
		if err != nil {
			return nil, err
		}
		if n.BitLen() < paillier.MinKeyBits {
			return nil, fmt.Errorf(
				"paillier modulus too small: %d bits, minimum %d",
				n.BitLen(),
				paillier.MinKeyBits,
			)
		}
		lk.PaillierPub = paillier.NewPublicKey(n)
		return lk, nil

	case keyTypePaillierPrivate:
		n, err := decodeBigHex("modulusHex", env.ModulusHex)
		if err != nil {
			return nil, err
		}
		if n.BitLen() < paillier.MinKeyBits {
			return nil, fmt.Errorf(
				"paillier modulus too small: %d bits, minimum %d",
				n.BitLen(),
				paillier.MinKeyBits,
			)
		}
		lambda, err := decodeBigHex("lambdaHex", env.LambdaHex)
		if err != nil {
			return nil, err
		}
		mu, err := decodeBigHex("muHex", env.MuHex)
		if err != nil {
			return nil, err
		}
		lk.PaillierPriv = paillier.NewPrivateKey(n, lambda, mu)
		lk.PaillierPub = &lk.PaillierPriv.PublicKey
		return lk, nil

	default:
		return nil, fmt.Errorf("unknown key type: %s", env.Type)
	}
}

// decodeBigHex decodes a big-endian hex field into a positive big integer.
func decodeBigHex(field string, value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("missing %s", field)
	}
	data, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("could not decode %s from hex: %w", field, err)
	}
	n := new(big.Int).SetBytes(data)
	if n.Sign() <= 0 {
		return nil, fmt.Errorf("invalid %s: must be positive", field)
	}
	return n, nil
}

// writeKeyFile writes a key file as indented JSON. The file is created with
// mode 0600 and an existing file is never overwritten.
func writeKeyFile(path string, env keyFileEnvelope) error {
	data, err := json.MarshalIndent(env, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode key file %q: %w", path, err)
	}
	data = append(data, '\n')
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write key file %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write key file %q: %w", path, err)
	}
	return nil
}
