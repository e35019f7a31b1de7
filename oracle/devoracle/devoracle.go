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

// Package devoracle provides an in-process decryption oracle for development
// and testing. It decrypts with a Paillier private key and signs results
// with HMAC-SHA256 over a shared secret. It is NOT suitable for production:
// the party holding the private key must be separate from the coordinator.
package devoracle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/cipher/paillier"
	"github.com/blinklabs-io/tally/oracle"
	"github.com/google/uuid"
)

// Config holds configuration for the development oracle.
type Config struct {
	Logger *slog.Logger
	// PrivateKey is the Paillier private key used to decrypt submitted
	// ciphertexts.
	PrivateKey *paillier.PrivateKey
	// Secret is the shared secret used to sign and verify result proofs.
	Secret []byte
	// Delay is the simulated decryption latency before a result is
	// delivered to the callback. Zero delivers as soon as the delivery
	// goroutine is scheduled.
	Delay time.Duration
}

type result struct {
	cleartexts []uint64
	proof      []byte
}

// Oracle is a loopback decryption oracle. Results are delivered
// asynchronously to the registered callback and can also be fetched
// directly via Result for deterministic tests.
type Oracle struct {
	config   Config
	mu       sync.Mutex
	callback oracle.CallbackFunc
	results  map[string]result
	stopCh   chan struct{}
	stopped  bool
	wg       sync.WaitGroup
}

// New creates a development oracle from the given config.
func New(cfg Config) *Oracle {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Oracle{
		config:  cfg,
		results: make(map[string]result),
		stopCh:  make(chan struct{}),
	}
}

// SetCallback registers the function that receives asynchronous decryption
// results. It must be called before any request is expected to deliver.
func (o *Oracle) SetCallback(cb oracle.CallbackFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.callback = cb
}

// RequestDecryption decrypts the given ciphertexts with the configured
// private key, assigns a request id, and schedules asynchronous delivery of
// the result to the registered callback.
func (o *Oracle) RequestDecryption(
	ctx context.Context,
	ciphertexts []cipher.Ciphertext,
) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(ciphertexts) == 0 {
		return "", oracle.ErrEmptyRequest
	}
	if o.config.PrivateKey == nil {
		return "", fmt.Errorf("no private key configured")
	}
	cleartexts := make([]uint64, 0, len(ciphertexts))
	for _, ct := range ciphertexts {
		if len(ct) == 0 {
			return "", cipher.ErrInvalidCiphertext
		}
		m, err := o.config.PrivateKey.Decrypt(new(big.Int).SetBytes(ct))
		if err != nil {
			return "", fmt.Errorf("decrypt: %w", err)
		}
		if !m.IsUint64() {
			return "", fmt.Errorf(
				"decrypted value outside uint64 range",
			)
		}
		cleartexts = append(cleartexts, m.Uint64())
	}
	requestId := uuid.NewString()
	proof := oracle.ComputeHMACProof(o.config.Secret, requestId, cleartexts)
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return "", oracle.ErrStopped
	}
	o.results[requestId] = result{
		cleartexts: cleartexts,
		proof:      proof,
	}
	o.wg.Add(1)
	o.mu.Unlock()
	go o.deliver(requestId, cleartexts, proof)
	o.config.Logger.Debug(
		"decryption request accepted",
		"component", "devoracle",
		"request_id", requestId,
		"ciphertexts", len(ciphertexts),
	)
	return requestId, nil
}

// deliver waits out the configured delay and hands the result to the
// registered callback.
func (o *Oracle) deliver(
	requestId string,
	cleartexts []uint64,
	proof []byte,
) {
	defer o.wg.Done()
	if o.config.Delay > 0 {
		timer := time.NewTimer(o.config.Delay)
		defer timer.Stop()
		select {
		case <-o.stopCh:
			return
		case <-timer.C:
		}
	} else {
		select {
		case <-o.stopCh:
			return
		default:
		}
	}
	o.mu.Lock()
	cb := o.callback
	o.mu.Unlock()
	if cb == nil {
		o.config.Logger.Debug(
			"no callback registered, dropping result",
			"component", "devoracle",
			"request_id", requestId,
		)
		return
	}
	cb(requestId, cleartexts, proof)
}

// VerifyProof checks that the proof binds the request id and cleartexts
// under the shared secret. Unknown request ids return ErrUnknownRequestId.
func (o *Oracle) VerifyProof(
	ctx context.Context,
	requestId string,
	cleartexts []uint64,
	proof []byte,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	o.mu.Lock()
	_, ok := o.results[requestId]
	o.mu.Unlock()
	if !ok {
		return false, oracle.ErrUnknownRequestId
	}
	return oracle.VerifyHMACProof(
		o.config.Secret,
		requestId,
		cleartexts,
		proof,
	), nil
}

// Result returns the decrypted cleartexts and proof for a previously
// submitted request. It allows tests to drive callback delivery manually
// instead of waiting for the asynchronous path.
func (o *Oracle) Result(requestId string) ([]uint64, []byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, ok := o.results[requestId]
	if !ok {
		return nil, nil, oracle.ErrUnknownRequestId
	}
	return res.cleartexts, res.proof, nil
}

// Stop cancels pending deliveries and waits for delivery goroutines to
// finish. It is safe to call multiple times.
func (o *Oracle) Stop() {
	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		close(o.stopCh)
	}
	o.mu.Unlock()
	o.wg.Wait()
}

