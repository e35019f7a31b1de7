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

// Package remote implements the oracle interface over HTTP. Decryption
// requests are submitted as JSON to an external oracle service, which
// later delivers results to the coordinator's callback endpoint. Result
// proofs are HMAC-SHA256 over a secret shared with the oracle, so proof
// verification happens locally without another round trip.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/blinklabs-io/tally/cipher"
	"github.com/blinklabs-io/tally/oracle"
)

const requestTimeout = 30 * time.Second

// Config holds configuration for the remote oracle client.
type Config struct {
	Logger *slog.Logger
	// BaseURL is the oracle service base URL.
	BaseURL string
	// CallbackURL is advertised to the oracle as the delivery endpoint
	// for decryption results.
	CallbackURL string
	// Secret is the shared secret used to verify result proofs.
	Secret []byte
}

// Client submits decryption requests to a remote oracle service.
type Client struct {
	config     Config
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom *http.Client. Used in tests to avoid
// real network access.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a remote oracle client from the given config.
func New(cfg Config, opts ...ClientOption) *Client {
	if cfg.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type decryptionRequest struct {
	// Ciphertexts are base64-encoded in submission order
	Ciphertexts []string `json:"ciphertexts"`
	CallbackUrl string   `json:"callbackUrl,omitempty"`
}

type decryptionResponse struct {
	RequestId string `json:"requestId"`
}

// RequestDecryption submits the ciphertexts to the oracle service and
// returns the oracle-assigned request id. The cleartexts arrive later at
// the configured callback URL.
func (c *Client) RequestDecryption(
	ctx context.Context,
	ciphertexts []cipher.Ciphertext,
) (string, error) {
	if len(ciphertexts) == 0 {
		return "", oracle.ErrEmptyRequest
	}
	reqBody := decryptionRequest{
		Ciphertexts: make([]string, 0, len(ciphertexts)),
		CallbackUrl: c.config.CallbackURL,
	}
	for _, ct := range ciphertexts {
		if len(ct) == 0 {
			return "", cipher.ErrInvalidCiphertext
		}
		reqBody.Ciphertexts = append(
			reqBody.Ciphertexts,
			base64.StdEncoding.EncodeToString(ct),
		)
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal decryption request: %w", err)
	}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.config.BaseURL+"/v1/decrypt",
		bytes.NewReader(payload),
	)
	if err != nil {
		return "", fmt.Errorf("build decryption request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit decryption request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK &&
		resp.StatusCode != http.StatusAccepted {
		// Read a bounded amount of the body for the error message
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf(
			"oracle returned status %d: %s",
			resp.StatusCode,
			strings.TrimSpace(string(body)),
		)
	}
	var respBody decryptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return "", fmt.Errorf("decode oracle response: %w", err)
	}
	if respBody.RequestId == "" {
		return "", fmt.Errorf("oracle returned empty request id")
	}
	c.config.Logger.Debug(
		"decryption request submitted",
		"component", "oracle",
		"request_id", respBody.RequestId,
		"ciphertexts", len(ciphertexts),
	)
	return respBody.RequestId, nil
}

// VerifyProof checks the shared-secret HMAC proof attached to a callback.
// Verification is local; malformed input fails closed.
func (c *Client) VerifyProof(
	ctx context.Context,
	requestId string,
	cleartexts []uint64,
	proof []byte,
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if requestId == "" || len(proof) == 0 {
		return false, nil
	}
	return oracle.VerifyHMACProof(
		c.config.Secret,
		requestId,
		cleartexts,
		proof,
	), nil
}
