// Package jito submits transaction bundles to Jito block engines. Bundles
// land atomically and in order, or not at all; the first transaction is
// expected to carry a tip transfer to one of the fixed tip accounts.
package jito

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	jitorpc "github.com/jito-labs/jito-go-rpc"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kato0x/pump-bundler/pkg/config"
	"github.com/kato0x/pump-bundler/pkg/types"
)

// MainnetBlockEngines lists the Jito block-engine endpoints a broadcast
// fans out to. Geographic spread raises the odds of fast inclusion.
var MainnetBlockEngines = []string{
	"https://mainnet.block-engine.jito.wtf/api/v1",
	"https://amsterdam.mainnet.block-engine.jito.wtf/api/v1",
	"https://frankfurt.mainnet.block-engine.jito.wtf/api/v1",
	"https://london.mainnet.block-engine.jito.wtf/api/v1",
	"https://ny.mainnet.block-engine.jito.wtf/api/v1",
	"https://tokyo.mainnet.block-engine.jito.wtf/api/v1",
}

// MainnetTipAccounts are the fixed Jito tip accounts. Picking one at random
// per submission spreads write-lock contention across bundles.
var MainnetTipAccounts = []solana.PublicKey{
	solana.MustPublicKeyFromBase58("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	solana.MustPublicKeyFromBase58("HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe"),
	solana.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	solana.MustPublicKeyFromBase58("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	solana.MustPublicKeyFromBase58("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	solana.MustPublicKeyFromBase58("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	solana.MustPublicKeyFromBase58("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	solana.MustPublicKeyFromBase58("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

// RandomTipAccount returns a tip account from the fixed pool without any
// network call.
func RandomTipAccount() solana.PublicKey {
	return MainnetTipAccounts[rand.Intn(len(MainnetTipAccounts))]
}

// SubmitResult records one endpoint's acceptance of a bundle.
type SubmitResult struct {
	Endpoint string
	BundleID string
}

// Client submits bundles either round-robin through one endpoint at a time
// or broadcast to all endpoints concurrently.
type Client struct {
	endpoints    []string
	uuid         string
	broadcast    bool
	httpc        *http.Client
	log          zerolog.Logger
	currentIndex uint32
	maxRetries   int
	retryDelay   time.Duration
}

// NewClient builds a relay client from config.
func NewClient(cfg config.RelayConfig, log zerolog.Logger) *Client {
	endpoints := cfg.Endpoints
	if len(endpoints) == 0 {
		endpoints = MainnetBlockEngines
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoints:  endpoints,
		uuid:       cfg.UUID,
		broadcast:  cfg.Broadcast,
		httpc:      &http.Client{Timeout: timeout},
		log:        log,
		maxRetries: len(endpoints) + 2,
		retryDelay: 100 * time.Millisecond,
	}
}

// Submit sends a bundle per the configured fan-out mode.
func (c *Client) Submit(ctx context.Context, txs []*solana.Transaction) ([]SubmitResult, error) {
	if c.broadcast {
		return c.BroadcastBundle(ctx, txs)
	}
	res, err := c.sendBundleRotating(ctx, txs)
	if err != nil {
		return nil, err
	}
	return []SubmitResult{res}, nil
}

// SendBundle submits through one endpoint, rotating and retrying on rate
// limits.
func (c *Client) SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error) {
	res, err := c.sendBundleRotating(ctx, txs)
	return res.BundleID, err
}

// sendBundleRotating walks the endpoint ring until one accepts. The result
// names the endpoint that actually took the bundle, not whichever the ring
// points at afterwards.
func (c *Client) sendBundleRotating(ctx context.Context, txs []*solana.Transaction) (SubmitResult, error) {
	encoded, err := encodeBundle(txs)
	if err != nil {
		return SubmitResult{}, err
	}

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return SubmitResult{}, err
		}
		client, endpoint := c.getNextClient()
		rawResp, err := client.SendBundle([][]string{encoded})
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				time.Sleep(c.retryDelay)
				continue
			}
			return SubmitResult{}, fmt.Errorf("jito send bundle: %w", err)
		}
		var bundleID string
		if err := json.Unmarshal(rawResp, &bundleID); err != nil {
			return SubmitResult{}, fmt.Errorf("unmarshal bundle response: %w", err)
		}
		return SubmitResult{Endpoint: endpoint, BundleID: bundleID}, nil
	}
	return SubmitResult{}, fmt.Errorf("jito send bundle failed after %d retries: %w", c.maxRetries, lastErr)
}

// BroadcastBundle POSTs the same bundle to every endpoint concurrently.
// Endpoints are failure-isolated: one timeout never cancels the others.
// Succeeds when at least one endpoint accepts; fails only when all reject.
func (c *Client) BroadcastBundle(ctx context.Context, txs []*solana.Transaction) ([]SubmitResult, error) {
	encoded, err := encodeBundle(txs)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "sendBundle",
		"params": []interface{}{
			encoded,
			map[string]string{"encoding": "base64"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal bundle request: %w", err)
	}

	results := make([]SubmitResult, len(c.endpoints))
	errs := make([]error, len(c.endpoints))

	g, gctx := errgroup.WithContext(ctx)
	for i, endpoint := range c.endpoints {
		g.Go(func() error {
			id, err := c.postBundle(gctx, endpoint, payload)
			if err != nil {
				errs[i] = types.SubmitError{Endpoint: endpoint, Err: err}
				c.log.Debug().Str("endpoint", endpoint).Err(err).Msg("bundle submit rejected")
				return nil
			}
			results[i] = SubmitResult{Endpoint: endpoint, BundleID: id}
			c.log.Debug().Str("endpoint", endpoint).Str("bundle", id).Msg("bundle submit accepted")
			return nil
		})
	}
	_ = g.Wait()

	accepted := make([]SubmitResult, 0, len(results))
	for _, r := range results {
		if r.BundleID != "" {
			accepted = append(accepted, r)
		}
	}
	if len(accepted) > 0 {
		return accepted, nil
	}
	return nil, fmt.Errorf("%w: %v", types.ErrBundleRejected, errors.Join(errs...))
}

func (c *Client) postBundle(ctx context.Context, endpoint string, payload []byte) (string, error) {
	url := strings.TrimRight(endpoint, "/") + "/bundles"
	if c.uuid != "" {
		url += "?uuid=" + c.uuid
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", fmt.Errorf("empty response (status %d)", resp.StatusCode)
	}

	var parsed struct {
		Result string `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("malformed response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("relay error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if parsed.Result == "" {
		return "", fmt.Errorf("no bundle id in response (status %d)", resp.StatusCode)
	}
	return parsed.Result, nil
}

// GetBundleStatuses returns the statuses of submitted bundles.
func (c *Client) GetBundleStatuses(ctx context.Context, bundleIDs []string) (*jitorpc.BundleStatusResponse, error) {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		client, _ := c.getNextClient()
		statuses, err := client.GetBundleStatuses(bundleIDs)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				time.Sleep(c.retryDelay)
				continue
			}
			return nil, fmt.Errorf("get bundle statuses: %w", err)
		}
		return statuses, nil
	}
	return nil, fmt.Errorf("get bundle statuses failed after %d retries: %w", c.maxRetries, lastErr)
}

// GetInflightBundleStatuses returns the statuses of in-flight bundles.
// Unlike getBundleStatuses, the in-flight API reports dropped bundles as
// Failed instead of leaving them forever pending.
func (c *Client) GetInflightBundleStatuses(ctx context.Context, bundleIDs []string) (json.RawMessage, error) {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		client, _ := c.getNextClient()
		statuses, err := client.GetInflightBundleStatuses(bundleIDs)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				time.Sleep(c.retryDelay)
				continue
			}
			return nil, fmt.Errorf("get inflight bundle statuses: %w", err)
		}
		return statuses, nil
	}
	return nil, fmt.Errorf("get inflight bundle statuses failed after %d retries: %w", c.maxRetries, lastErr)
}

// inflightStatus is one entry of the in-flight status response. Status is
// Invalid, Pending, Failed, or Landed.
type inflightStatus struct {
	BundleID   string `json:"bundle_id"`
	Status     string `json:"status"`
	LandedSlot uint64 `json:"landed_slot"`
}

// WaitForLanding polls in-flight bundle status until it lands, the relay
// reports it failed, or the timeout elapses.
func (c *Client) WaitForLanding(ctx context.Context, bundleID string, timeout time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 3 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		raw, err := c.GetInflightBundleStatuses(ctx, []string{bundleID})
		if err != nil {
			return struct{}{}, err
		}
		var parsed struct {
			Value []inflightStatus `json:"value"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return struct{}{}, fmt.Errorf("parse inflight statuses: %w", err)
		}
		if len(parsed.Value) == 0 {
			return struct{}{}, fmt.Errorf("bundle %s not yet visible", bundleID)
		}
		switch parsed.Value[0].Status {
		case "Landed":
			return struct{}{}, nil
		case "Failed":
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: bundle %s dropped without landing", types.ErrTransactionFailed, bundleID))
		}
		// Pending, or Invalid before the relay has seen the bundle.
		return struct{}{}, fmt.Errorf("bundle %s still pending", bundleID)
	}, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(timeout))
	if err != nil && (errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "pending") || strings.Contains(err.Error(), "not yet visible")) {
		return types.ErrConfirmationTimeout
	}
	return err
}

func (c *Client) getNextClient() (*jitorpc.JitoJsonRpcClient, string) {
	idx := atomic.AddUint32(&c.currentIndex, 1)
	endpoint := c.endpoints[int(idx)%len(c.endpoints)]
	return jitorpc.NewJitoJsonRpcClient(endpoint, c.uuid), endpoint
}

func encodeBundle(txs []*solana.Transaction) ([]string, error) {
	if len(txs) == 0 {
		return nil, fmt.Errorf("bundle requires at least one transaction")
	}
	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("marshal transaction: %w", err)
		}
		encoded = append(encoded, base64.StdEncoding.EncodeToString(raw))
	}
	return encoded, nil
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "Rate limit") ||
		strings.Contains(errStr, "congested") ||
		strings.Contains(errStr, "429")
}
