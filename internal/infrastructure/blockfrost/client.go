// Package blockfrost is a read-only client for the Blockfrost Cardano API.
package blockfrost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"query-assistant/internal/application/port/output"

	"golang.org/x/sync/errgroup"
)

var _ output.BlockchainPort = (*Client)(nil)

const maxBodyBytes = 4 << 20

type Config struct {
	ProjectID  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     output.LoggerPort
}

type Client struct {
	projectID string
	baseURL   string
	http      *http.Client
	logger    output.LoggerPort
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = output.NopLogger{}
	}
	return &Client{
		projectID: cfg.ProjectID,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      httpClient,
		logger:    logger,
	}
}

func (c *Client) AddressDetails(ctx context.Context, address string) (json.RawMessage, error) {
	return c.get(ctx, "/addresses/"+url.PathEscape(address), nil)
}

func (c *Client) AddressTransactions(ctx context.Context, address string, count int, order output.TxOrder) (json.RawMessage, error) {
	q := url.Values{}
	if count > 0 {
		q.Set("count", strconv.Itoa(count))
	}
	if order != "" {
		q.Set("order", string(order))
	}
	return c.get(ctx, "/addresses/"+url.PathEscape(address)+"/transactions", q)
}

// Transaction returns the transaction content merged with its inputs and outputs.
func (c *Client) Transaction(ctx context.Context, hash string) (json.RawMessage, error) {
	var tx, utxos json.RawMessage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tx, err = c.get(gctx, "/txs/"+url.PathEscape(hash), nil)
		return err
	})
	g.Go(func() error {
		var err error
		utxos, err = c.get(gctx, "/txs/"+url.PathEscape(hash)+"/utxos", nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged, err := json.Marshal(struct {
		Transaction json.RawMessage `json:"transaction"`
		UTXOs       json.RawMessage `json:"utxos"`
	}{tx, utxos})
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return merged, nil
}

type apiError struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("project_id", c.projectID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", output.ErrChainUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", output.ErrChainUpstream, err)
	}

	c.logger.Debug("Blockfrost request",
		"path", path,
		"status", resp.StatusCode,
		"durationMs", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", output.ErrChainUpstream, err)
	}
	return buf.Bytes(), nil
}

func statusError(status int, body []byte) error {
	var apiErr apiError
	detail := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		detail = apiErr.Message
	}

	var kind error
	switch {
	case status == http.StatusNotFound:
		kind = output.ErrChainNotFound
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		kind = output.ErrChainUnauthorized
	case status == http.StatusTooManyRequests || status == 418:
		kind = output.ErrChainRateLimited
	case status == http.StatusBadRequest:
		kind = output.ErrChainBadRequest
	default:
		kind = output.ErrChainUpstream
	}
	return fmt.Errorf("%w (HTTP %d): %s", kind, status, detail)
}
