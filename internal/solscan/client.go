// Package solscan implements a client for the Solscan Pro v2 API, the
// ledger-indexing service the crawler pulls token metadata and SPL transfer
// pages from.
package solscan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tokengraph/transfer-indexer/pkg/metrics"
)

const (
	endpointTokenMeta = "token/meta"
	endpointTransfers = "account/transfer"

	// transferPageSize bounds one expansion fetch to the first API page.
	transferPageSize = 100
)

// TokenMeta is the minting metadata of a token.
type TokenMeta struct {
	Creator     string
	CreatedTime int64
	Name        string
	Image       string
}

// Transfer is a single SPL transfer record. Only the fields the crawler needs
// are decoded; the API returns many more.
type Transfer struct {
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	BlockTime   int64  `json:"block_time"`
	Amount      uint64 `json:"amount"`
}

// Client talks to the Solscan Pro API. All calls wait on the shared rate
// limiter first, which spaces requests by the configured delay regardless of
// how many crawler workers fetch concurrently.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewClient creates a Solscan client from the given configuration. The
// metrics argument may be nil.
func NewClient(cfg Config, log *zap.SugaredLogger, m *metrics.Metrics) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RequestDelay), 1)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: limiter,
		log:     log,
		metrics: m,
	}, nil
}

// TokenMeta fetches minting metadata for the token address.
func (c *Client) TokenMeta(ctx context.Context, tokenAddress string) (TokenMeta, error) {
	params := url.Values{}
	params.Set("address", tokenAddress)

	var resp struct {
		Data struct {
			Creator     string `json:"creator"`
			CreatedTime int64  `json:"created_time"`
			Metadata    struct {
				Name  string `json:"name"`
				Image string `json:"image"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := c.get(ctx, endpointTokenMeta, params, &resp); err != nil {
		return TokenMeta{}, fmt.Errorf("fetch token meta for %s: %w", tokenAddress, err)
	}

	return TokenMeta{
		Creator:     resp.Data.Creator,
		CreatedTime: resp.Data.CreatedTime,
		Name:        resp.Data.Metadata.Name,
		Image:       resp.Data.Metadata.Image,
	}, nil
}

// Transfers fetches the first page of outgoing SPL transfers of the token
// from the given account within [from, to], newest first. The result order
// is not meaningful to callers; destinations get dedup'd downstream.
func (c *Client) Transfers(ctx context.Context, address, tokenAddress string, from, to int64) ([]Transfer, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("token", tokenAddress)
	params.Add("activity_type[]", "ACTIVITY_SPL_TRANSFER")
	params.Add("block_time[]", strconv.FormatInt(from, 10))
	params.Add("block_time[]", strconv.FormatInt(to, 10))
	params.Set("exclude_amount_zero", "true")
	params.Set("flow", "out")
	params.Set("page", "1")
	params.Set("page_size", strconv.Itoa(transferPageSize))
	params.Set("sort_by", "block_time")
	params.Set("sort_order", "desc")

	var resp struct {
		Data []Transfer `json:"data"`
	}
	if err := c.get(ctx, endpointTransfers, params, &resp); err != nil {
		return nil, fmt.Errorf("fetch transfers for %s: %w", address, err)
	}
	return resp.Data, nil
}

// get performs a rate-limited GET against the API and decodes the JSON body
// into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/%s?%s", c.cfg.BaseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("token", c.cfg.APIKey)

	c.metrics.IncAPIInFlight()
	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.DecAPIInFlight()
	if err != nil {
		c.metrics.RecordAPICall(endpoint, err, time.Since(start).Seconds())
		return fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("call %s: unexpected status %d", endpoint, resp.StatusCode)
		c.metrics.RecordAPICall(endpoint, err, time.Since(start).Seconds())
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		err = fmt.Errorf("decode %s response: %w", endpoint, err)
		c.metrics.RecordAPICall(endpoint, err, time.Since(start).Seconds())
		return err
	}

	c.metrics.RecordAPICall(endpoint, nil, time.Since(start).Seconds())
	return nil
}
