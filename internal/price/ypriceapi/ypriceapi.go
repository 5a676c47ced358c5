// Package ypriceapi implements the optional remote oracle fallback: an
// opaque HTTP price source consulted only after every local strategy has
// exhausted (spec §4.5 step 5, §6.2's YPRICEAPI_* options).
package ypriceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yearn/yprice-go/internal/rtlog"
)

var logger = rtlog.New("ypriceapi")

// Config wires one ypriceAPI client; Signer/Signature are either both
// empty or both set, enforced at construction (spec §6.2: "if signer+
// signature are partially present, startup fails").
type Config struct {
	URL       string
	Timeout   time.Duration
	Semaphore int
	Signer    string
	Signature string
}

// Client is the price.RemoteFallback implementation: a plain, opaque
// HTTP GET against ypriceAPI's REST surface.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens chan struct{}
}

// New validates cfg and builds a Client. Callers skip constructing one
// entirely when SKIP_YPRICEAPI is set.
func New(cfg Config) (*Client, error) {
	if (cfg.Signer == "") != (cfg.Signature == "") {
		return nil, fmt.Errorf("ypriceapi: signer and signature must both be set or both be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Semaphore <= 0 {
		cfg.Semaphore = 8
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tokens: make(chan struct{}, cfg.Semaphore),
	}, nil
}

type getPriceResponse struct {
	Price   *float64 `json:"price"`
	Address string   `json:"address"`
}

// GetPrice satisfies price.RemoteFallback: a single opaque GET, bounded
// by the configured semaphore, treating every transport/decode/"no price"
// outcome as (zero, false, nil) rather than an error — ypriceAPI is a
// best-effort fallback, never a hard dependency.
func (c *Client) GetPrice(ctx context.Context, chain uint64, token common.Address, block uint64) (decimal.Decimal, bool, error) {
	select {
	case c.tokens <- struct{}{}:
		defer func() { <-c.tokens }()
	case <-ctx.Done():
		return decimal.Decimal{}, false, ctx.Err()
	}

	u := c.cfg.URL + "/get_price/" + strconv.FormatUint(chain, 10) + "/" + token.Hex()
	q := url.Values{}
	q.Set("block", strconv.FormatUint(block, 10))
	if c.cfg.Signer != "" {
		q.Set("signer", c.cfg.Signer)
		q.Set("signature", c.cfg.Signature)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("ypriceapi: request failed, treating as no price", "token", token.Hex(), "error", err)
		return decimal.Decimal{}, false, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Warn("ypriceapi: non-200 response, treating as no price", "token", token.Hex(), "status", resp.StatusCode)
		return decimal.Decimal{}, false, nil
	}

	var body getPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.Warn("ypriceapi: malformed response body, treating as no price", "token", token.Hex(), "error", err)
		return decimal.Decimal{}, false, nil
	}
	if body.Price == nil {
		return decimal.Decimal{}, false, nil
	}
	return decimal.NewFromFloat(*body.Price), true, nil
}
