// Package pricing quotes the counter amount for a swap direction. Rates
// come from an external oracle over http; when the oracle is unreachable
// the quoter falls back to its configured static rates so order intake
// keeps working during oracle outages.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"github.com/1foot-Labs/swapd/order"
)

var ErrNoRate = errors.New("no rate available for direction")

const defaultQueryTimeout = 5 * time.Second

// rateResponse is the oracle's wire schema.
type rateResponse struct {
	Rate string `json:"rate"`
}

type Config struct {
	// OracleURL is the base url of the rate oracle. Empty disables remote
	// quotes entirely and only the static table is used.
	OracleURL string

	QueryTimeout time.Duration

	// StaticRates is the fallback table, destination units per source unit.
	StaticRates map[order.Direction]decimal.Decimal
}

type Quoter struct {
	cfg        *Config
	httpClient *http.Client
}

func NewQuoter(cfg *Config) *Quoter {
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &Quoter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Rate returns how many destination units one source unit buys. Remote
// first, static fallback second.
func (q *Quoter) Rate(ctx context.Context, direction order.Direction) (decimal.Decimal, error) {
	if !direction.Valid() {
		return decimal.Zero, order.ErrBadDirection
	}

	if q.cfg.OracleURL != "" {
		rate, err := q.fetchRate(ctx, direction)
		if err == nil {
			return rate, nil
		}
		logger.Warnf("rate oracle unavailable, using static rate: %v", err)
	}

	rate, ok := q.cfg.StaticRates[direction]
	if !ok {
		return decimal.Zero, ErrNoRate
	}
	return rate, nil
}

// Quote converts a human source amount into the human destination amount
// at the current rate.
func (q *Quoter) Quote(ctx context.Context, direction order.Direction, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, order.ErrInvalidAmount
	}
	rate, err := q.Rate(ctx, direction)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

func (q *Quoter) fetchRate(ctx context.Context, direction order.Direction) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/rate/%s", q.cfg.OracleURL, direction)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, err
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate oracle returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed rateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, err
	}

	rate, err := decimal.NewFromString(parsed.Rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate oracle sent a malformed rate %q: %w", parsed.Rate, err)
	}
	if rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("rate oracle sent a non-positive rate %s", rate)
	}
	return rate, nil
}
