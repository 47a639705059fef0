// Package exchange is the HTTP client for the venue that converts incentive
// assets into the settlement asset.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"stokvel/pkg/config"
	"stokvel/pkg/logger"

	"github.com/shopspring/decimal"
)

// Client talks to the exchange venue's REST API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

func NewClient(cfg config.ExchangeConfig, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  log,
	}
}

type swapRequest struct {
	FromAsset string          `json:"from_asset"`
	Amount    decimal.Decimal `json:"amount"`
	MinOut    decimal.Decimal `json:"min_out"`
}

type swapResponse struct {
	AmountOut decimal.Decimal `json:"amount_out"`
}

// Swap sells amount of fromAsset for the settlement asset. The venue rejects
// the trade outright when it cannot fill at least minOut, so a nil error
// means the returned amount honors the floor.
func (c *Client) Swap(ctx context.Context, fromAsset string, amount, minOut decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("swap amount must be positive, got %s", amount)
	}

	body, err := json.Marshal(swapRequest{FromAsset: fromAsset, Amount: amount, MinOut: minOut})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to encode swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("exchange venue unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("exchange venue returned status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var out swapResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode swap response: %w", err)
	}
	if out.AmountOut.LessThan(minOut) {
		return decimal.Zero, fmt.Errorf("exchange venue filled %s below the %s floor", out.AmountOut, minOut)
	}

	c.logger.Debug("Incentive asset swapped", map[string]interface{}{
		"from_asset": fromAsset,
		"amount_in":  amount.String(),
		"amount_out": out.AmountOut.String(),
	})

	return out.AmountOut, nil
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(b) == 0 {
		return "no body"
	}
	return strings.TrimSpace(string(b))
}
