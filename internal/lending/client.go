// Package lending is the HTTP client for the external lending venue that
// pooled rounds are deployed into.
package lending

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stokvel/internal/domain"
	"stokvel/pkg/config"
	"stokvel/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Client talks to the lending venue's REST API. When a token URL is
// configured, requests authenticate with OAuth2 client credentials; without
// one they go out bare, which is what the local simulator expects.
type Client struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

func NewClient(cfg config.LendingConfig, log logger.Logger) *Client {
	base := &http.Client{Timeout: cfg.Timeout}
	client := base
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		// Token fetches go through the same base client so they share its timeout.
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = cc.Client(ctx)
		client.Timeout = cfg.Timeout
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  client,
		logger:  log,
	}
}

type investRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	MaturesAt time.Time       `json:"matures_at"`
}

type investResponse struct {
	ReceiptID uuid.UUID `json:"receipt_id"`
}

// Invest deploys amount into the venue until maturesAt and returns the
// receipt ID the position is later collected with.
func (c *Client) Invest(ctx context.Context, amount decimal.Decimal, maturesAt time.Time) (uuid.UUID, error) {
	body, err := json.Marshal(investRequest{Amount: amount, MaturesAt: maturesAt})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode invest request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/positions", bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("lending venue unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return uuid.Nil, fmt.Errorf("lending venue returned status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var out investResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return uuid.Nil, fmt.Errorf("failed to decode invest response: %w", err)
	}
	if out.ReceiptID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("lending venue returned empty receipt id")
	}

	c.logger.Debug("Lending position opened", map[string]interface{}{
		"receipt_id": out.ReceiptID.String(),
		"amount":     amount.String(),
		"matures_at": maturesAt.Format(time.RFC3339),
	})

	return out.ReceiptID, nil
}

// Collect redeems a matured position. The venue reports proceeds in the
// settlement asset plus any incentive paid out in another asset.
func (c *Client) Collect(ctx context.Context, receiptID uuid.UUID) (*domain.InvestmentProceeds, error) {
	url := fmt.Sprintf("%s/positions/%s/collect", c.baseURL, receiptID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lending venue unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lending venue returned status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var proceeds domain.InvestmentProceeds
	if err := json.NewDecoder(resp.Body).Decode(&proceeds); err != nil {
		return nil, fmt.Errorf("failed to decode collect response: %w", err)
	}
	if proceeds.SettlementAmount.IsNegative() || proceeds.AltAmount.IsNegative() {
		return nil, fmt.Errorf("lending venue reported negative proceeds for receipt %s", receiptID)
	}

	c.logger.Debug("Lending position collected", map[string]interface{}{
		"receipt_id":        receiptID.String(),
		"settlement_amount": proceeds.SettlementAmount.String(),
		"alt_amount":        proceeds.AltAmount.String(),
		"alt_asset":         proceeds.AltAsset,
	})

	return &proceeds, nil
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(b) == 0 {
		return "no body"
	}
	return strings.TrimSpace(string(b))
}
