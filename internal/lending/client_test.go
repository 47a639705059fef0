package lending

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stokvel/pkg/config"
	"stokvel/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(config.LendingConfig{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
	}, logger.NewNop())
}

func TestInvest_PostsPositionAndReturnsReceipt(t *testing.T) {
	receiptID := uuid.New()
	maturesAt := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	var got investRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/positions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(investResponse{ReceiptID: receiptID})
	}))
	defer server.Close()

	client := testClient(server.URL)

	id, err := client.Invest(context.Background(), decimal.NewFromInt(2000), maturesAt)

	require.NoError(t, err)
	assert.Equal(t, receiptID, id)
	assert.Equal(t, "2000", got.Amount.String())
	assert.True(t, got.MaturesAt.Equal(maturesAt))
}

func TestInvest_SurfacesVenueError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "venue under maintenance")
	}))
	defer server.Close()

	client := testClient(server.URL)

	_, err := client.Invest(context.Background(), decimal.NewFromInt(100), time.Now().Add(time.Hour))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "maintenance")
}

func TestInvest_RejectsEmptyReceipt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"receipt_id":"00000000-0000-0000-0000-000000000000"}`)
	}))
	defer server.Close()

	client := testClient(server.URL)

	_, err := client.Invest(context.Background(), decimal.NewFromInt(100), time.Now().Add(time.Hour))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty receipt")
}

func TestCollect_DecodesProceeds(t *testing.T) {
	receiptID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/positions/"+receiptID.String()+"/collect", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"settlement_amount":"2100","alt_amount":"30","alt_asset":"ARB"}`)
	}))
	defer server.Close()

	client := testClient(server.URL)

	proceeds, err := client.Collect(context.Background(), receiptID)

	require.NoError(t, err)
	assert.Equal(t, "2100", proceeds.SettlementAmount.String())
	assert.Equal(t, "30", proceeds.AltAmount.String())
	assert.Equal(t, "ARB", proceeds.AltAsset)
}

func TestCollect_RejectsNegativeProceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"settlement_amount":"-5","alt_amount":"0"}`)
	}))
	defer server.Close()

	client := testClient(server.URL)

	_, err := client.Collect(context.Background(), uuid.New())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative proceeds")
}

func TestNewClient_FetchesOAuthToken(t *testing.T) {
	var tokenRequests int
	var authHeader string

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "fund-service", user)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"test-token","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/positions", func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(investResponse{ReceiptID: uuid.New()})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(config.LendingConfig{
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/oauth/token",
		ClientID:     "fund-service",
		ClientSecret: "s3cret",
		Timeout:      5 * time.Second,
	}, logger.NewNop())

	_, err := client.Invest(context.Background(), decimal.NewFromInt(100), time.Now().Add(time.Hour))

	require.NoError(t, err)
	assert.Equal(t, 1, tokenRequests)
	assert.Equal(t, "Bearer test-token", authHeader)
}
