package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const chargeRequestTimeout = 10 * time.Second

// ChargeResult is what the payment collaborator hands back for a new charge.
type ChargeResult struct {
	ChargeID  string `json:"chargeId"`
	QRCode    string `json:"qrCode"`
	CopyPaste string `json:"copyPasteCode"`
}

// PaymentGateway creates PIX charges. Settlement arrives asynchronously via
// the webhook, never through this interface.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, amountCents int64, description string) (*ChargeResult, error)
}

// PixClient talks to the PIX provider's REST API.
type PixClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

var _ PaymentGateway = (*PixClient)(nil)

func NewPixClient(baseURL, apiKey string) *PixClient {
	return &PixClient{
		client: &http.Client{
			Timeout: chargeRequestTimeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (s *PixClient) CreateCharge(ctx context.Context, amountCents int64, description string) (*ChargeResult, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("payment gateway not configured")
	}

	payload := map[string]any{
		"amount":      amountCents,
		"description": description,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Dur("elapsed", elapsed).
			Msg("pix charge request error")
		return nil, fmt.Errorf("charge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("pix charge request rejected")
		return nil, fmt.Errorf("charge request failed with status %d", resp.StatusCode)
	}

	var result ChargeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}
	if result.ChargeID == "" {
		return nil, fmt.Errorf("charge response missing id")
	}

	log.Info().
		Str("chargeId", result.ChargeID).
		Int64("amountCents", amountCents).
		Dur("elapsed", elapsed).
		Msg("pix charge created")

	return &result, nil
}
