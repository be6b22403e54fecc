package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Provider is the outbound contract to the external signing service. The
// provider reports completion asynchronously through the callback webhook.
type Provider interface {
	CreateSigningRequest(ctx context.Context, req SigningRequest) (externalID string, err error)
}

// SigningRequest carries the signer identity and the file reference to sign.
type SigningRequest struct {
	RequestID   string `json:"requestId"`
	SignerName  string `json:"signerName"`
	SignerEmail string `json:"signerEmail"`
	FileRef     string `json:"fileRef"`
	CallbackURL string `json:"callbackUrl"`
}

// HTTPProvider talks to the provider's REST API.
type HTTPProvider struct {
	baseURL     string
	apiKey      string
	callbackURL string
	client      *http.Client
	logger      *zap.Logger
}

// HTTPProviderConfig configures the outbound client.
type HTTPProviderConfig struct {
	BaseURL     string
	APIKey      string
	CallbackURL string
	Timeout     time.Duration
}

// NewHTTPProvider constructs the client.
func NewHTTPProvider(cfg HTTPProviderConfig, logger *zap.Logger) *HTTPProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		callbackURL: cfg.CallbackURL,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

type createResponse struct {
	ID string `json:"id"`
}

// CreateSigningRequest posts the signing request and returns the provider's
// correlation id.
func (p *HTTPProvider) CreateSigningRequest(ctx context.Context, req SigningRequest) (string, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = p.callbackURL
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal signing request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/signing-requests", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build signing request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call signing provider: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Sugar().Warnw("signing provider rejected request", "status", resp.StatusCode, "request_id", req.RequestID)
		return "", fmt.Errorf("signing provider returned status %d", resp.StatusCode)
	}

	var body createResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode provider response: %w", err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("provider response missing request id")
	}
	return body.ID, nil
}
