package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RemoteProvider validates tokens against an external auth service over
// HTTP. The service contract:
//
//	POST {base}/v1/exchange  {"token": "..."}  -> 200 Principal JSON | 401
//	POST {base}/v1/verify    Principal JSON    -> 204 | 401
type RemoteProvider struct {
	baseURL string
	client  *http.Client
}

// RemoteOption configures a RemoteProvider.
type RemoteOption func(*RemoteProvider)

// WithHTTPClient overrides the HTTP client (timeouts, instrumentation).
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(p *RemoteProvider) { p.client = c }
}

// NewRemoteProvider creates a provider speaking to the auth service at
// baseURL.
func NewRemoteProvider(baseURL string, opts ...RemoteOption) *RemoteProvider {
	p := &RemoteProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Exchange implements Provider.
func (p *RemoteProvider) Exchange(ctx context.Context, token string) (Principal, error) {
	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return Principal{}, fmt.Errorf("auth exchange: %w", err)
	}

	resp, err := p.post(ctx, "/v1/exchange", body)
	if err != nil {
		return Principal{}, fmt.Errorf("auth exchange: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var principal Principal
		if err := json.NewDecoder(resp.Body).Decode(&principal); err != nil {
			return Principal{}, fmt.Errorf("auth exchange: decode principal: %w", err)
		}
		return principal, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return Principal{}, ErrTokenRejected
	default:
		return Principal{}, fmt.Errorf("auth exchange: unexpected status %d", resp.StatusCode)
	}
}

// Verify implements Provider.
func (p *RemoteProvider) Verify(ctx context.Context, principal Principal) error {
	body, err := json.Marshal(principal)
	if err != nil {
		return fmt.Errorf("auth verify: %w", err)
	}

	resp, err := p.post(ctx, "/v1/verify", body)
	if err != nil {
		return fmt.Errorf("auth verify: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return fmt.Errorf("auth verify: unexpected status %d", resp.StatusCode)
	}
}

func (p *RemoteProvider) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.client.Do(req)
}
