package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signage-control-backend/config"
	"signage-control-backend/internal/model"
	"signage-control-backend/internal/parse"
)

// HTTPGateway posts commands to {base}/api/device/{id}/command.
type HTTPGateway struct {
	baseURL string
	token   string
	headers map[string]string
	client  *http.Client
}

// NewHTTPGateway builds a gateway with a bounded per-call timeout.
func NewHTTPGateway(cfg config.GatewayConfig) *HTTPGateway {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Gateway will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPGateway{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		headers: cfg.Headers,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Deliver sends one payload. Any non-2xx answer is returned as *StatusError.
func (g *HTTPGateway) Deliver(ctx context.Context, deviceID string, payload model.CommandPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal command payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/device/%s/command", g.baseURL, url.PathEscape(deviceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range g.headers {
		req.Header.Set(key, value)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if id, ok := CommandID(ctx); ok {
		req.Header.Set(CommandIDHeader, strconv.FormatInt(id, 10))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Message:    parse.ErrorBody(resp.StatusCode, resp.Header.Get("Content-Type"), raw),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
