// Raw HTTP probe used to sanity-check artwork URLs
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultProbeLimit   int64 = 4 << 10
	defaultProbeTimeout       = 10 * time.Second
)

// ProbeService performs one-shot GET requests and returns a bounded prefix of the body.
type ProbeService struct {
	httpClient *http.Client
	limit      int64
}

// NewProbeService creates a probe client. A nil client gets a dedicated client with a short timeout.
func NewProbeService(client *http.Client) *ProbeService {
	if client == nil {
		client = &http.Client{Timeout: defaultProbeTimeout}
	}

	return &ProbeService{
		httpClient: client,
		limit:      defaultProbeLimit,
	}
}

// ProbeResponse represents a raw response with status, content type and the head of the body.
type ProbeResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte // At most the probe limit
}

// OK reports whether the status code is 2xx.
func (p *ProbeResponse) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// Get performs a GET request to rawURL, reading at most the probe limit of the body.
func (p *ProbeService) Get(ctx context.Context, rawURL string) (*ProbeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &ProbeResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
