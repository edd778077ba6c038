// Package transform talks to the external AI photo transformation service.
// The service is slow and failure-prone by nature; callers never invoke it on
// a request path.
package transform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options controls how the transformer client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client is a thin facade over the transformation API. One call submits the
// raw image plus a resolved prompt and blocks until the service returns the
// result references or an error; there are no partial results.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type transformRequest struct {
	Prompt string      `json:"prompt"`
	Image  inlineImage `json:"image"`
}

type inlineImage struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type transformResponse struct {
	Results []struct {
		URL string `json:"url"`
	} `json:"results"`
}

type transformErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a transformer client with sane defaults. Callers may
// provide a nil HTTP client; one with a generous timeout is created because
// transformations routinely take tens of seconds.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: client,
		logger:     opts.Logger,
	}
}

// Transform submits the image and prompt and returns the result references.
func (c *Client) Transform(ctx context.Context, image []byte, prompt string) ([]string, error) {
	payload := transformRequest{
		Prompt: prompt,
		Image: inlineImage{
			MimeType: http.DetectContentType(image),
			Data:     base64.StdEncoding.EncodeToString(image),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("transform: encode request: %w", err)
	}

	url := c.baseURL + "/images:transform"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transform: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transform: call service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("transform: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr transformErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("transform: service error %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("transform: unexpected status %d", resp.StatusCode)
	}

	var parsed transformResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("transform: decode response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("transform: service returned no results")
	}

	refs := make([]string, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		if res.URL != "" {
			refs = append(refs, res.URL)
		}
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("transform: service returned empty result references")
	}

	c.logger.Debug().
		Int("results", len(refs)).
		Dur("elapsed", time.Since(started)).
		Msg("transform: call completed")
	return refs, nil
}
