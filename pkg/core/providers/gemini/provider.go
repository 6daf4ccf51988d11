// Package gemini connects hypley-live to Google Gemini through the genai SDK:
// the Live API as a live.Dialer and text generation for chat and titles.
package gemini

import (
	"context"
	"log/slog"
	"net/http"

	"google.golang.org/genai"

	"github.com/hypley-ai/hypley-live/pkg/core"
)

const (
	// DefaultTextModel answers text chat and summarizes titles.
	DefaultTextModel = "gemini-2.5-flash"

	// InputMIMEType is what the live endpoint expects for microphone audio.
	InputMIMEType = "audio/pcm;rate=16000"
)

// Client holds a genai client shared by the live dialer and text client.
type Client struct {
	genai      *genai.Client
	logger     *slog.Logger
	baseURL    string
	httpClient *http.Client
	retry      RetryPolicy
}

// New creates a Gemini client authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, core.NewInvalidRequestErrorWithParam("gemini api key is required", "api_key")
	}
	c := &Client{
		logger: slog.Default(),
		retry:  DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions.BaseURL = c.baseURL
	}
	g, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, core.NewAPIError("create gemini client", err)
	}
	c.genai = g
	return c, nil
}

// Dialer returns a live.Dialer over the Live API.
func (c *Client) Dialer() *Dialer {
	return &Dialer{
		connect: func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error) {
			return c.genai.Live.Connect(ctx, model, cfg)
		},
		logger: c.logger,
	}
}

// Text returns the text completion client.
func (c *Client) Text() *TextClient {
	return newTextClient(c.genai.Models, c.retry, c.logger)
}
