package gemini

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"

	"github.com/hypley-ai/hypley-live/pkg/core"
	"github.com/hypley-ai/hypley-live/pkg/core/persona"
)

// FallbackTitle names a conversation when summarizing fails.
const FallbackTitle = "Nova Conversa"

const (
	summaryPrompt   = "Resuma o seguinte texto em uma frase curta e concisa para um título de conversa: "
	summaryMaxRunes = 1000
)

// RetryPolicy controls retries of quota failures.
type RetryPolicy struct {
	MaxRetries uint64
	// Base is the first delay; each retry doubles it.
	Base time.Duration
}

// DefaultRetryPolicy retries three times starting at two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Base: 2 * time.Second}
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = time.Millisecond
	}
	return retry.WithMaxRetries(p.MaxRetries, retry.NewExponential(base))
}

// Attachment is a file sent inline with a text prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// TextRequest is one chat completion.
type TextRequest struct {
	Model       string
	Instruction string
	History     []persona.Message
	Prompt      string
	Attachment  *Attachment
	// ThinkingBudget caps reasoning tokens. Zero leaves the model default.
	ThinkingBudget int32
}

// generator is the part of *genai.Models the text client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// TextClient runs text completions with quota retry.
type TextClient struct {
	gen    generator
	policy RetryPolicy
	logger *slog.Logger
}

func newTextClient(gen generator, policy RetryPolicy, logger *slog.Logger) *TextClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextClient{gen: gen, policy: policy, logger: logger}
}

// Complete answers req. Search grounding is offered only when no file is
// attached. Quota errors are retried; anything else fails immediately.
func (c *TextClient) Complete(ctx context.Context, req TextRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" && req.Attachment == nil {
		return "", core.NewInvalidRequestErrorWithParam("prompt is required", "prompt")
	}
	model := req.Model
	if model == "" {
		model = DefaultTextModel
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Instruction != "" {
		cfg.SystemInstruction = systemContent(req.Instruction)
	}
	if req.Attachment == nil {
		cfg.Tools = buildTools(nil, true)
	}
	if req.ThinkingBudget > 0 {
		budget := req.ThinkingBudget
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
	}

	return c.generate(ctx, model, buildContents(req.History, req.Prompt, req.Attachment), cfg)
}

// Summarize produces a short conversation title for text. It never fails:
// errors and empty answers yield FallbackTitle.
func (c *TextClient) Summarize(ctx context.Context, text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return FallbackTitle
	}
	if len(runes) > summaryMaxRunes {
		runes = runes[:summaryMaxRunes]
	}

	contents := []*genai.Content{genai.NewContentFromText(summaryPrompt+string(runes), genai.RoleUser)}
	title, err := c.generate(ctx, DefaultTextModel, contents, nil)
	if err != nil {
		c.logger.Warn("title summary failed", "error", err)
		return FallbackTitle
	}
	title = strings.Trim(strings.TrimSpace(title), `"*`)
	if title == "" {
		return FallbackTitle
	}
	return title
}

func (c *TextClient) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	var text string
	attempt := 0
	err := retry.Do(ctx, c.policy.backoff(), func(ctx context.Context) error {
		attempt++
		resp, err := c.gen.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			err = classify("generate content", err)
			if core.IsType(err, core.ErrQuota) {
				c.logger.Warn("quota exhausted, retrying", "model", model, "attempt", attempt)
				return retry.RetryableError(err)
			}
			return err
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
