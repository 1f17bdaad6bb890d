package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"google.golang.org/genai"

	"github.com/lightlogic3/popflow/internal/config"
)

// Client wraps the Gemini API client with the retry policy shared by all
// collaborators: exponential backoff with jitter for transient errors,
// immediate return for permanent ones.
type Client struct {
	client *genai.Client
	config config.LLMConfig
	logger *slog.Logger
	rng    *rand.Rand
}

// NewClient creates a Gemini client from the LLM configuration.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", ErrInvalidConfig, err)
	}

	return &Client{
		client: client,
		config: cfg,
		logger: logger.With("component", "gemini"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// generate calls the model with retry. Responses with no usable candidate
// are permanent errors; API transport errors are assumed transient.
func (c *Client) generate(ctx context.Context, contents []*genai.Content, genCfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	maxRetries := c.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	baseDelay := c.config.RetryDelaySeconds
	if baseDelay < 1 {
		baseDelay = 2
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.client.Models.GenerateContent(ctx, c.config.ModelName, contents, genCfg)
		if err == nil {
			err = validateResponse(resp)
			if err == nil {
				return resp, nil
			}
		}

		c.logger.WarnContext(ctx, "model call failed",
			"attempt", attempt+1,
			"max_attempts", maxRetries+1,
			"error", err)

		if errors.Is(err, ErrContentBlocked) || errors.Is(err, ErrInvalidResponse) {
			return nil, err
		}
		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: exceeded %d attempts: %v", ErrTransientFailure, maxRetries+1, err)
		}

		// delay = baseDelay * 2^attempt * (0.5 .. 1.0)
		backoff := float64(baseDelay) * math.Pow(2, float64(attempt))
		jitter := 0.5 + c.rng.Float64()*0.5
		delay := time.Duration(backoff * jitter * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
		}
	}
}

func validateResponse(resp *genai.GenerateContentResponse) error {
	if resp == nil {
		return fmt.Errorf("%w: nil response", ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 {
		return fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return ErrContentBlocked
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return fmt.Errorf("%w: empty candidate content", ErrInvalidResponse)
	}
	return nil
}

// usage extracts token accounting from a response, tolerating absent
// metadata.
func usage(resp *genai.GenerateContentResponse) (inputTokens, outputTokens int) {
	if resp.UsageMetadata == nil {
		return 0, 0
	}
	return int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount)
}
