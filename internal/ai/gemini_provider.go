package ai

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"resumind/internal/config"
	apperrors "resumind/internal/errors"
	"resumind/internal/types"
)

// GeminiService talks to Google Gemini. It applies a client-side rate
// limit, retries transient failures with exponential backoff, and runs
// every generate call under a circuit breaker.
type GeminiService struct {
	client  *genai.Client
	config  *config.AIConfig
	breaker *AICircuitBreaker
	limiter *rate.Limiter
	logger  *apperrors.Logger
}

// NewGeminiService creates a Gemini-backed AI service from configuration.
func NewGeminiService(ctx context.Context, cfg *config.Config, logger *apperrors.Logger) (*GeminiService, error) {
	apiKey := cfg.ResolveAIKey()
	if apiKey == "" {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeMissingAPIKey,
			"Gemini API key is not configured", nil)
	}

	httpClient := &http.Client{
		Timeout:   cfg.AI.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, apperrors.NewAIError(apperrors.ErrCodeAIServiceFailed,
			"Failed to create Gemini client", err)
	}

	var limiter *rate.Limiter
	if cfg.AI.RateLimit.Enabled && cfg.AI.RateLimit.RequestsPerMin > 0 {
		limiter = rate.NewLimiter(
			rate.Limit(float64(cfg.AI.RateLimit.RequestsPerMin)/60.0),
			cfg.AI.RateLimit.BurstCapacity)
	}

	return &GeminiService{
		client:  client,
		config:  &cfg.AI,
		breaker: NewAICircuitBreaker(cfg.AI.CircuitBreaker, logger),
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Chat sends a single user message and returns the model's reply. The
// message may mix text parts and file parts; file parts are sent inline.
func (g *GeminiService) Chat(ctx context.Context, msg types.AIMessage, opts *types.ChatOptions) (*types.AIResponse, error) {
	tracer := otel.Tracer("resumind.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini.chat")
	defer span.End()

	model := g.config.Model
	if opts != nil && opts.Model != "" {
		model = opts.Model
	}

	span.SetAttributes(
		attribute.String("ai.provider", "gemini"),
		attribute.String("ai.model", model),
		attribute.Int("ai.message_parts", len(msg.Parts)),
	)

	parts, err := g.buildParts(ctx, msg.Parts)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genConfig := g.buildGenerateConfig(opts)

	result, err := g.generate(ctx, "chat", model, contents, genConfig)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, err
	}

	if usage := extractTokenUsage(result); usage != nil {
		span.SetAttributes(
			attribute.Int64("ai.tokens.input", usage.InputTokens),
			attribute.Int64("ai.tokens.output", usage.OutputTokens),
			attribute.Int64("ai.tokens.total", usage.TotalTokens),
		)
	}
	span.SetAttributes(attribute.Bool("success", true))

	return &types.AIResponse{
		Message: types.ResponseMessage{
			Role:    "assistant",
			Content: types.TextContent(result.Text()),
		},
	}, nil
}

// Img2Txt extracts the visible text from an image file.
func (g *GeminiService) Img2Txt(ctx context.Context, image types.File) (string, error) {
	tracer := otel.Tracer("resumind.ai.gemini")
	ctx, span := tracer.Start(ctx, "gemini.img2txt")
	defer span.End()

	data, err := image.Bytes(ctx)
	if err != nil {
		return "", apperrors.NewIOError(apperrors.ErrCodeFileNotReadable,
			"Failed to read image content", err).
			WithContext("file", image.Name())
	}

	mimeType := http.DetectContentType(data)
	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText(ImageToTextPrompt),
	}, genai.RoleUser)}

	result, err := g.generate(ctx, "img2txt", g.config.Model, contents, &genai.GenerateContentConfig{})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return "", err
	}

	span.SetAttributes(attribute.Bool("success", true))
	return result.Text(), nil
}

// generate runs a generate-content call through the rate limiter, circuit
// breaker and retry loop.
func (g *GeminiService) generate(ctx context.Context, operation, model string, contents []*genai.Content, genConfig *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, apperrors.NewAIError(apperrors.ErrCodeAIServiceFailed,
				"Rate limiter wait aborted", err)
		}
	}

	result, err := g.breaker.Execute(func() (*genai.GenerateContentResponse, error) {
		return g.executeWithRetry(ctx, operation, func() (*genai.GenerateContentResponse, error) {
			return g.client.Models.GenerateContent(ctx, model, contents, genConfig)
		})
	})
	if err != nil {
		return nil, apperrors.NewAIError(apperrors.ErrCodeAIServiceFailed,
			"Failed to generate content for "+operation, err)
	}
	return result, nil
}

func (g *GeminiService) buildParts(ctx context.Context, msgParts []types.AIMessagePart) ([]*genai.Part, error) {
	var parts []*genai.Part
	for _, p := range msgParts {
		switch {
		case p.File != nil:
			data, err := p.File.Bytes(ctx)
			if err != nil {
				return nil, apperrors.NewIOError(apperrors.ErrCodeFileNotReadable,
					"Failed to read message file part", err).
					WithContext("file", p.File.Name())
			}
			mimeType := p.File.MIME
			if mimeType == "" {
				mimeType = http.DetectContentType(data)
			}
			parts = append(parts, genai.NewPartFromBytes(data, mimeType))
		case p.Text != "":
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
	}
	if len(parts) == 0 {
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"Chat message has no usable parts", nil)
	}
	return parts, nil
}

func (g *GeminiService) buildGenerateConfig(opts *types.ChatOptions) *genai.GenerateContentConfig {
	genConfig := &genai.GenerateContentConfig{}

	systemPrompt := g.config.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	genConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)

	temperature := g.config.Temperature
	if opts != nil && opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if temperature > 0 {
		t := temperature
		genConfig.Temperature = &t
	}

	if opts != nil && opts.ResponseSchema == SchemaFeedback {
		genConfig.ResponseMIMEType = "application/json"
		genConfig.ResponseSchema = buildFeedbackSchema()
	}

	return genConfig
}

// executeWithRetry executes an AI operation with retry logic and exponential backoff
func (g *GeminiService) executeWithRetry(ctx context.Context, operation string, fn func() (*genai.GenerateContentResponse, error)) (*genai.GenerateContentResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("Retrying AI operation",
				"operation", operation,
				"attempt", attempt,
				"max_retries", g.config.MaxRetries,
				"error", lastErr.Error())

			// Exponential backoff with jitter to prevent thundering herd
			baseDelay := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			jitterMax := big.NewInt(int64(float64(baseDelay) * 0.1))
			jitterBig, _ := rand.Int(rand.Reader, jitterMax)
			jitter := time.Duration(jitterBig.Int64())
			// Cap maximum backoff at 30 seconds
			backoff := min(baseDelay+jitter, 30*time.Second)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := fn()
		if err == nil {
			if attempt > 0 {
				g.logger.Info("AI operation succeeded after retry",
					"operation", operation,
					"successful_attempt", attempt+1)
			}
			return result, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			g.logger.Debug("Error is not retryable, stopping retry attempts",
				"operation", operation,
				"error", err.Error())
			break
		}
	}

	g.logger.LogError(lastErr, "AI operation failed after all retry attempts",
		"operation", operation,
		"total_attempts", g.config.MaxRetries+1)

	return nil, lastErr
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	return false
}

// TokenUsage represents token usage information from AI responses
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// extractTokenUsage extracts token usage information from a Gemini response
func extractTokenUsage(result *genai.GenerateContentResponse) *TokenUsage {
	if result == nil || result.UsageMetadata == nil {
		return nil
	}
	usage := result.UsageMetadata
	return &TokenUsage{
		InputTokens:  int64(usage.PromptTokenCount),
		OutputTokens: int64(usage.CandidatesTokenCount),
		TotalTokens:  int64(usage.TotalTokenCount),
	}
}
