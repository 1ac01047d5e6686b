package services

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"Copilot/models"
	"Copilot/pkg/apperr"
	"Copilot/pkg/config"
	"Copilot/pkg/metrics"
)

const (
	// FallbackResponse is returned when the upstream answers 2xx without
	// any content.
	FallbackResponse = "Sorry, unable to generate response."

	CurrentQuestionTag = "[CURRENT QUESTION - ANSWER ONLY THIS]\n"

	healthCheckTimeout = 5 * time.Second
)

// CompletionService talks to one OpenAI-compatible chat completions
// endpoint (Mistral by default).
type CompletionService struct {
	client      *openai.Client
	httpClient  *http.Client
	model       string
	temperature float32
	maxTokens   int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewCompletionService(cfg config.MistralConfig, logger *slog.Logger, m *metrics.Metrics) (*CompletionService, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("MISTRAL_API_KEY is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxConnsPerHost = cfg.MaxConns
	transport.MaxIdleConns = cfg.MaxIdleConns
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConns
	transport.IdleConnTimeout = cfg.IdleTimeout
	httpClient := &http.Client{Transport: transport, Timeout: cfg.Timeout}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = httpClient

	logger.Info("completion client ready", "model", cfg.Model, "base_url", oc.BaseURL, "timeout", cfg.Timeout)
	return &CompletionService{
		client:      openai.NewClientWithConfig(oc),
		httpClient:  httpClient,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		metrics:     m,
		logger:      logger.With("component", "completion"),
	}, nil
}

// Generate answers prompt. On a rate limit it retries with a shorter
// history, see HistoryVariants; any other error is returned at once.
func (s *CompletionService) Generate(ctx context.Context, prompt, systemPrompt string, history []models.ChatMessage) (string, error) {
	variants := HistoryVariants(history)

	var lastErr error
	for i, variant := range variants {
		if i > 0 {
			s.metrics.HistoryFallback()
			s.logger.Warn("rate limited, retrying with shorter history",
				"attempt", i+1, "history", len(variant))
		}
		text, err := s.complete(ctx, BuildMessages(systemPrompt, variant, prompt), s.maxTokens)
		if err == nil {
			return text, nil
		}
		if !apperr.Is(err, apperr.KindRateLimit) {
			return "", err
		}
		lastErr = err
	}
	s.logger.Error("rate limited on every history variant", "attempts", len(variants))
	return "", lastErr
}

// HistoryVariants lists the histories to try in order: the full history,
// then only its last message when there was more than one, then none.
func HistoryVariants(history []models.ChatMessage) [][]models.ChatMessage {
	variants := make([][]models.ChatMessage, 0, 3)
	if len(history) > 0 {
		variants = append(variants, history)
	}
	if len(history) > 1 {
		variants = append(variants, history[len(history)-1:])
	}
	return append(variants, nil)
}

func BuildMessages(systemPrompt string, history []models.ChatMessage, prompt string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, m := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: CurrentQuestionTag + prompt,
	})
}

func (s *CompletionService) complete(ctx context.Context, msgs []openai.ChatCompletionMessage, maxTokens int) (string, error) {
	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    msgs,
		Temperature: s.temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		cerr := classify(err)
		if errors.Is(err, context.Canceled) {
			// the caller went away; not an upstream failure
			s.metrics.UpstreamCall("cancelled")
			s.logger.Debug("completion cancelled", "elapsed", time.Since(start))
			return "", cerr
		}
		s.metrics.UpstreamCall(apperr.KindOf(cerr).String())
		s.logger.Warn("completion failed", "err", err, "kind", apperr.KindOf(cerr).String(), "elapsed", time.Since(start))
		return "", cerr
	}
	s.metrics.UpstreamCall("success")

	if len(resp.Choices) == 0 {
		s.logger.Warn("empty choices in completion response")
		return FallbackResponse, nil
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		s.logger.Warn("empty content in completion response")
		return FallbackResponse, nil
	}
	s.logger.Debug("completion done", "chars", len(text), "messages", len(msgs), "elapsed", time.Since(start))
	return text, nil
}

// HealthCheck sends a tiny completion to verify the key and endpoint.
func (s *CompletionService) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	_, err := s.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "You are a helpful assistant."},
		{Role: openai.ChatMessageRoleUser, Content: "test"},
	}, 5)
	return err
}

func (s *CompletionService) Close() {
	s.httpClient.CloseIdleConnections()
}

func upstreamStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.KindTimeout, err, "request cancelled while waiting for the completion API")
	}
	switch status := upstreamStatus(err); {
	case status == http.StatusTooManyRequests:
		return apperr.Wrap(apperr.KindRateLimit, err, "request limit exceeded for the configured model, please retry later")
	case status == http.StatusUnauthorized:
		return apperr.Wrap(apperr.KindAuth, err, "invalid completion API key")
	case status == http.StatusBadRequest:
		return apperr.Wrap(apperr.KindValidation, err, "completion API rejected the request")
	case status != 0:
		return apperr.Wrap(apperr.KindUpstream, err, "error when contacting the completion API (status %d)", status)
	case isTimeout(err):
		return apperr.Wrap(apperr.KindTimeout, err, "timeout waiting for the completion API")
	default:
		return apperr.Wrap(apperr.KindUpstream, err, "completion API unavailable")
	}
}
