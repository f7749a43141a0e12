package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	geminiTimeout   = 60 * time.Second
	geminiRetries   = 2
	geminiRetryBase = time.Second
)

// geminiClient speaks the generateContent REST API. It walks a candidate
// model list so a deleted or renamed model ID degrades to the next one, and
// remembers which candidate last worked.
type geminiClient struct {
	apiKey    string
	models    []string
	client    *resty.Client
	activeIdx int
	retries   int
	retryBase time.Duration
	log       *logrus.Entry
}

func newGeminiClient(apiKey string, models []string) *geminiClient {
	return &geminiClient{
		apiKey:    apiKey,
		models:    buildModelCandidates(models),
		client:    resty.New().SetBaseURL(geminiBaseURL).SetTimeout(geminiTimeout),
		retries:   geminiRetries,
		retryBase: geminiRetryBase,
		log:       logrus.WithField("component", "gemini"),
	}
}

// buildModelCandidates orders the configured models first, then the known
// stable fallbacks, dropping blanks and duplicates.
func buildModelCandidates(models []string) []string {
	candidates := make([]string, 0, len(models)+3)
	candidates = append(candidates, models...)
	candidates = append(candidates, "gemini-2.0-flash", "gemini-2.5-flash", "gemini-2.5-flash-lite")

	unique := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, model := range candidates {
		trimmed := strings.TrimSpace(model)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		unique = append(unique, trimmed)
	}
	return unique
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *geminiAPIError `json:"error,omitempty"`
}

type geminiAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// apiError keeps the HTTP status so retry decisions don't have to parse
// error strings.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gemini api %d: %s", e.status, e.message)
}

func (g *geminiClient) generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for offset := 0; offset < len(g.models); offset++ {
		idx := (g.activeIdx + offset) % len(g.models)
		model := g.models[idx]

		for attempt := 0; attempt <= g.retries; attempt++ {
			text, err := g.call(ctx, model, prompt)
			if err == nil {
				g.activeIdx = idx
				return text, nil
			}
			lastErr = err
			if isModelNotFound(err) {
				// next candidate survives deleted or renamed model IDs
				break
			}
			if isRetryable(err) && attempt < g.retries {
				g.sleep(ctx, retryDelay(attempt, g.retryBase))
				continue
			}
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no usable model candidates")
	}
	return "", lastErr
}

func (g *geminiClient) call(ctx context.Context, model, prompt string) (string, error) {
	var out geminiResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}}).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/models/%s:generateContent", model))
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		message := resp.Status()
		if out.Error != nil && out.Error.Message != "" {
			message = out.Error.Message
		}
		return "", &apiError{status: resp.StatusCode(), message: message}
	}

	for _, candidate := range out.Candidates {
		var sb strings.Builder
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
		if text := strings.TrimSpace(sb.String()); text != "" {
			return text, nil
		}
	}
	// A blocked or empty completion is not an error; the caller's JSON
	// parse fails and the rule-based fallbacks take over.
	return "", nil
}

func (g *geminiClient) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func isModelNotFound(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status == 404
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

// isRetryable covers rate limits and transient server or network failures.
// Daily-quota exhaustion is final; retrying it only burns time.
func isRetryable(err error) bool {
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "perday") || strings.Contains(message, "requestsperday") {
		return false
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		switch apiErr.status {
		case 429, 500, 503:
			return true
		}
	}

	for _, token := range []string{
		"rate limit",
		"quota exceeded",
		"timed out",
		"timeout",
		"temporarily unavailable",
		"unavailable",
		"internal",
		"connection reset",
		"deadline exceeded",
	} {
		if strings.Contains(message, token) {
			return true
		}
	}
	return false
}

func retryDelay(attempt int, base time.Duration) time.Duration {
	jitter := 0.8 + rand.Float64()*0.4
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)) * jitter)
	if delay < 100*time.Millisecond {
		delay = 100 * time.Millisecond
	}
	return delay
}
