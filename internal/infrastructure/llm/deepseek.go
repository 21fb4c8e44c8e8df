package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"HypeScanner/internal/config"
	"HypeScanner/internal/domain"
	"HypeScanner/internal/ports"
)

const (
	minExpansionTerms = 3
	maxExpansionTerms = 5
	maxRelatedTickers = 8
)

// genericTerms are expansion candidates too broad to return a usable signal.
var genericTerms = map[string]struct{}{
	"technology": {},
	"system":     {},
	"innovation": {},
	"solution":   {},
	"platform":   {},
	"software":   {},
	"tool":       {},
	"science":    {},
	"research":   {},
	"data":       {},
}

var tickerExpr = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// DeepSeekClient implements ports.ClassifierClient against the DeepSeek
// chat-completions API. All calls use the same fixed low temperature and
// per-call timeout; failures are classified into the four classifier error
// kinds so the orchestrator can report them uniformly.
type DeepSeekClient struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ ports.ClassifierClient = (*DeepSeekClient)(nil)

// NewDeepSeekClient builds a client from configuration. A nil http.Client
// gets a default one carrying the configured request timeout.
func NewDeepSeekClient(cfg config.DeepSeekConfig, client *http.Client, logger *slog.Logger) *DeepSeekClient {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout()}
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.3
	}
	return &DeepSeekClient{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: temperature,
		httpClient:  client,
		logger:      logger,
	}
}

// ClassifySource produces one opinion from a single collector's metrics.
func (c *DeepSeekClient) ClassifySource(ctx context.Context, source domain.Source, metrics *domain.SourceMetrics, keyword string) (domain.PhaseOpinion, error) {
	op := fmt.Sprintf("classify %s", source)

	prompt, err := sourcePrompt(source, metrics, keyword)
	if err != nil {
		return domain.PhaseOpinion{}, &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse, Err: err}
	}

	content, err := c.chat(ctx, op, prompt)
	if err != nil {
		return domain.PhaseOpinion{}, err
	}
	return c.parseOpinion(op, content)
}

// Synthesize folds the per-source opinions into the final verdict.
func (c *DeepSeekClient) Synthesize(ctx context.Context, keyword string, opinions map[domain.Source]domain.PhaseOpinion) (domain.PhaseOpinion, error) {
	const op = "synthesize"

	content, err := c.chat(ctx, op, synthesisPrompt(keyword, opinions))
	if err != nil {
		return domain.PhaseOpinion{}, err
	}
	return c.parseOpinion(op, content)
}

// ExpandQuery asks for related search terms and validates them: non-empty,
// not a generic token, distinct from the keyword, at least three usable.
func (c *DeepSeekClient) ExpandQuery(ctx context.Context, keyword string) ([]string, error) {
	const op = "expand query"

	content, err := c.chat(ctx, op, expansionPrompt(keyword))
	if err != nil {
		return nil, err
	}

	var reply struct {
		Terms []string `json:"terms"`
	}
	if err := c.decodeReply(content, &reply); err != nil {
		return nil, &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse,
			Err: fmt.Errorf("no terms in response: %w", err)}
	}
	if len(reply.Terms) == 0 {
		return nil, &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse,
			Err: errors.New("no terms in response")}
	}

	valid := filterExpansionTerms(keyword, reply.Terms)
	if len(valid) < minExpansionTerms {
		return nil, &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse,
			Err: fmt.Errorf("only %d valid terms after filtering, need %d", len(valid), minExpansionTerms)}
	}
	if len(valid) > maxExpansionTerms {
		valid = valid[:maxExpansionTerms]
	}
	return valid, nil
}

// RelatedTickers maps a keyword to public-company ticker symbols for the
// finance collector.
func (c *DeepSeekClient) RelatedTickers(ctx context.Context, keyword string) ([]string, error) {
	const op = "related tickers"

	content, err := c.chat(ctx, op, tickersPrompt(keyword))
	if err != nil {
		return nil, err
	}

	var reply struct {
		Tickers []string `json:"tickers"`
	}
	if err := c.decodeReply(content, &reply); err != nil {
		return nil, &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse, Err: err}
	}

	seen := map[string]struct{}{}
	var tickers []string
	for _, t := range reply.Tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if !tickerExpr.MatchString(t) {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tickers = append(tickers, t)
		if len(tickers) == maxRelatedTickers {
			break
		}
	}

	if len(tickers) == 0 {
		return nil, &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse,
			Err: errors.New("no usable ticker symbols in response")}
	}
	return tickers, nil
}

// chat posts one prompt and returns the assistant message content.
func (c *DeepSeekClient) chat(ctx context.Context, op, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", &domain.ClassifierError{Op: op, Kind: domain.ClassifierUnauthenticated,
			Err: errors.New("api key is not configured")}
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", &domain.ClassifierError{Op: op, Kind: domain.ClassifierTimedOut, Err: err}
		}
		return "", fmt.Errorf("call deepseek: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &domain.ClassifierError{Op: op, Kind: domain.ClassifierRateLimited,
			Err: fmt.Errorf("deepseek returned %s", resp.Status)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &domain.ClassifierError{Op: op, Kind: domain.ClassifierUnauthenticated,
			Err: fmt.Errorf("deepseek returned %s", resp.Status)}
	case resp.StatusCode >= http.StatusBadRequest:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse,
			Err: fmt.Errorf("deepseek returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse,
			Err: fmt.Errorf("decode response envelope: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse,
			Err: errors.New("response has no choices")}
	}
	return parsed.Choices[0].Message.Content, nil
}

// parseOpinion decodes one classification reply and enforces the strict
// contract: required fields present, phase in the enum, confidence in [0,1].
func (c *DeepSeekClient) parseOpinion(op, content string) (domain.PhaseOpinion, error) {
	var raw struct {
		Phase      *domain.Phase `json:"phase"`
		Confidence *float64      `json:"confidence"`
		Reasoning  *string       `json:"reasoning"`
	}
	if err := c.decodeReply(content, &raw); err != nil {
		return domain.PhaseOpinion{}, &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse, Err: err}
	}
	if raw.Phase == nil || raw.Confidence == nil || raw.Reasoning == nil {
		return domain.PhaseOpinion{}, &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse,
			Err: errors.New("response missing required fields phase/confidence/reasoning")}
	}

	opinion := domain.PhaseOpinion{Phase: *raw.Phase, Confidence: *raw.Confidence, Reasoning: *raw.Reasoning}
	if err := opinion.Validate(); err != nil {
		return domain.PhaseOpinion{}, &domain.ClassifierError{Op: op, Kind: domain.ClassifierMalformedResponse, Err: err}
	}
	return opinion, nil
}

// decodeReply attempts a direct structured decode, then falls back to
// extracting balanced JSON objects embedded in surrounding prose or fencing.
func (c *DeepSeekClient) decodeReply(content string, v any) error {
	content = strings.TrimSpace(content)
	if err := json.Unmarshal([]byte(content), v); err == nil {
		return nil
	}

	candidates := extractJSONObjects(content)
	for _, candidate := range candidates {
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			if c.logger != nil {
				c.logger.Debug("recovered JSON payload from wrapped reply", "candidates", len(candidates))
			}
			return nil
		}
	}
	return fmt.Errorf("no decodable JSON object in reply (%d candidates)", len(candidates))
}

func filterExpansionTerms(keyword string, terms []string) []string {
	seen := map[string]struct{}{}
	var valid []string
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		folded := strings.ToLower(term)
		if _, generic := genericTerms[folded]; generic {
			continue
		}
		if strings.EqualFold(term, strings.TrimSpace(keyword)) {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		seen[folded] = struct{}{}
		valid = append(valid, term)
	}
	return valid
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
