package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"HypeScanner/internal/config"
	"HypeScanner/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *DeepSeekClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewDeepSeekClient(config.DeepSeekConfig{
		Endpoint:    server.URL,
		Model:       "deepseek-chat",
		APIKey:      "test-key",
		Temperature: 0.3,
	}, server.Client(), nil)
}

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	}
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		t.Fatalf("encode reply: %v", err)
	}
}

func classifierKind(t *testing.T, err error) domain.ClassifierErrorKind {
	t.Helper()
	var cerr *domain.ClassifierError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected classifier error, got %v", err)
	}
	return cerr.Kind
}

func TestClassifySourceParsesOpinion(t *testing.T) {
	t.Parallel()

	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		chatReply(t, w, `{"phase": "peak", "confidence": 0.85, "reasoning": "heavy media coverage"}`)
	})

	metrics := &domain.SourceMetrics{Source: domain.SourceSocial, Mentions30d: 120}
	opinion, err := client.ClassifySource(context.Background(), domain.SourceSocial, metrics, "quantum computing")
	if err != nil {
		t.Fatalf("ClassifySource error: %v", err)
	}

	if opinion.Phase != domain.PhasePeak {
		t.Fatalf("unexpected phase: %s", opinion.Phase)
	}
	if opinion.Confidence != 0.85 {
		t.Fatalf("unexpected confidence: %v", opinion.Confidence)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}

func TestClassifySourceRecoversFencedJSON(t *testing.T) {
	t.Parallel()

	content := "Here is my analysis:\n```json\n{\"phase\": \"trough\", \"confidence\": 0.6, \"reasoning\": \"interest fading\"}\n```\nHope that helps."
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, content)
	})

	opinion, err := client.ClassifySource(context.Background(), domain.SourceNews,
		&domain.SourceMetrics{Source: domain.SourceNews}, "metaverse")
	if err != nil {
		t.Fatalf("ClassifySource error: %v", err)
	}
	if opinion.Phase != domain.PhaseTrough {
		t.Fatalf("unexpected phase: %s", opinion.Phase)
	}
}

func TestClassifySourceRejectsBadOpinions(t *testing.T) {
	t.Parallel()

	for name, content := range map[string]string{
		"missing field":      `{"phase": "peak", "confidence": 0.9}`,
		"unknown phase":      `{"phase": "ramp_up", "confidence": 0.9, "reasoning": "x"}`,
		"confidence too big": `{"phase": "peak", "confidence": 1.2, "reasoning": "x"}`,
		"prose only":         `the keyword is clearly peaking right now`,
	} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			chatReply(t, w, content)
		})

		_, err := client.ClassifySource(context.Background(), domain.SourceSocial,
			&domain.SourceMetrics{Source: domain.SourceSocial}, "ai agents")
		if err == nil {
			t.Fatalf("%s: accepted", name)
		}
		if kind := classifierKind(t, err); kind != domain.ClassifierMalformedResponse {
			t.Fatalf("%s: kind = %s, want malformed_response", name, kind)
		}
	}
}

func TestChatStatusMapping(t *testing.T) {
	t.Parallel()

	for status, want := range map[int]domain.ClassifierErrorKind{
		http.StatusTooManyRequests:     domain.ClassifierRateLimited,
		http.StatusUnauthorized:        domain.ClassifierUnauthenticated,
		http.StatusForbidden:           domain.ClassifierUnauthenticated,
		http.StatusInternalServerError: domain.ClassifierMalformedResponse,
	} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream unhappy", status)
		})

		_, err := client.Synthesize(context.Background(), "ai agents", nil)
		if err == nil {
			t.Fatalf("status %d: no error", status)
		}
		if kind := classifierKind(t, err); kind != want {
			t.Fatalf("status %d: kind = %s, want %s", status, kind, want)
		}
	}
}

func TestChatMissingAPIKey(t *testing.T) {
	t.Parallel()

	client := NewDeepSeekClient(config.DeepSeekConfig{Endpoint: "http://localhost:1", Model: "m"}, nil, nil)

	_, err := client.Synthesize(context.Background(), "ai agents", nil)
	if kind := classifierKind(t, err); kind != domain.ClassifierUnauthenticated {
		t.Fatalf("kind = %s, want unauthenticated", kind)
	}
}

func TestExpandQueryFiltersTerms(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"terms": ["Technology", "edge AI", " edge ai ", "federated learning", "tinyML", "edge inference", "on-device ML"]}`)
	})

	terms, err := client.ExpandQuery(context.Background(), "edge AI")
	if err != nil {
		t.Fatalf("ExpandQuery error: %v", err)
	}

	// Generic token, keyword echo and case-insensitive duplicate are dropped,
	// the remainder capped at five.
	want := []string{"federated learning", "tinyML", "edge inference", "on-device ML"}
	if len(terms) != len(want) {
		t.Fatalf("terms = %v, want %v", terms, want)
	}
	for i, term := range want {
		if terms[i] != term {
			t.Fatalf("terms[%d] = %q, want %q", i, terms[i], term)
		}
	}
}

func TestExpandQueryCapsAtFive(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"terms": ["t1", "t2", "t3", "t4", "t5", "t6", "t7"]}`)
	})

	terms, err := client.ExpandQuery(context.Background(), "edge AI")
	if err != nil {
		t.Fatalf("ExpandQuery error: %v", err)
	}
	if len(terms) != 5 {
		t.Fatalf("expected 5 terms, got %v", terms)
	}
}

func TestExpandQueryTooFewValidTerms(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"terms": ["technology", "software", "one good term", "another"]}`)
	})

	_, err := client.ExpandQuery(context.Background(), "edge AI")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := classifierKind(t, err); kind != domain.ClassifierMalformedResponse {
		t.Fatalf("kind = %s, want malformed_response", kind)
	}
}

func TestExpandQueryEmptyTermsList(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"terms": []}`)
	})

	_, err := client.ExpandQuery(context.Background(), "edge AI")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := classifierKind(t, err); kind != domain.ClassifierMalformedResponse {
		t.Fatalf("kind = %s, want malformed_response", kind)
	}
	if msg := err.Error(); strings.Contains(msg, "%!w") {
		t.Fatalf("error message carries a bad verb: %q", msg)
	}
}

func TestRelatedTickersValidation(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"tickers": ["nvda", " AMD ", "NVDA", "not a ticker", "BRK.B", "1BAD", "INTC", "QCOM", "MRVL", "AVGO", "TSM", "MU"]}`)
	})

	tickers, err := client.RelatedTickers(context.Background(), "gpu computing")
	if err != nil {
		t.Fatalf("RelatedTickers error: %v", err)
	}

	want := []string{"NVDA", "AMD", "BRK.B", "INTC", "QCOM", "MRVL", "AVGO", "TSM"}
	if fmt.Sprint(tickers) != fmt.Sprint(want) {
		t.Fatalf("tickers = %v, want %v", tickers, want)
	}
}

func TestRelatedTickersNoneUsable(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, `{"tickers": ["not a ticker", ""]}`)
	})

	_, err := client.RelatedTickers(context.Background(), "knitting")
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := classifierKind(t, err); kind != domain.ClassifierMalformedResponse {
		t.Fatalf("kind = %s, want malformed_response", kind)
	}
}
