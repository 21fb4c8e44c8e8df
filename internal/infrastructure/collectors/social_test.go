package collectors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestSocialCollectorFetch(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		queries []string
		filters []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("query"))
		filters = append(filters, r.URL.Query().Get("numericFilters"))
		mu.Unlock()

		filter := r.URL.Query().Get("numericFilters")
		switch {
		case !strings.Contains(filter, ","):
			// 30-day window: open-ended lower bound only.
			fmt.Fprint(w, `{"nbHits": 42, "hits": [
				{"title": "big launch", "points": 320, "num_comments": 180, "created_at_i": 1772000000},
				{"title": "deep dive", "points": 80, "num_comments": 40, "created_at_i": 1771000000}
			]}`)
		default:
			fmt.Fprint(w, `{"nbHits": 30, "hits": [{"title": "older", "points": 20, "num_comments": 5, "created_at_i": 1760000000}]}`)
		}
	}))
	defer server.Close()

	c := NewSocialCollector(server.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = server.URL
	c.now = fixedNow

	metrics, err := c.Fetch(context.Background(), "quantum computing", nil)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	if len(queries) != 3 {
		t.Fatalf("expected 3 window requests, got %d", len(queries))
	}
	for _, q := range queries {
		if q != "quantum computing" {
			t.Fatalf("unexpected query: %q", q)
		}
	}

	if metrics.Mentions30d != 42 {
		t.Fatalf("Mentions30d = %d, want 42", metrics.Mentions30d)
	}
	if metrics.MentionsTotal != 102 {
		t.Fatalf("MentionsTotal = %d, want 102", metrics.MentionsTotal)
	}
	if metrics.Extra["mentions_6m"] != 30 || metrics.Extra["mentions_1y"] != 30 {
		t.Fatalf("window counts wrong: %v / %v", metrics.Extra["mentions_6m"], metrics.Extra["mentions_1y"])
	}
	if metrics.Extra["avg_points_30d"] != 200.0 {
		t.Fatalf("avg_points_30d = %v, want 200", metrics.Extra["avg_points_30d"])
	}

	stories, ok := metrics.Extra["top_stories"].([]map[string]any)
	if !ok || len(stories) != 2 {
		t.Fatalf("top_stories wrong: %v", metrics.Extra["top_stories"])
	}
	if stories[0]["title"] != "big launch" {
		t.Fatalf("unexpected top story: %v", stories[0])
	}
	if len(metrics.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", metrics.Errors)
	}
}

func TestSocialCollectorExpansionQuery(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		query    string
		optional string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		query = r.URL.Query().Get("query")
		optional = r.URL.Query().Get("optionalWords")
		mu.Unlock()
		fmt.Fprint(w, `{"nbHits": 1, "hits": []}`)
	}))
	defer server.Close()

	c := NewSocialCollector(server.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = server.URL
	c.now = fixedNow

	_, err := c.Fetch(context.Background(), "neuromorphic computing", []string{"spiking networks", "brain chips"})
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	want := "neuromorphic computing spiking networks brain chips"
	if query != want {
		t.Fatalf("query = %q, want %q", query, want)
	}
	if optional != want {
		t.Fatalf("optionalWords = %q, want %q", optional, want)
	}
}

func TestSocialCollectorPartialWindows(t *testing.T) {
	t.Parallel()

	var calls int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 2 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"nbHits": 10, "hits": []}`)
	}))
	defer server.Close()

	c := NewSocialCollector(server.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = server.URL
	c.now = fixedNow

	metrics, err := c.Fetch(context.Background(), "edge ai", nil)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}

	if metrics.MentionsTotal != 20 {
		t.Fatalf("MentionsTotal = %d, want 20", metrics.MentionsTotal)
	}
	if len(metrics.Errors) != 1 || metrics.Errors[0] != "Rate limited" {
		t.Fatalf("unexpected errors: %v", metrics.Errors)
	}
}

func TestSocialCollectorAllWindowsFailed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewSocialCollector(server.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = server.URL
	c.now = fixedNow

	_, err := c.Fetch(context.Background(), "edge ai", nil)
	if err == nil {
		t.Fatal("expected error when every window fails")
	}
	if !strings.Contains(err.Error(), "all hacker news requests failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMentionBuckets(t *testing.T) {
	t.Parallel()

	if got := mentionRecency(0, 0, 0); got != "low" {
		t.Fatalf("empty recency = %q", got)
	}
	if got := mentionRecency(60, 20, 20); got != "high" {
		t.Fatalf("high recency = %q", got)
	}
	if got := mentionRecency(30, 40, 30); got != "medium" {
		t.Fatalf("medium recency = %q", got)
	}

	// 11-month average of (6m+1y) is the baseline, 30% band.
	if got := mentionGrowthTrend(20, 55, 55); got != "increasing" {
		t.Fatalf("growth = %q, want increasing", got)
	}
	if got := mentionGrowthTrend(5, 55, 55); got != "decreasing" {
		t.Fatalf("growth = %q, want decreasing", got)
	}
	if got := mentionGrowthTrend(10, 55, 55); got != "stable" {
		t.Fatalf("growth = %q, want stable", got)
	}
}

func TestEngagementSentiment(t *testing.T) {
	t.Parallel()

	if got := engagementSentiment(50); got != 0 {
		t.Fatalf("neutral sentiment = %v", got)
	}
	if got := engagementSentiment(150); got <= 0.7 || got >= 1 {
		t.Fatalf("hot sentiment = %v", got)
	}
	if got := engagementSentiment(0); got >= 0 {
		t.Fatalf("cold sentiment = %v", got)
	}
}

func TestRateHelpers(t *testing.T) {
	t.Parallel()

	if got := growthVelocity(0, 0); got != 0 {
		t.Fatalf("velocity(0,0) = %v", got)
	}
	if got := growthVelocity(5, 0); got != 1 {
		t.Fatalf("velocity(5,0) = %v", got)
	}
	if got := growthVelocity(15, 10); got != 0.5 {
		t.Fatalf("velocity(15,10) = %v", got)
	}

	if got := rateMomentum(16, 10); got != "accelerating" {
		t.Fatalf("momentum = %q", got)
	}
	if got := rateMomentum(4, 10); got != "decelerating" {
		t.Fatalf("momentum = %q", got)
	}
	if got := rateMomentum(10, 10); got != "steady" {
		t.Fatalf("momentum = %q", got)
	}

	if got := rateTrend(14, 10); got != "increasing" {
		t.Fatalf("trend = %q", got)
	}
	if got := rateTrend(6, 10); got != "decreasing" {
		t.Fatalf("trend = %q", got)
	}
	if got := rateTrend(11, 10); got != "stable" {
		t.Fatalf("trend = %q", got)
	}
}
