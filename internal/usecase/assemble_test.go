package usecase

import (
	"testing"
	"time"

	"HypeScanner/internal/config"
	"HypeScanner/internal/domain"
)

func TestNicheDetected(t *testing.T) {
	t.Parallel()

	cfg := config.AnalysisConfig{NicheMentions30d: 50, NicheMentionsTotal: 100}

	cases := []struct {
		name   string
		social *domain.SourceMetrics
		want   bool
	}{
		{"missing social", nil, false},
		{"popular", &domain.SourceMetrics{Mentions30d: 200, MentionsTotal: 900}, false},
		{"at thresholds", &domain.SourceMetrics{Mentions30d: 50, MentionsTotal: 100}, false},
		{"sparse recent", &domain.SourceMetrics{Mentions30d: 49, MentionsTotal: 900}, true},
		{"sparse total", &domain.SourceMetrics{Mentions30d: 200, MentionsTotal: 99}, true},
		{"sparse both", &domain.SourceMetrics{Mentions30d: 0, MentionsTotal: 0}, true},
	}

	for _, tc := range cases {
		if got := NicheDetected(tc.social, cfg); got != tc.want {
			t.Fatalf("%s: NicheDetected = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAssembleResultCountsAndPartialFlag(t *testing.T) {
	t.Parallel()

	metrics := map[domain.Source]*domain.SourceMetrics{
		domain.SourceSocial:  {Source: domain.SourceSocial},
		domain.SourcePapers:  {Source: domain.SourcePapers},
		domain.SourcePatents: nil,
		domain.SourceNews:    {Source: domain.SourceNews},
		domain.SourceFinance: nil,
	}
	final := domain.PhaseOpinion{Phase: domain.PhaseTrough, Confidence: 0.55, Reasoning: "mixed"}
	createdAt := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	result := AssembleResult("edge ai", final, nil, metrics, domain.ExpansionState{},
		[]string{"patents collector failed: boom"}, createdAt, createdAt.Add(time.Hour), false)

	if result.CollectorsSucceeded != 3 {
		t.Fatalf("succeeded = %d, want 3", result.CollectorsSucceeded)
	}
	if !result.PartialData {
		t.Fatal("expected partial data flag")
	}
	if result.Phase != domain.PhaseTrough || result.Confidence != 0.55 {
		t.Fatalf("verdict not carried over: %s/%v", result.Phase, result.Confidence)
	}
	if result.ExpiresAt != createdAt.Add(time.Hour) {
		t.Fatalf("unexpected expiry: %s", result.ExpiresAt)
	}
}

func TestAssembleResultNormalizesNilSlices(t *testing.T) {
	t.Parallel()

	result := AssembleResult("edge ai", domain.PhaseOpinion{Phase: domain.PhasePeak},
		nil, nil, domain.ExpansionState{}, nil, time.Now(), time.Now(), true)

	if result.Errors == nil || result.ExpandedTerms == nil {
		t.Fatal("slices must be empty, not nil")
	}
	if result.PerSource == nil || result.Collector == nil {
		t.Fatal("maps must be empty, not nil")
	}
	if !result.CacheHit {
		t.Fatal("cache hit flag dropped")
	}
	if result.CollectorsSucceeded != 0 || !result.PartialData {
		t.Fatalf("empty metrics should be 0 succeeded and partial, got %d/%v",
			result.CollectorsSucceeded, result.PartialData)
	}
}

func TestAssembleResultExpansionState(t *testing.T) {
	t.Parallel()

	state := domain.ExpansionState{Applied: true, Terms: []string{"a", "b", "c"}}
	result := AssembleResult("edge ai", domain.PhaseOpinion{Phase: domain.PhaseSlope},
		nil, nil, state, nil, time.Now(), time.Now(), false)

	if !result.ExpansionApplied {
		t.Fatal("expansion flag dropped")
	}
	if len(result.ExpandedTerms) != 3 {
		t.Fatalf("terms dropped: %v", result.ExpandedTerms)
	}
}
