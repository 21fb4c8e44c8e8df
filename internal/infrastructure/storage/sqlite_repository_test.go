package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"HypeScanner/internal/domain"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := Open(context.Background(), ":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleResult(keyword string, createdAt time.Time) *domain.ClassificationResult {
	return &domain.ClassificationResult{
		Keyword:    keyword,
		Phase:      domain.PhasePeak,
		Confidence: 0.82,
		Reasoning:  "strong coverage across sources",
		PerSource: map[domain.Source]domain.PhaseOpinion{
			domain.SourceSocial: {Phase: domain.PhasePeak, Confidence: 0.9, Reasoning: "front page regular"},
			domain.SourceNews:   {Phase: domain.PhaseSlope, Confidence: 0.7, Reasoning: "steadier tone"},
		},
		Collector: map[domain.Source]*domain.SourceMetrics{
			domain.SourceSocial: {
				Source:        domain.SourceSocial,
				Keyword:       keyword,
				Mentions30d:   140,
				MentionsTotal: 600,
				Extra: map[string]any{
					"sentiment":    0.42,
					"growth_trend": "increasing",
				},
			},
			domain.SourceNews: {
				Source:  domain.SourceNews,
				Keyword: keyword,
				Extra:   map[string]any{"articles_30d": float64(88)},
			},
			domain.SourcePapers:  nil,
			domain.SourcePatents: nil,
			domain.SourceFinance: nil,
		},
		CollectorsSucceeded: 2,
		PartialData:         true,
		Errors:              []string{"papers collector failed: down"},
		ExpansionApplied:    true,
		ExpandedTerms:       []string{"a", "b", "c"},
		CreatedAt:           createdAt,
		ExpiresAt:           createdAt.Add(24 * time.Hour),
	}
}

func TestSaveAndLatestRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	if err := repo.Save(ctx, sampleResult("quantum computing", createdAt)); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := repo.Latest(ctx, "quantum computing", createdAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if got == nil {
		t.Fatal("expected a live row")
	}

	if got.Phase != domain.PhasePeak || got.Confidence != 0.82 {
		t.Fatalf("verdict mismatch: %s/%v", got.Phase, got.Confidence)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Fatalf("created_at mismatch: %s", got.CreatedAt)
	}

	social := got.Collector[domain.SourceSocial]
	if social == nil {
		t.Fatal("social metrics missing")
	}
	if social.Mentions30d != 140 || social.MentionsTotal != 600 {
		t.Fatalf("typed fields lost: %d/%d", social.Mentions30d, social.MentionsTotal)
	}
	if social.Extra["growth_trend"] != "increasing" {
		t.Fatalf("extra fields lost: %v", social.Extra)
	}
	if got.Collector[domain.SourcePapers] != nil {
		t.Fatal("absent collector came back non-nil")
	}

	// Derived fields are recomputed, run errors are not persisted.
	if got.CollectorsSucceeded != 2 || !got.PartialData {
		t.Fatalf("derived fields wrong: %d partial=%v", got.CollectorsSucceeded, got.PartialData)
	}
	if len(got.Errors) != 0 {
		t.Fatalf("errors must come back empty, got %v", got.Errors)
	}

	if !got.ExpansionApplied || len(got.ExpandedTerms) != 3 {
		t.Fatalf("expansion state lost: %v/%v", got.ExpansionApplied, got.ExpandedTerms)
	}
	if len(got.PerSource) != 2 {
		t.Fatalf("per-source opinions lost: %v", got.PerSource)
	}
	if op := got.PerSource[domain.SourceSocial]; op.Phase != domain.PhasePeak {
		t.Fatalf("social opinion mismatch: %+v", op)
	}
}

func TestLatestMissesExpiredRows(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	if err := repo.Save(ctx, sampleResult("old tech", createdAt)); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := repo.Latest(ctx, "old tech", createdAt.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if got != nil {
		t.Fatal("expired row must read as absent")
	}

	// Exactly at expiry counts as expired too.
	got, err = repo.Latest(ctx, "old tech", createdAt.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if got != nil {
		t.Fatal("row at expiry instant must read as absent")
	}
}

func TestLatestMissesUnknownKeyword(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)

	got, err := repo.Latest(context.Background(), "never analyzed", time.Now())
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if got != nil {
		t.Fatal("expected a miss")
	}
}

func TestLatestPrefersNewestRow(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	first := sampleResult("ai agents", base)
	first.Phase = domain.PhaseTrough
	second := sampleResult("ai agents", base.Add(2*time.Hour))
	second.Phase = domain.PhaseSlope

	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := repo.Latest(ctx, "ai agents", base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if got == nil || got.Phase != domain.PhaseSlope {
		t.Fatalf("expected newest row, got %+v", got)
	}
}

func TestLatestOrdersSubSecondRows(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	// Whole-second and sub-second timestamps within the same second must
	// still sort by age, not by string length.
	first := sampleResult("carbon capture", base)
	first.Phase = domain.PhaseTrough
	second := sampleResult("carbon capture", base.Add(500*time.Millisecond))
	second.Phase = domain.PhaseSlope

	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := repo.Save(ctx, second); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := repo.Latest(ctx, "carbon capture", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if got == nil || got.Phase != domain.PhaseSlope {
		t.Fatalf("expected newest row, got %+v", got)
	}
}

func TestLatestExpiryWithinSameSecond(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)

	if err := repo.Save(ctx, sampleResult("old tech", createdAt)); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	// Expiry lands on a whole second; a query half a second later must
	// still see the row as expired.
	got, err := repo.Latest(ctx, "old tech", createdAt.Add(24*time.Hour+500*time.Millisecond))
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if got != nil {
		t.Fatal("row past expiry must read as absent")
	}
}

func TestDeleteExpired(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	if err := repo.Save(ctx, sampleResult("stale one", base.Add(-48*time.Hour))); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := repo.Save(ctx, sampleResult("stale two", base.Add(-30*time.Hour))); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := repo.Save(ctx, sampleResult("fresh", base)); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	removed, err := repo.DeleteExpired(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	got, err := repo.Latest(ctx, "fresh", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if got == nil {
		t.Fatal("live row deleted")
	}
}
