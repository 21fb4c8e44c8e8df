package usecase

import (
	"time"

	"HypeScanner/internal/domain"
)

// AssembleResult builds the externally visible record from final orchestrator
// state. Pure function with no branching on external state, so the cache-hit
// and fresh paths produce identical shapes.
func AssembleResult(
	keyword string,
	final domain.PhaseOpinion,
	opinions map[domain.Source]domain.PhaseOpinion,
	metrics map[domain.Source]*domain.SourceMetrics,
	expansion domain.ExpansionState,
	errs []string,
	createdAt, expiresAt time.Time,
	cacheHit bool,
) *domain.ClassificationResult {
	succeeded := 0
	for _, m := range metrics {
		if m != nil {
			succeeded++
		}
	}

	if opinions == nil {
		opinions = map[domain.Source]domain.PhaseOpinion{}
	}
	if metrics == nil {
		metrics = map[domain.Source]*domain.SourceMetrics{}
	}
	if errs == nil {
		errs = []string{}
	}
	terms := expansion.Terms
	if terms == nil {
		terms = []string{}
	}

	return &domain.ClassificationResult{
		Keyword:             keyword,
		Phase:               final.Phase,
		Confidence:          final.Confidence,
		Reasoning:           final.Reasoning,
		PerSource:           opinions,
		Collector:           metrics,
		CollectorsSucceeded: succeeded,
		PartialData:         succeeded < len(domain.SourceOrder),
		Errors:              errs,
		ExpansionApplied:    expansion.Applied,
		ExpandedTerms:       terms,
		CacheHit:            cacheHit,
		CreatedAt:           createdAt,
		ExpiresAt:           expiresAt,
	}
}
