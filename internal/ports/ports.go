package ports

import (
	"context"
	"time"

	"HypeScanner/internal/domain"
)

// Collector retrieves signal for a keyword from one external source.
// Ordinary failure modes (rate limit, empty result, partial outage) are
// reported inside SourceMetrics.Errors with zeroed counts; a non-nil error is
// the catastrophic "absent" outcome only. Fetch must be safe to call twice
// for one keyword (fresh, then with expansion terms) with no shared state
// between the calls.
type Collector interface {
	Source() domain.Source
	Fetch(ctx context.Context, keyword string, expansionTerms []string) (*domain.SourceMetrics, error)
}

// ClassifierClient drives the LLM side of a classification run.
type ClassifierClient interface {
	// ClassifySource produces one opinion from a single collector's metrics.
	ClassifySource(ctx context.Context, source domain.Source, metrics *domain.SourceMetrics, keyword string) (domain.PhaseOpinion, error)
	// Synthesize folds the per-source opinions into the final verdict.
	Synthesize(ctx context.Context, keyword string, opinions map[domain.Source]domain.PhaseOpinion) (domain.PhaseOpinion, error)
	// ExpandQuery returns 3-5 validated related search terms for a niche keyword.
	ExpandQuery(ctx context.Context, keyword string) ([]string, error)
}

// AnalysisRepository persists finished classification results.
// Latest returns (nil, nil) when no live row exists; rows at or past their
// expiry are equivalent to absent. Save is append-only.
type AnalysisRepository interface {
	Latest(ctx context.Context, keyword string, now time.Time) (*domain.ClassificationResult, error)
	Save(ctx context.Context, result *domain.ClassificationResult) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Notifier streams classification digests to an outbound channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}
