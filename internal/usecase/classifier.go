package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"HypeScanner/internal/collector"
	"HypeScanner/internal/config"
	"HypeScanner/internal/domain"
	"HypeScanner/internal/ports"
)

const maxKeywordLength = 100

// ClassifierDeps wires all driven adapters into the orchestration engine.
type ClassifierDeps struct {
	Collectors *collector.Registry
	Classifier ports.ClassifierClient
	Repository ports.AnalysisRepository
	Notifier   ports.Notifier
	Analysis   config.AnalysisConfig
	CacheTTL   time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Classifier implements the classification workflow for one keyword:
// cache lookup, parallel collector fan-out, niche detection with one-time
// query expansion, two-stage LLM classification, and persistence.
type Classifier struct {
	collectors *collector.Registry
	classifier ports.ClassifierClient
	repository ports.AnalysisRepository
	notifier   ports.Notifier
	analysis   config.AnalysisConfig
	cacheTTL   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewClassifier constructs the orchestration component.
func NewClassifier(deps ClassifierDeps) *Classifier {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Classifier{
		collectors: deps.Collectors,
		classifier: deps.Classifier,
		repository: deps.Repository,
		notifier:   deps.Notifier,
		analysis:   deps.Analysis,
		cacheTTL:   ttl,
		logger:     deps.Logger,
		now:        now,
	}
}

// Classify is the single entry point of a classification transaction.
// Fatal outcomes are either a *domain.ValidationError (bad keyword),
// a *domain.InsufficientDataError (final threshold unmet), or an unexpected
// internal failure; everything else is folded into the result's error list.
func (c *Classifier) Classify(ctx context.Context, keyword string) (*domain.ClassificationResult, error) {
	keyword, err := normalizeKeyword(keyword)
	if err != nil {
		return nil, err
	}

	if cached := c.checkCache(ctx, keyword); cached != nil {
		return cached, nil
	}

	results, failures := c.fanOut(ctx, keyword, nil, domain.SourceOrder)

	var runErrors []string
	expansion := domain.ExpansionState{}

	if NicheDetected(results[domain.SourceSocial], c.analysis) {
		c.debug("niche keyword detected, expanding query", "keyword", keyword)
		terms, expandErr := c.classifier.ExpandQuery(ctx, keyword)
		if expandErr != nil {
			// No usable expansion; continue with the original data.
			c.warn("query expansion failed", "keyword", keyword, "error", expandErr)
			runErrors = append(runErrors, fmt.Sprintf("query expansion failed: %v", expandErr))
		} else {
			expanded, expandedFailures := c.fanOut(ctx, keyword, terms, domain.ExpandableSources)
			for _, source := range domain.ExpandableSources {
				results[source] = expanded[source]
				delete(failures, source)
				if reason, ok := expandedFailures[source]; ok {
					failures[source] = reason
				}
			}
			expansion = domain.ExpansionState{Applied: true, Terms: terms}
		}
	}

	failureReasons := flattenFailures(failures)
	runErrors = append(failureReasons, runErrors...)

	succeeded := countPresent(results)
	if succeeded < c.analysis.MinSources {
		return nil, &domain.InsufficientDataError{
			Succeeded: succeeded,
			Required:  c.analysis.MinSources,
			Reasons:   failureReasons,
		}
	}

	opinions, classifyErrs := c.classifySources(ctx, keyword, results)
	runErrors = append(runErrors, classifyErrs...)
	if len(opinions) < c.analysis.MinSources {
		return nil, fmt.Errorf("per-source classification left %d/%d usable opinions: %s",
			len(opinions), c.analysis.MinSources, strings.Join(classifyErrs, "; "))
	}

	final, err := c.classifier.Synthesize(ctx, keyword, opinions)
	if err != nil {
		return nil, fmt.Errorf("synthesize opinions: %w", err)
	}

	createdAt := c.now()
	result := AssembleResult(keyword, final, opinions, results, expansion,
		runErrors, createdAt, createdAt.Add(c.cacheTTL), false)

	if err := c.repository.Save(ctx, result); err != nil {
		return nil, fmt.Errorf("persist result: %w", err)
	}

	c.notify(ctx, result)
	return result, nil
}

// checkCache returns a live cached result or nil. Storage errors are logged
// and treated as a miss; they never block a fresh analysis.
func (c *Classifier) checkCache(ctx context.Context, keyword string) *domain.ClassificationResult {
	cached, err := c.repository.Latest(ctx, keyword, c.now())
	if err != nil {
		c.warn("cache lookup failed, proceeding with fresh analysis", "keyword", keyword, "error", err)
		return nil
	}
	if cached == nil {
		c.debug("cache miss", "keyword", keyword)
		return nil
	}
	c.debug("cache hit", "keyword", keyword)
	cached.CacheHit = true
	return cached
}

type fanoutReply struct {
	source  domain.Source
	metrics *domain.SourceMetrics
	err     error
}

// fanOut runs the requested collectors concurrently under one batch-wide
// timeout envelope. Each collector is isolated: a failure or hang in one
// never cancels the others. Results completed before the envelope expires are
// kept; collectors still running at expiry are reported as failed.
func (c *Classifier) fanOut(ctx context.Context, keyword string, terms []string, sources []domain.Source) (map[domain.Source]*domain.SourceMetrics, map[domain.Source]string) {
	fanCtx, cancel := context.WithTimeout(ctx, c.analysis.CollectorTimeout())
	defer cancel()

	replies := make(chan fanoutReply, len(sources))
	for _, source := range sources {
		go func(source domain.Source) {
			col, err := c.collectors.Resolve(source)
			if err != nil {
				replies <- fanoutReply{source: source, err: err}
				return
			}
			metrics, err := col.Fetch(fanCtx, keyword, terms)
			replies <- fanoutReply{source: source, metrics: metrics, err: err}
		}(source)
	}

	results := make(map[domain.Source]*domain.SourceMetrics, len(sources))
	failures := map[domain.Source]string{}
	received := map[domain.Source]bool{}

	for range sources {
		select {
		case reply := <-replies:
			received[reply.source] = true
			if reply.err != nil {
				failures[reply.source] = fmt.Sprintf("%s collector failed: %v", reply.source, reply.err)
				results[reply.source] = nil
				continue
			}
			results[reply.source] = reply.metrics
		case <-fanCtx.Done():
			for _, source := range sources {
				if !received[source] {
					failures[source] = fmt.Sprintf("%s collector failed: timeout after %s", source, c.analysis.CollectorTimeout())
					results[source] = nil
				}
			}
			c.warn("collector fan-out timed out", "keyword", keyword, "timeout", c.analysis.CollectorTimeout())
			return results, failures
		}
	}

	c.debug("collectors completed", "keyword", keyword, "succeeded", countPresent(results), "requested", len(sources))
	return results, failures
}

// classifySources runs stage one of the LLM protocol: one opinion per present
// collector result, sequential in canonical source order. A single failed call
// is recorded and skipped; the caller enforces the minimum-opinions gate.
func (c *Classifier) classifySources(ctx context.Context, keyword string, results map[domain.Source]*domain.SourceMetrics) (map[domain.Source]domain.PhaseOpinion, []string) {
	opinions := make(map[domain.Source]domain.PhaseOpinion, len(results))
	var errs []string

	for _, source := range domain.SourceOrder {
		metrics := results[source]
		if metrics == nil {
			continue
		}
		opinion, err := c.classifier.ClassifySource(ctx, source, metrics, keyword)
		if err != nil {
			c.warn("per-source classification failed", "keyword", keyword, "source", source, "error", err)
			errs = append(errs, fmt.Sprintf("failed to analyze %s: %v", source, err))
			continue
		}
		opinions[source] = opinion
	}
	return opinions, errs
}

func (c *Classifier) notify(ctx context.Context, result *domain.ClassificationResult) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.PublishDigest(ctx, buildDigest(result)); err != nil {
		c.warn("notification failed", "keyword", result.Keyword, "error", err)
	}
}

func buildDigest(result *domain.ClassificationResult) string {
	return fmt.Sprintf("*%s* classified as `%s` (confidence %.2f, %d/%d sources)",
		result.Keyword, result.Phase, result.Confidence,
		result.CollectorsSucceeded, len(domain.SourceOrder))
}

func normalizeKeyword(keyword string) (string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return "", &domain.ValidationError{Field: "keyword", Reason: "must not be empty"}
	}
	if len(keyword) > maxKeywordLength {
		return "", &domain.ValidationError{Field: "keyword", Reason: fmt.Sprintf("must be at most %d characters", maxKeywordLength)}
	}
	return keyword, nil
}

func countPresent(results map[domain.Source]*domain.SourceMetrics) int {
	n := 0
	for _, m := range results {
		if m != nil {
			n++
		}
	}
	return n
}

// flattenFailures orders per-source failure reasons canonically so the
// insufficient-data message is deterministic.
func flattenFailures(failures map[domain.Source]string) []string {
	var reasons []string
	for _, source := range domain.SourceOrder {
		if reason, ok := failures[source]; ok {
			reasons = append(reasons, reason)
		}
	}
	return reasons
}

// IsInsufficientData reports whether err is the distinguished temporary
// "try a broader keyword" condition.
func IsInsufficientData(err error) bool {
	var target *domain.InsufficientDataError
	return errors.As(err, &target)
}

func (c *Classifier) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *Classifier) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
