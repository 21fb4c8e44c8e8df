package usecase

import (
	"HypeScanner/internal/config"
	"HypeScanner/internal/domain"
)

// NicheDetected reports whether the social signal is too sparse to trust the
// initial collection pass. Pure predicate over the social collector's metrics;
// a missing social result never triggers expansion because the signal the
// decision rests on is itself unavailable.
func NicheDetected(social *domain.SourceMetrics, cfg config.AnalysisConfig) bool {
	if social == nil {
		return false
	}
	return social.Mentions30d < cfg.NicheMentions30d || social.MentionsTotal < cfg.NicheMentionsTotal
}
