package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase is one of the five fixed adoption-curve stages.
type Phase string

const (
	PhaseInnovationTrigger Phase = "innovation_trigger"
	PhasePeak              Phase = "peak"
	PhaseTrough            Phase = "trough"
	PhaseSlope             Phase = "slope"
	PhasePlateau           Phase = "plateau"
)

// Valid reports whether the phase is a member of the fixed enum.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInnovationTrigger, PhasePeak, PhaseTrough, PhaseSlope, PhasePlateau:
		return true
	}
	return false
}

// Source identifies one of the five signal collectors.
type Source string

const (
	SourceSocial  Source = "social"
	SourcePapers  Source = "papers"
	SourcePatents Source = "patents"
	SourceNews    Source = "news"
	SourceFinance Source = "finance"
)

// SourceOrder is the canonical iteration order for all five sources.
var SourceOrder = []Source{SourceSocial, SourcePapers, SourcePatents, SourceNews, SourceFinance}

// ExpandableSources are the collectors re-invoked during query expansion.
// Finance is excluded: its ticker universe does not depend on search terms.
var ExpandableSources = []Source{SourceSocial, SourcePapers, SourcePatents, SourceNews}

// SourceMetrics is one collector's output for a single collection attempt.
// Mentions30d and MentionsTotal are promoted to typed fields because niche
// detection reads them; every other source-specific field travels in Extra.
// The Errors list carries non-fatal problems hit during collection.
type SourceMetrics struct {
	Source        Source
	Keyword       string
	CollectedAt   time.Time
	Mentions30d   int
	MentionsTotal int
	Extra         map[string]any
	Errors        []string
}

// MarshalJSON flattens Extra into the top-level object so serialized metrics
// keep the flat per-source shape the cache layout and API response expose.
func (m SourceMetrics) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+6)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["source"] = m.Source
	out["keyword"] = m.Keyword
	out["collected_at"] = m.CollectedAt.Format(time.RFC3339Nano)
	if m.Source == SourceSocial {
		out["mentions_30d"] = m.Mentions30d
		out["mentions_total"] = m.MentionsTotal
	}
	if m.Errors == nil {
		out["errors"] = []string{}
	} else {
		out["errors"] = m.Errors
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON, pulling the promoted fields back out of
// the flat object and leaving the remainder in Extra.
func (m *SourceMetrics) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	take := func(key string, v any) error {
		msg, ok := raw[key]
		if !ok {
			return nil
		}
		delete(raw, key)
		return json.Unmarshal(msg, v)
	}

	var collectedAt string
	if err := take("source", &m.Source); err != nil {
		return fmt.Errorf("metrics source: %w", err)
	}
	if err := take("keyword", &m.Keyword); err != nil {
		return fmt.Errorf("metrics keyword: %w", err)
	}
	if err := take("collected_at", &collectedAt); err != nil {
		return fmt.Errorf("metrics collected_at: %w", err)
	}
	if collectedAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, collectedAt)
		if err != nil {
			return fmt.Errorf("metrics collected_at: %w", err)
		}
		m.CollectedAt = ts
	}
	if err := take("errors", &m.Errors); err != nil {
		return fmt.Errorf("metrics errors: %w", err)
	}
	if m.Source == SourceSocial {
		if err := take("mentions_30d", &m.Mentions30d); err != nil {
			return fmt.Errorf("metrics mentions_30d: %w", err)
		}
		if err := take("mentions_total", &m.MentionsTotal); err != nil {
			return fmt.Errorf("metrics mentions_total: %w", err)
		}
	}

	if len(raw) > 0 {
		m.Extra = make(map[string]any, len(raw))
		for k, msg := range raw {
			var v any
			if err := json.Unmarshal(msg, &v); err != nil {
				return fmt.Errorf("metrics field %s: %w", k, err)
			}
			m.Extra[k] = v
		}
	}
	return nil
}

// PhaseOpinion is one classifier verdict: a per-source opinion or the
// synthesized final one.
type PhaseOpinion struct {
	Phase      Phase   `json:"phase"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Validate enforces the strict response contract: phase in the enum and
// confidence within [0,1]. Violations are errors, never clamped.
func (o PhaseOpinion) Validate() error {
	if !o.Phase.Valid() {
		return fmt.Errorf("invalid phase %q", o.Phase)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", o.Confidence)
	}
	if o.Reasoning == "" {
		return fmt.Errorf("missing reasoning")
	}
	return nil
}

// ExpansionState records whether query expansion ran and with which terms.
type ExpansionState struct {
	Applied bool
	Terms   []string
}

// ClassificationResult is the full externally visible record for one keyword.
// The JSON field names mirror the cache layout so the cache-hit and fresh
// paths produce identical shapes.
type ClassificationResult struct {
	ID                  string                    `json:"-"`
	Keyword             string                    `json:"keyword"`
	Phase               Phase                     `json:"phase"`
	Confidence          float64                   `json:"confidence"`
	Reasoning           string                    `json:"reasoning"`
	PerSource           map[Source]PhaseOpinion   `json:"per_source_analyses"`
	Collector           map[Source]*SourceMetrics `json:"collector_data"`
	CollectorsSucceeded int                       `json:"collectors_succeeded"`
	PartialData         bool                      `json:"partial_data"`
	Errors              []string                  `json:"errors"`
	ExpansionApplied    bool                      `json:"query_expansion_applied"`
	ExpandedTerms       []string                  `json:"expanded_terms"`
	CacheHit            bool                      `json:"cache_hit"`
	CreatedAt           time.Time                 `json:"timestamp"`
	ExpiresAt           time.Time                 `json:"expires_at"`
}

// FinalOpinion returns the synthesized verdict embedded in the result.
func (r *ClassificationResult) FinalOpinion() PhaseOpinion {
	return PhaseOpinion{Phase: r.Phase, Confidence: r.Confidence, Reasoning: r.Reasoning}
}
