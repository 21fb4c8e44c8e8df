package llm

import (
	"fmt"
	"strings"

	"HypeScanner/internal/domain"
)

// phaseDefinitions is embedded in every classification prompt so each call
// scores against the same five stages.
const phaseDefinitions = `Hype Cycle Phases:
1. innovation_trigger (Innovation Trigger): New technology concept emerges, limited mentions/publications/patents, early adopters experimenting, low engagement/citations, narrow focus
2. peak (Peak of Inflated Expectations): Explosive growth in all metrics, very high social media buzz, rapid increase in publications/patents, mainstream media coverage begins, high sentiment/optimism, accelerating momentum
3. trough (Trough of Disillusionment): Declining mentions from peak levels, negative sentiment shift, publication/patent growth slows or reverses, media coverage drops, investor sentiment turns negative, reality check on limitations
4. slope (Slope of Enlightenment): Stabilizing metrics after trough, improving sentiment from lows, steady sustainable growth, maturing research and patents, practical applications emerge, institutional adoption begins
5. plateau (Plateau of Productivity): Sustained moderate activity, neutral sentiment (technology normalized), stable publication/patent rates, broad established field, mainstream adoption, mature market`

const answerContract = `Return ONLY a JSON object with no markdown formatting:
{"phase": "one of: innovation_trigger, peak, trough, slope, plateau", "confidence": 0.75, "reasoning": "1-2 sentence explanation"}`

var sourceLabels = map[domain.Source]string{
	domain.SourceSocial:  "Social Media (Hacker News)",
	domain.SourcePapers:  "Academic Research (Semantic Scholar)",
	domain.SourcePatents: "Patents (PatentsView)",
	domain.SourceNews:    "News Coverage (GDELT)",
	domain.SourceFinance: "Financial Markets (Yahoo Finance)",
}

func sourcePrompt(source domain.Source, metrics *domain.SourceMetrics, keyword string) (string, error) {
	switch source {
	case domain.SourceSocial:
		return socialPrompt(metrics, keyword), nil
	case domain.SourcePapers:
		return papersPrompt(metrics, keyword), nil
	case domain.SourcePatents:
		return patentsPrompt(metrics, keyword), nil
	case domain.SourceNews:
		return newsPrompt(metrics, keyword), nil
	case domain.SourceFinance:
		return financePrompt(metrics, keyword), nil
	}
	return "", fmt.Errorf("unknown source %q", source)
}

func socialPrompt(m *domain.SourceMetrics, keyword string) string {
	return fmt.Sprintf(`You are analyzing social media signals from Hacker News to determine the hype cycle phase for %q.

Data provided:
- Mentions: 30d=%d, 6m=%d, 1y=%d, total=%d
- Engagement: avg_points_30d=%.1f, avg_comments_30d=%.1f
- Sentiment: %.2f (range: -1.0 to 1.0)
- Trends: growth=%s, momentum=%s
- Recency: %s

%s

Interpretation guidance:
- innovation_trigger: Low mentions (<50 total), low engagement, early buzz
- peak: Very high mentions (>200 in 30d), high sentiment (>0.5), accelerating momentum
- trough: Declining mentions from previous peak, negative sentiment shift
- slope: Stabilizing mentions, improving sentiment, steady growth
- plateau: Sustained moderate volume, neutral sentiment (0.0-0.3), stable trend

Based on these social media signals, classify the hype cycle phase.

%s`,
		keyword,
		m.Mentions30d, extraInt(m, "mentions_6m"), extraInt(m, "mentions_1y"), m.MentionsTotal,
		extraFloat(m, "avg_points_30d"), extraFloat(m, "avg_comments_30d"),
		extraFloat(m, "sentiment"),
		extraString(m, "growth_trend"), extraString(m, "momentum"),
		extraString(m, "recency"),
		phaseDefinitions, answerContract)
}

func papersPrompt(m *domain.SourceMetrics, keyword string) string {
	return fmt.Sprintf(`You are analyzing academic research signals from Semantic Scholar for %q.

Data provided:
- Publications: 2y=%d, 5y=%d, total=%d
- Citations: avg_2y=%.1f, avg_5y=%.1f
- Citation velocity: %.2f (positive = accelerating citations)
- Research maturity: %s
- Research momentum: %s
- Research breadth: %s
- Author diversity: %d
- Venue diversity: %d

%s

Interpretation guidance:
- innovation_trigger: Emerging field (<10 papers in 2y), low citations (<5 avg), narrow breadth
- peak: Rapid publication growth, high momentum (accelerating), broad research, many authors
- trough: Declining publications, negative citation velocity, narrowing focus
- slope: Steady publications, mature field, moderate citations, improving velocity
- plateau: Stable publication rate, high citations, broad established field

Based on these academic signals, classify the hype cycle phase.

%s`,
		keyword,
		extraInt(m, "publications_2y"), extraInt(m, "publications_5y"), extraInt(m, "publications_total"),
		extraFloat(m, "avg_citations_2y"), extraFloat(m, "avg_citations_5y"),
		extraFloat(m, "citation_velocity"),
		extraString(m, "research_maturity"), extraString(m, "research_momentum"), extraString(m, "research_breadth"),
		extraInt(m, "author_diversity"), extraInt(m, "venue_diversity"),
		phaseDefinitions, answerContract)
}

func patentsPrompt(m *domain.SourceMetrics, keyword string) string {
	return fmt.Sprintf(`You are analyzing patent filing signals from PatentsView for %q.

Data provided:
- Patent filings: 2y=%d, 5y=%d, 10y=%d, total=%d
- Citations: avg_2y=%.1f, avg_5y=%.1f
- Filing velocity: %.2f (positive = accelerating filings)
- Unique assignees: %d
- Assignee concentration: %s
- Geographic diversity: %d countries
- Geographic reach: %s
- Patent maturity: %s
- Patent momentum: %s

%s

Interpretation guidance:
- innovation_trigger: Few patents (<10 in 2y), concentrated assignees (1-3 companies), domestic only
- peak: Rapid filing growth, many assignees (>20), global reach, accelerating momentum
- trough: Declining filings from peak, consolidation (fewer assignees), slowing velocity
- slope: Steady filings, maturing patents, diverse assignees, moderate citations
- plateau: Stable filing rate, established field, high citations, global coverage

Based on these patent signals, classify the hype cycle phase.

%s`,
		keyword,
		extraInt(m, "patents_2y"), extraInt(m, "patents_5y"), extraInt(m, "patents_10y"), extraInt(m, "patents_total"),
		extraFloat(m, "avg_citations_2y"), extraFloat(m, "avg_citations_5y"),
		extraFloat(m, "filing_velocity"),
		extraInt(m, "unique_assignees"),
		extraString(m, "assignee_concentration"),
		extraInt(m, "geographic_diversity"),
		extraString(m, "geographic_reach"),
		extraString(m, "patent_maturity"), extraString(m, "patent_momentum"),
		phaseDefinitions, answerContract)
}

func newsPrompt(m *domain.SourceMetrics, keyword string) string {
	return fmt.Sprintf(`You are analyzing news media coverage signals from GDELT for %q.

Data provided:
- Article counts: 30d=%d, 3m=%d, 1y=%d, total=%d
- Unique domains: %d
- Geographic diversity: %d countries
- Average tone: %.2f (range: -1.0 to 1.0)
- Media attention: %s
- Coverage trend: %s
- Sentiment trend: %s
- Mainstream adoption: %s

%s

Interpretation guidance:
- innovation_trigger: Low coverage (<50 articles), niche media, few domains, limited geography
- peak: Very high coverage (>500 articles), mainstream media, many domains, positive tone, increasing trend
- trough: Declining coverage from peak, negative tone shift, decreasing trend
- slope: Stabilizing coverage, improving tone, steady trend, broadening media
- plateau: Sustained moderate coverage, neutral tone, stable trend, mainstream domains

Based on these news media signals, classify the hype cycle phase.

%s`,
		keyword,
		extraInt(m, "articles_30d"), extraInt(m, "articles_3m"), extraInt(m, "articles_1y"), extraInt(m, "articles_total"),
		extraInt(m, "unique_domains"),
		extraInt(m, "geographic_diversity"),
		extraFloat(m, "avg_tone"),
		extraString(m, "media_attention"), extraString(m, "coverage_trend"),
		extraString(m, "sentiment_trend"), extraString(m, "mainstream_adoption"),
		phaseDefinitions, answerContract)
}

func financePrompt(m *domain.SourceMetrics, keyword string) string {
	return fmt.Sprintf(`You are analyzing financial market signals from Yahoo Finance for %q.

Data provided:
- Companies found: %d
- Total market cap: $%.0f
- Average market cap: $%.0f
- Price changes: 1m=%.1f%%, 6m=%.1f%%, 2y=%.1f%%
- Volatility: 1m=%.1f%%, 6m=%.1f%%
- Volume trend: %s
- Market maturity: %s
- Investor sentiment: %s
- Investment momentum: %s

%s

Interpretation guidance:
- innovation_trigger: Few companies (<3), small market cap (<$10B total), high volatility (>30%%)
- peak: Many companies (>10), large market cap, strong positive returns, high volatility, accelerating momentum, positive sentiment
- trough: Declining returns from peak, negative price changes, very high volatility, negative sentiment
- slope: Stabilizing returns, improving sentiment, moderate volatility, steady momentum, developing maturity
- plateau: Stable moderate returns, neutral sentiment, low volatility (<15%%), mature market

Based on these financial market signals, classify the hype cycle phase.

%s`,
		keyword,
		extraInt(m, "companies_found"),
		extraFloat(m, "total_market_cap"), extraFloat(m, "avg_market_cap"),
		extraFloat(m, "avg_price_change_1m"), extraFloat(m, "avg_price_change_6m"), extraFloat(m, "avg_price_change_2y"),
		extraFloat(m, "avg_volatility_1m"), extraFloat(m, "avg_volatility_6m"),
		extraString(m, "volume_trend"),
		extraString(m, "market_maturity"), extraString(m, "investor_sentiment"), extraString(m, "investment_momentum"),
		phaseDefinitions, answerContract)
}

func synthesisPrompt(keyword string, opinions map[domain.Source]domain.PhaseOpinion) string {
	var summaries []string
	for i, source := range domain.SourceOrder {
		opinion, ok := opinions[source]
		if !ok {
			continue
		}
		summaries = append(summaries, fmt.Sprintf(`%d. %s:
   Phase: %s
   Confidence: %.2f
   Reasoning: %s`, i+1, sourceLabels[source], opinion.Phase, opinion.Confidence, opinion.Reasoning))
	}

	return fmt.Sprintf(`You are an expert technology analyst synthesizing multiple data sources to determine the definitive hype cycle position for %q.

You have analyzed this technology from %d independent perspectives:

%s

%s

Synthesize these perspectives into ONE final classification. Consider:
- Conflicting signals may indicate transition phases
- Weight sources by confidence scores
- Social media trends faster than academic validation
- Patents and finance lag behind hype but indicate real investment
- News coverage bridges mainstream adoption
- Recent data (social, news) vs. slower indicators (papers, patents)

Return ONLY a JSON object with no markdown formatting:
{"phase": "one of: innovation_trigger, peak, trough, slope, plateau", "confidence": 0.85, "reasoning": "2-3 sentence explanation synthesizing key evidence from all sources"}`,
		keyword, len(opinions), strings.Join(summaries, "\n\n"), phaseDefinitions)
}

func expansionPrompt(keyword string) string {
	return fmt.Sprintf(`The technology keyword %q has very little social media coverage, which suggests it is a niche or specialist topic.

Generate 3-5 closely related search terms that practitioners would use for the same technology area: synonyms, subfields, established umbrella terms, or adjacent technique names. Each term must be specific enough to return meaningful search results on its own. Do not include generic words like "technology", "system" or "innovation", and do not repeat the original keyword.

Return ONLY a JSON object with no markdown formatting:
{"terms": ["term one", "term two", "term three"]}`, keyword)
}

func tickersPrompt(keyword string) string {
	return fmt.Sprintf(`List public companies whose stock performance is a meaningful proxy for the technology %q.

Pick 3-8 companies materially exposed to this technology (pure plays first, then large vendors with significant investment). Use their primary US ticker symbols.

Return ONLY a JSON object with no markdown formatting:
{"tickers": ["NVDA", "AMD"]}`, keyword)
}

func extraInt(m *domain.SourceMetrics, key string) int {
	switch v := m.Extra[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func extraFloat(m *domain.SourceMetrics, key string) float64 {
	switch v := m.Extra[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func extraString(m *domain.SourceMetrics, key string) string {
	if v, ok := m.Extra[key].(string); ok && v != "" {
		return v
	}
	return "unknown"
}
