package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"HypeScanner/internal/domain"
	"HypeScanner/internal/ports"
)

const defaultAlgoliaURL = "https://hn.algolia.com/api/v1/search"

// SocialCollector gathers discussion signal from Hacker News through the
// Algolia search API. Three non-overlapping windows (30 days, 6 months,
// 1 year) feed the mention counts, engagement averages and the derived
// trend buckets.
type SocialCollector struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

var _ ports.Collector = (*SocialCollector)(nil)

func NewSocialCollector(client *http.Client, logger *slog.Logger) *SocialCollector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SocialCollector{
		baseURL:    defaultAlgoliaURL,
		httpClient: client,
		logger:     logger,
		now:        time.Now,
	}
}

func (c *SocialCollector) Source() domain.Source {
	return domain.SourceSocial
}

type algoliaResponse struct {
	NBHits int `json:"nbHits"`
	Hits   []struct {
		Title       string `json:"title"`
		Points      int    `json:"points"`
		NumComments int    `json:"num_comments"`
		CreatedAtI  int64  `json:"created_at_i"`
	} `json:"hits"`
}

func (c *SocialCollector) Fetch(ctx context.Context, keyword string, expansionTerms []string) (*domain.SourceMetrics, error) {
	now := c.now()

	// Expansion terms turn the query into an any-of match: listing every word
	// as optional gives Algolia OR semantics across keyword and terms.
	query := keyword
	optionalWords := ""
	if len(expansionTerms) > 0 {
		query = strings.Join(append([]string{keyword}, expansionTerms...), " ")
		optionalWords = query
	}

	thirtyDaysAgo := now.AddDate(0, 0, -30).Unix()
	sixMonthsAgo := now.AddDate(0, 0, -180).Unix()
	oneYearAgo := now.AddDate(0, 0, -365).Unix()

	var errs []string
	data30d := c.fetchWindow(ctx, query, optionalWords, thirtyDaysAgo, 0, &errs)
	data6m := c.fetchWindow(ctx, query, optionalWords, sixMonthsAgo, thirtyDaysAgo, &errs)
	data1y := c.fetchWindow(ctx, query, optionalWords, oneYearAgo, sixMonthsAgo, &errs)

	if data30d == nil && data6m == nil && data1y == nil {
		return nil, fmt.Errorf("all hacker news requests failed: %s", strings.Join(errs, "; "))
	}

	metrics := &domain.SourceMetrics{
		Source:      domain.SourceSocial,
		Keyword:     keyword,
		CollectedAt: now,
		Extra:       map[string]any{},
		Errors:      errs,
	}

	var mentions30d, mentions6m, mentions1y int
	if data30d != nil {
		mentions30d = data30d.NBHits
	}
	if data6m != nil {
		mentions6m = data6m.NBHits
	}
	if data1y != nil {
		mentions1y = data1y.NBHits
	}
	metrics.Mentions30d = mentions30d
	metrics.MentionsTotal = mentions30d + mentions6m + mentions1y

	avgPoints30d, avgComments30d := 0.0, 0.0
	topStories := []map[string]any{}
	if data30d != nil && len(data30d.Hits) > 0 {
		var points, comments int
		for _, hit := range data30d.Hits {
			points += hit.Points
			comments += hit.NumComments
		}
		avgPoints30d = float64(points) / float64(len(data30d.Hits))
		avgComments30d = float64(comments) / float64(len(data30d.Hits))

		for _, hit := range data30d.Hits {
			if len(topStories) == 5 {
				break
			}
			created := hit.CreatedAtI
			if created == 0 {
				created = now.Unix()
			}
			topStories = append(topStories, map[string]any{
				"title":    hit.Title,
				"points":   hit.Points,
				"comments": hit.NumComments,
				"age_days": int((now.Unix() - created) / 86400),
			})
		}
	}

	avgPoints6m, avgComments6m := 0.0, 0.0
	if data6m != nil && len(data6m.Hits) > 0 {
		var points, comments int
		for _, hit := range data6m.Hits {
			points += hit.Points
			comments += hit.NumComments
		}
		avgPoints6m = float64(points) / float64(len(data6m.Hits))
		avgComments6m = float64(comments) / float64(len(data6m.Hits))
	}

	metrics.Extra["mentions_6m"] = mentions6m
	metrics.Extra["mentions_1y"] = mentions1y
	metrics.Extra["avg_points_30d"] = round2(avgPoints30d)
	metrics.Extra["avg_comments_30d"] = round2(avgComments30d)
	metrics.Extra["avg_points_6m"] = round2(avgPoints6m)
	metrics.Extra["avg_comments_6m"] = round2(avgComments6m)
	metrics.Extra["sentiment"] = round3(engagementSentiment(avgPoints30d))
	metrics.Extra["recency"] = mentionRecency(mentions30d, mentions6m, mentions1y)
	metrics.Extra["growth_trend"] = mentionGrowthTrend(mentions30d, mentions6m, mentions1y)
	metrics.Extra["momentum"] = mentionMomentum(mentions30d, mentions6m, mentions1y)
	metrics.Extra["top_stories"] = topStories

	return metrics, nil
}

func (c *SocialCollector) fetchWindow(ctx context.Context, query, optionalWords string, startTS, endTS int64, errs *[]string) *algoliaResponse {
	numericFilter := fmt.Sprintf("created_at_i>%d", startTS)
	if endTS != 0 {
		numericFilter = fmt.Sprintf("created_at_i>%d,created_at_i<%d", startTS, endTS)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("tags", "story")
	params.Set("numericFilters", numericFilter)
	params.Set("hitsPerPage", "20")
	if optionalWords != "" {
		params.Set("optionalWords", optionalWords)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("build request: %v", err))
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		*errs = append(*errs, requestErrorMessage(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		*errs = append(*errs, statusErrorMessage(resp.StatusCode))
		return nil
	}

	var data algoliaResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		*errs = append(*errs, fmt.Sprintf("decode response: %v", err))
		return nil
	}
	return &data
}

// engagementSentiment normalizes average story points onto [-1, 1] with tanh;
// 50 points is the neutral baseline.
func engagementSentiment(avgPoints float64) float64 {
	return math.Tanh((avgPoints - 50) / 100)
}

// mentionRecency buckets the share of mentions that landed in the last
// 30 days.
func mentionRecency(mentions30d, mentions6m, mentions1y int) string {
	total := mentions30d + mentions6m + mentions1y
	if total == 0 {
		return "low"
	}
	ratio := float64(mentions30d) / float64(total)
	switch {
	case ratio > 0.5:
		return "high"
	case ratio > 0.2:
		return "medium"
	default:
		return "low"
	}
}

// mentionGrowthTrend compares the last 30 days against the monthly average of
// the prior 11 months with the standard 30% band.
func mentionGrowthTrend(mentions30d, mentions6m, mentions1y int) string {
	avgPerMonth := float64(mentions6m+mentions1y) / 11.0

	threshold := 0.3
	switch {
	case float64(mentions30d) > avgPerMonth*(1+threshold):
		return "increasing"
	case float64(mentions30d) < avgPerMonth*(1-threshold):
		return "decreasing"
	default:
		return "stable"
	}
}

// mentionMomentum compares recent month-over-month growth against the
// historical growth rate; 20% faster or slower flips the bucket.
func mentionMomentum(mentions30d, mentions6m, mentions1y int) string {
	if mentions30d == 0 && mentions6m == 0 {
		return "steady"
	}

	recentAvg := float64(mentions30d)
	midAvg := float64(mentions6m) / 5.0
	oldAvg := float64(mentions1y) / 6.0

	midGrowth := 0.0
	if oldAvg > 0 {
		midGrowth = (midAvg - oldAvg) / oldAvg
	} else if midAvg > 0 {
		midGrowth = 1.0
	}

	recentGrowth := 0.0
	if midAvg > 0 {
		recentGrowth = (recentAvg - midAvg) / midAvg
	} else if recentAvg > 0 {
		recentGrowth = 1.0
	}

	switch {
	case recentGrowth > midGrowth*1.2:
		return "accelerating"
	case recentGrowth < midGrowth*0.8:
		return "decelerating"
	default:
		return "steady"
	}
}
