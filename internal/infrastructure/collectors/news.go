package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"HypeScanner/internal/domain"
	"HypeScanner/internal/ports"
)

const defaultGDELTURL = "https://api.gdeltproject.org/api/v2/doc/doc"

const gdeltTimeLayout = "20060102150405"

// NewsCollector gathers media signal from the GDELT document API across
// three non-overlapping windows (30 days, 3 months, 1 year). Each window
// needs three calls: article list, timeline volume and tone chart.
type NewsCollector struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

var _ ports.Collector = (*NewsCollector)(nil)

func NewNewsCollector(client *http.Client, logger *slog.Logger) *NewsCollector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &NewsCollector{
		baseURL:    defaultGDELTURL,
		httpClient: client,
		logger:     logger,
		now:        time.Now,
	}
}

func (c *NewsCollector) Source() domain.Source {
	return domain.SourceNews
}

type gdeltArticle struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Domain        string `json:"domain"`
	SourceCountry string `json:"sourcecountry"`
	SeenDate      string `json:"seendate"`
}

type gdeltToneBin struct {
	Bin   int `json:"bin"`
	Count int `json:"count"`
}

// newsWindow aggregates the three GDELT calls for one time period.
type newsWindow struct {
	articles        []gdeltArticle
	volumeIntensity float64
	toneBins        []gdeltToneBin
}

func (c *NewsCollector) Fetch(ctx context.Context, keyword string, expansionTerms []string) (*domain.SourceMetrics, error) {
	now := c.now()
	query := gdeltQuery(keyword, expansionTerms)

	var errs []string
	data30d := c.fetchWindow(ctx, query, now.AddDate(0, 0, -30), now, &errs)
	data3m := c.fetchWindow(ctx, query, now.AddDate(0, 0, -90), now.AddDate(0, 0, -30), &errs)
	data1y := c.fetchWindow(ctx, query, now.AddDate(0, 0, -365), now.AddDate(0, 0, -90), &errs)

	if data30d == nil && data3m == nil && data1y == nil {
		return nil, fmt.Errorf("all gdelt requests failed: %s", strings.Join(errs, "; "))
	}

	articles30d := windowCount(data30d)
	articles3m := windowCount(data3m)
	articles1y := windowCount(data1y)
	articlesTotal := articles30d + articles3m + articles1y

	sourceCountries := map[string]int{}
	domainCounts := map[string]int{}
	for _, window := range []*newsWindow{data30d, data3m, data1y} {
		if window == nil {
			continue
		}
		for _, article := range window.articles {
			country := article.SourceCountry
			if country == "" {
				country = "Unknown"
			}
			sourceCountries[country]++
			if article.Domain != "" {
				domainCounts[article.Domain]++
			}
		}
	}

	topDomains := []map[string]any{}
	for _, entry := range topCounts(domainCounts, 5) {
		topDomains = append(topDomains, map[string]any{
			"domain": entry.key,
			"count":  entry.count,
		})
	}

	avgTone := 0.0
	toneDistribution := map[string]int{"positive": 0, "neutral": 0, "negative": 0}
	if data30d != nil && len(data30d.toneBins) > 0 {
		avgTone, toneDistribution = toneMetrics(data30d.toneBins)
	}

	volume30d := windowVolume(data30d)
	volume3m := windowVolume(data3m)
	volume1y := windowVolume(data1y)

	topArticles := []map[string]any{}
	if data30d != nil {
		for _, article := range data30d.articles {
			if len(topArticles) == 5 {
				break
			}
			country := article.SourceCountry
			if country == "" {
				country = "Unknown"
			}
			topArticles = append(topArticles, map[string]any{
				"url":     article.URL,
				"title":   article.Title,
				"domain":  article.Domain,
				"country": country,
				"date":    article.SeenDate,
			})
		}
	}

	metrics := &domain.SourceMetrics{
		Source:      domain.SourceNews,
		Keyword:     keyword,
		CollectedAt: now,
		Errors:      errs,
		Extra: map[string]any{
			"articles_30d":   articles30d,
			"articles_3m":    articles3m,
			"articles_1y":    articles1y,
			"articles_total": articlesTotal,

			"source_countries":     sourceCountries,
			"geographic_diversity": len(sourceCountries),

			"unique_domains": len(domainCounts),
			"top_domains":    topDomains,

			"avg_tone":          round3(avgTone),
			"tone_distribution": toneDistribution,

			"volume_intensity_30d": round3(volume30d),
			"volume_intensity_3m":  round3(volume3m),
			"volume_intensity_1y":  round3(volume1y),

			"media_attention":     mediaAttention(articlesTotal),
			"coverage_trend":      coverageTrend(volume30d, volume3m, volume1y),
			"sentiment_trend":     sentimentTrend(avgTone),
			"mainstream_adoption": mainstreamAdoption(len(domainCounts), articlesTotal),

			"top_articles": topArticles,
		},
	}
	return metrics, nil
}

func (c *NewsCollector) fetchWindow(ctx context.Context, query string, start, end time.Time, errs *[]string) *newsWindow {
	base := url.Values{}
	base.Set("query", query)
	base.Set("format", "json")
	base.Set("startdatetime", start.Format(gdeltTimeLayout))
	base.Set("enddatetime", end.Format(gdeltTimeLayout))

	var artlist struct {
		Articles []gdeltArticle `json:"articles"`
	}
	if !c.call(ctx, base, "ArtList", map[string]string{"maxrecords": "250"}, &artlist, errs) {
		return nil
	}

	var timeline struct {
		Timeline []struct {
			Data []struct {
				Value float64 `json:"value"`
			} `json:"data"`
		} `json:"timeline"`
	}
	if !c.call(ctx, base, "timelinevol", nil, &timeline, errs) {
		return nil
	}

	var tone struct {
		ToneChart []gdeltToneBin `json:"tonechart"`
	}
	if !c.call(ctx, base, "ToneChart", nil, &tone, errs) {
		return nil
	}

	volumeIntensity := 0.0
	if len(timeline.Timeline) > 0 && len(timeline.Timeline[0].Data) > 0 {
		sum := 0.0
		for _, point := range timeline.Timeline[0].Data {
			sum += point.Value
		}
		volumeIntensity = sum / float64(len(timeline.Timeline[0].Data))
	}

	return &newsWindow{
		articles:        artlist.Articles,
		volumeIntensity: volumeIntensity,
		toneBins:        tone.ToneChart,
	}
}

func (c *NewsCollector) call(ctx context.Context, base url.Values, mode string, extra map[string]string, out any, errs *[]string) bool {
	params := url.Values{}
	for k, vs := range base {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	params.Set("mode", mode)
	for k, v := range extra {
		params.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("build request: %v", err))
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		*errs = append(*errs, requestErrorMessage(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		*errs = append(*errs, statusErrorMessage(resp.StatusCode))
		return false
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		*errs = append(*errs, fmt.Sprintf("decode %s response: %v", mode, err))
		return false
	}
	return true
}

// gdeltQuery quotes the keyword; expansion terms become a parenthesized OR
// group as GDELT query syntax requires.
func gdeltQuery(keyword string, expansionTerms []string) string {
	if len(expansionTerms) == 0 {
		return fmt.Sprintf("%q", keyword)
	}
	parts := make([]string, 0, len(expansionTerms)+1)
	parts = append(parts, fmt.Sprintf("%q", keyword))
	for _, term := range expansionTerms {
		parts = append(parts, fmt.Sprintf("%q", term))
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func windowCount(w *newsWindow) int {
	if w == nil {
		return 0
	}
	return len(w.articles)
}

func windowVolume(w *newsWindow) float64 {
	if w == nil {
		return 0.0
	}
	return w.volumeIntensity
}

// toneMetrics folds the GDELT tone histogram (bins 0 most negative to 10
// most positive) into an average on [-1, 1] and a three-way distribution.
func toneMetrics(bins []gdeltToneBin) (float64, map[string]int) {
	distribution := map[string]int{"positive": 0, "neutral": 0, "negative": 0}
	totalCount := 0
	weightedSum := 0
	for _, bin := range bins {
		totalCount += bin.Count
		weightedSum += bin.Bin * bin.Count
		switch {
		case bin.Bin >= 7:
			distribution["positive"] += bin.Count
		case bin.Bin <= 3:
			distribution["negative"] += bin.Count
		default:
			distribution["neutral"] += bin.Count
		}
	}
	if totalCount == 0 {
		return 0.0, distribution
	}
	avgBin := float64(weightedSum) / float64(totalCount)
	return (avgBin - 5) / 5.0, distribution
}

func mediaAttention(totalArticles int) string {
	switch {
	case totalArticles >= 500:
		return "high"
	case totalArticles >= 100:
		return "medium"
	default:
		return "low"
	}
}

// coverageTrend compares recent volume intensity against the average of the
// two historical windows with the 30% band.
func coverageTrend(volume30d, volume3m, volume1y float64) string {
	if volume3m == 0 && volume1y == 0 {
		if volume30d > 0 {
			return "stable"
		}
		return "unknown"
	}
	historicalAvg := (volume3m + volume1y) / 2
	threshold := 0.3
	switch {
	case volume30d > historicalAvg*(1+threshold):
		return "increasing"
	case volume30d < historicalAvg*(1-threshold):
		return "decreasing"
	default:
		return "stable"
	}
}

func sentimentTrend(avgTone float64) string {
	switch {
	case avgTone > 0.2:
		return "positive"
	case avgTone < -0.2:
		return "negative"
	default:
		return "neutral"
	}
}

// mainstreamAdoption buckets domain diversity: wide coverage across many
// outlets reads as mainstream.
func mainstreamAdoption(uniqueDomains, totalArticles int) string {
	if totalArticles == 0 {
		return "niche"
	}
	diversityRatio := float64(uniqueDomains) / float64(totalArticles)
	switch {
	case uniqueDomains >= 50 && diversityRatio > 0.3:
		return "mainstream"
	case uniqueDomains >= 20:
		return "emerging"
	default:
		return "niche"
	}
}
