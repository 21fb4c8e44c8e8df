package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"HypeScanner/internal/domain"
	"HypeScanner/internal/ports"
)

const defaultPatentsViewURL = "https://search.patentsview.org/api/v1/patent/"

// PatentsCollector gathers filing signal from the PatentsView search API
// across three non-overlapping windows (roughly the last 2, prior 5 and
// prior 10 years). Assignee concentration, geographic reach and filing
// velocity are derived from the raw patent lists.
type PatentsCollector struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

var _ ports.Collector = (*PatentsCollector)(nil)

func NewPatentsCollector(apiKey string, client *http.Client, logger *slog.Logger) *PatentsCollector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PatentsCollector{
		baseURL:    defaultPatentsViewURL,
		apiKey:     apiKey,
		httpClient: client,
		logger:     logger,
		now:        time.Now,
	}
}

func (c *PatentsCollector) Source() domain.Source {
	return domain.SourcePatents
}

type patentAssignee struct {
	Organization string `json:"assignee_organization"`
	Country      string `json:"assignee_country"`
}

type patentRecord struct {
	ID        string           `json:"patent_id"`
	Title     string           `json:"patent_title"`
	Date      string           `json:"patent_date"`
	Citations json.Number      `json:"patent_num_times_cited_by_us_patents"`
	Assignees []patentAssignee `json:"assignees"`
}

type patentsResponse struct {
	Error     bool           `json:"error"`
	TotalHits int            `json:"total_hits"`
	Patents   []patentRecord `json:"patents"`
}

func (p patentRecord) citationCount() int {
	n, err := p.Citations.Int64()
	if err != nil {
		return 0
	}
	return int(n)
}

func (c *PatentsCollector) Fetch(ctx context.Context, keyword string, expansionTerms []string) (*domain.SourceMetrics, error) {
	now := c.now()
	currentYear := now.Year()

	var errs []string
	data2y := c.fetchWindow(ctx, keyword, expansionTerms, currentYear-2, currentYear-1, &errs)
	data5y := c.fetchWindow(ctx, keyword, expansionTerms, currentYear-7, currentYear-3, &errs)
	data10y := c.fetchWindow(ctx, keyword, expansionTerms, currentYear-12, currentYear-8, &errs)

	if data2y == nil && data5y == nil && data10y == nil {
		return nil, fmt.Errorf("all patentsview requests failed: %s", strings.Join(errs, "; "))
	}

	var patents2y, patents5y, patents10y int
	var allPatents []patentRecord
	if data2y != nil {
		patents2y = data2y.TotalHits
		allPatents = append(allPatents, data2y.Patents...)
	}
	if data5y != nil {
		patents5y = data5y.TotalHits
		allPatents = append(allPatents, data5y.Patents...)
	}
	if data10y != nil {
		patents10y = data10y.TotalHits
		allPatents = append(allPatents, data10y.Patents...)
	}

	assigneeCounts := map[string]int{}
	countryCounts := map[string]int{}
	for _, p := range allPatents {
		for _, a := range p.Assignees {
			org := a.Organization
			if org == "" {
				org = "Individual"
			}
			assigneeCounts[org]++
			if a.Country != "" && a.Country != "Unknown" {
				countryCounts[a.Country]++
			}
		}
	}

	topAssignees := []map[string]any{}
	for _, entry := range topCounts(assigneeCounts, 5) {
		topAssignees = append(topAssignees, map[string]any{
			"name":         entry.key,
			"patent_count": entry.count,
		})
	}

	avgCitations2y := averagePatentCitations(data2y)
	avgCitations5y := averagePatentCitations(data5y)

	ranked := make([]patentRecord, len(allPatents))
	copy(ranked, allPatents)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].citationCount() > ranked[j].citationCount()
	})
	topPatents := []map[string]any{}
	for _, p := range ranked {
		if len(topPatents) == 5 {
			break
		}
		assignee, country := "Individual", "Unknown"
		if len(p.Assignees) > 0 {
			if p.Assignees[0].Organization != "" {
				assignee = p.Assignees[0].Organization
			}
			if p.Assignees[0].Country != "" {
				country = p.Assignees[0].Country
			}
		}
		id := p.ID
		if id == "" {
			id = "unknown"
		}
		topPatents = append(topPatents, map[string]any{
			"patent_number": id,
			"title":         p.Title,
			"date":          p.Date,
			"assignee":      assignee,
			"country":       country,
			"citations":     p.citationCount(),
		})
	}

	totalPatents := patents2y + patents5y + patents10y
	recentRate := float64(patents2y) / 2.0
	historicalRate := float64(patents5y) / 5.0

	metrics := &domain.SourceMetrics{
		Source:      domain.SourcePatents,
		Keyword:     keyword,
		CollectedAt: now,
		Errors:      errs,
		Extra: map[string]any{
			"patents_2y":    patents2y,
			"patents_5y":    patents5y,
			"patents_10y":   patents10y,
			"patents_total": totalPatents,

			"unique_assignees": len(assigneeCounts),
			"top_assignees":    topAssignees,

			"countries":            countryCounts,
			"geographic_diversity": len(countryCounts),

			"avg_citations_2y": round2(avgCitations2y),
			"avg_citations_5y": round2(avgCitations5y),

			"filing_velocity":        round3(growthVelocity(recentRate, historicalRate)),
			"assignee_concentration": assigneeConcentration(assigneeCounts, totalPatents),
			"geographic_reach":       geographicReach(countryCounts),
			"patent_maturity":        patentMaturity(totalPatents, avgCitations2y),
			"patent_momentum":        rateMomentum(recentRate, historicalRate),
			"patent_trend":           rateTrend(recentRate, historicalRate),

			"top_patents": topPatents,
		},
	}
	return metrics, nil
}

func (c *PatentsCollector) fetchWindow(ctx context.Context, keyword string, expansionTerms []string, yearStart, yearEnd int, errs *[]string) *patentsResponse {
	if c.apiKey == "" {
		appendOnce(errs, "Missing PatentsView API key")
		return nil
	}

	// _text_all needs every word present; expansion switches the title and
	// abstract match to _text_any across keyword and terms.
	textOp := "_text_all"
	textQuery := keyword
	if len(expansionTerms) > 0 {
		textOp = "_text_any"
		textQuery = strings.Join(append([]string{keyword}, expansionTerms...), " ")
	}

	query := map[string]any{
		"_and": []any{
			map[string]any{
				"_or": []any{
					map[string]any{textOp: map[string]string{"patent_title": textQuery}},
					map[string]any{textOp: map[string]string{"patent_abstract": textQuery}},
				},
			},
			map[string]any{"_gte": map[string]string{"patent_date": fmt.Sprintf("%d-01-01", yearStart)}},
			map[string]any{"_lte": map[string]string{"patent_date": fmt.Sprintf("%d-12-31", yearEnd)}},
		},
	}
	fields := []string{
		"patent_id",
		"patent_title",
		"patent_abstract",
		"patent_date",
		"patent_num_times_cited_by_us_patents",
		"assignees",
	}
	options := map[string]int{"size": 100}

	q, _ := json.Marshal(query)
	f, _ := json.Marshal(fields)
	o, _ := json.Marshal(options)
	endpoint := fmt.Sprintf("%s?q=%s&f=%s&o=%s",
		c.baseURL, url.QueryEscape(string(q)), url.QueryEscape(string(f)), url.QueryEscape(string(o)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("build request: %v", err))
		return nil
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		*errs = append(*errs, requestErrorMessage(err))
		return nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		if retryAfter == "" {
			retryAfter = "unknown"
		}
		*errs = append(*errs, fmt.Sprintf("Rate limited (retry after %ss)", retryAfter))
		return nil
	case http.StatusUnauthorized:
		*errs = append(*errs, "Authentication failed - invalid API key")
		return nil
	case http.StatusBadRequest:
		*errs = append(*errs, "Invalid query parameters")
		return nil
	default:
		*errs = append(*errs, statusErrorMessage(resp.StatusCode))
		return nil
	}

	var data patentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		*errs = append(*errs, fmt.Sprintf("decode response: %v", err))
		return nil
	}
	if data.Error {
		*errs = append(*errs, "API returned error flag")
		return nil
	}
	return &data
}

func averagePatentCitations(data *patentsResponse) float64 {
	if data == nil || len(data.Patents) == 0 {
		return 0.0
	}
	total := 0
	for _, p := range data.Patents {
		total += p.citationCount()
	}
	return float64(total) / float64(len(data.Patents))
}

// assigneeConcentration buckets how much of the filing volume the top three
// assignees hold.
func assigneeConcentration(assigneeCounts map[string]int, totalPatents int) string {
	if totalPatents == 0 || len(assigneeCounts) == 0 {
		return "unknown"
	}
	top3 := 0
	for _, entry := range topCounts(assigneeCounts, 3) {
		top3 += entry.count
	}
	share := float64(top3) / float64(totalPatents)
	switch {
	case share > 0.5:
		return "concentrated"
	case share > 0.25:
		return "moderate"
	default:
		return "diverse"
	}
}

// geographicReach counts countries holding more than 5% of the patents.
func geographicReach(countryCounts map[string]int) string {
	if len(countryCounts) == 0 {
		return "unknown"
	}
	total := 0
	for _, count := range countryCounts {
		total += count
	}
	if total == 0 {
		return "unknown"
	}
	significant := 0
	for _, count := range countryCounts {
		if float64(count)/float64(total) > 0.05 {
			significant++
		}
	}
	switch {
	case significant == 1:
		return "domestic"
	case significant <= 3:
		return "regional"
	default:
		return "global"
	}
}

func patentMaturity(totalPatents int, avgCitations2y float64) string {
	if totalPatents > 500 || avgCitations2y > 15 {
		return "mature"
	}
	if totalPatents < 50 && avgCitations2y < 5 {
		return "emerging"
	}
	return "developing"
}

type countEntry struct {
	key   string
	count int
}

// topCounts returns the n largest entries of a counter map, ties broken by
// key for deterministic output.
func topCounts(counts map[string]int, n int) []countEntry {
	entries := make([]countEntry, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, countEntry{key: k, count: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].key < entries[j].key
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// appendOnce guards against the same message piling up across windows.
func appendOnce(errs *[]string, msg string) {
	for _, e := range *errs {
		if e == msg {
			return
		}
	}
	*errs = append(*errs, msg)
}
