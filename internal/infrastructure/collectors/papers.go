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

const defaultSemanticScholarURL = "https://api.semanticscholar.org/graph/v1/paper/search/bulk"

// PapersCollector gathers academic signal from the Semantic Scholar bulk
// search API across two windows: the last 2 years and the 3 years before
// that. Citation averages, author and venue diversity and the derived
// maturity buckets feed the classifier.
type PapersCollector struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

var _ ports.Collector = (*PapersCollector)(nil)

func NewPapersCollector(apiKey string, client *http.Client, logger *slog.Logger) *PapersCollector {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &PapersCollector{
		baseURL:    defaultSemanticScholarURL,
		apiKey:     apiKey,
		httpClient: client,
		logger:     logger,
		now:        time.Now,
	}
}

func (c *PapersCollector) Source() domain.Source {
	return domain.SourcePapers
}

type scholarPaper struct {
	Title        string `json:"title"`
	Year         *int   `json:"year"`
	Citations    int    `json:"citationCount"`
	Influential  int    `json:"influentialCitationCount"`
	Venue        string `json:"venue"`
	Authors      []struct {
		AuthorID string `json:"authorId"`
	} `json:"authors"`
}

type scholarResponse struct {
	Total int            `json:"total"`
	Data  []scholarPaper `json:"data"`
}

func (c *PapersCollector) Fetch(ctx context.Context, keyword string, expansionTerms []string) (*domain.SourceMetrics, error) {
	now := c.now()
	currentYear := now.Year()
	query := scholarQuery(keyword, expansionTerms)

	var errs []string
	data2y := c.fetchWindow(ctx, query, currentYear-2, currentYear, &errs)
	data5y := c.fetchWindow(ctx, query, currentYear-5, currentYear-2, &errs)

	if data2y == nil && data5y == nil {
		return nil, fmt.Errorf("all semantic scholar requests failed: %s", strings.Join(errs, "; "))
	}

	var publications2y, publications5y int
	if data2y != nil {
		publications2y = data2y.Total
	}
	if data5y != nil {
		publications5y = data5y.Total
	}

	avgCitations2y, avgInfluential2y := 0.0, 0.0
	topPapers := []map[string]any{}
	if data2y != nil && len(data2y.Data) > 0 {
		papers := data2y.Data
		var citations, influential int
		for _, p := range papers {
			citations += p.Citations
			influential += p.Influential
		}
		avgCitations2y = float64(citations) / float64(len(papers))
		avgInfluential2y = float64(influential) / float64(len(papers))

		ranked := make([]scholarPaper, len(papers))
		copy(ranked, papers)
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Citations > ranked[j].Citations
		})
		for _, p := range ranked {
			if len(topPapers) == 5 {
				break
			}
			var year any
			if p.Year != nil {
				year = *p.Year
			}
			topPapers = append(topPapers, map[string]any{
				"title":                 p.Title,
				"year":                  year,
				"citations":             p.Citations,
				"influential_citations": p.Influential,
				"authors":               len(p.Authors),
				"venue":                 p.Venue,
			})
		}
	}

	avgCitations5y, avgInfluential5y := 0.0, 0.0
	authorDiversity, venueDiversity := 0, 0
	if data5y != nil && len(data5y.Data) > 0 {
		papers := data5y.Data
		var citations, influential int
		authors := map[string]struct{}{}
		venues := map[string]struct{}{}
		for _, p := range papers {
			citations += p.Citations
			influential += p.Influential
			for _, a := range p.Authors {
				if a.AuthorID != "" {
					authors[a.AuthorID] = struct{}{}
				}
			}
			if p.Venue != "" {
				venues[p.Venue] = struct{}{}
			}
		}
		avgCitations5y = float64(citations) / float64(len(papers))
		avgInfluential5y = float64(influential) / float64(len(papers))
		authorDiversity = len(authors)
		venueDiversity = len(venues)
	}

	totalPublications := publications2y + publications5y
	recentRate := float64(publications2y) / 2.0
	historicalRate := float64(publications5y) / 5.0

	metrics := &domain.SourceMetrics{
		Source:      domain.SourcePapers,
		Keyword:     keyword,
		CollectedAt: now,
		Errors:      errs,
		Extra: map[string]any{
			"publications_2y":    publications2y,
			"publications_5y":    publications5y,
			"publications_total": totalPublications,

			"avg_citations_2y":             round2(avgCitations2y),
			"avg_citations_5y":             round2(avgCitations5y),
			"avg_influential_citations_2y": round2(avgInfluential2y),
			"avg_influential_citations_5y": round2(avgInfluential5y),
			"citation_velocity":            round3(growthVelocity(avgCitations2y, avgCitations5y)),

			"author_diversity": authorDiversity,
			"venue_diversity":  venueDiversity,

			"research_maturity": researchMaturity(totalPublications, avgCitations2y),
			"research_momentum": rateMomentum(recentRate, historicalRate),
			"research_trend":    rateTrend(recentRate, historicalRate),
			"research_breadth":  researchBreadth(authorDiversity, venueDiversity, totalPublications),

			"top_papers": topPapers,
		},
	}
	return metrics, nil
}

func (c *PapersCollector) fetchWindow(ctx context.Context, query string, yearStart, yearEnd int, errs *[]string) *scholarResponse {
	params := url.Values{}
	params.Set("query", query)
	params.Set("year", fmt.Sprintf("%d-%d", yearStart, yearEnd-1))
	params.Set("fields", "paperId,title,year,citationCount,influentialCitationCount,authors,venue")
	params.Set("limit", "100")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("build request: %v", err))
		return nil
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		*errs = append(*errs, requestErrorMessage(err))
		return nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		*errs = append(*errs, "Invalid query parameters")
		return nil
	case resp.StatusCode != http.StatusOK:
		*errs = append(*errs, statusErrorMessage(resp.StatusCode))
		return nil
	}

	var data scholarResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		*errs = append(*errs, fmt.Sprintf("decode response: %v", err))
		return nil
	}
	return &data
}

// scholarQuery quotes the keyword for exact phrase matching; expansion terms
// widen it into a boolean any-of query.
func scholarQuery(keyword string, expansionTerms []string) string {
	if len(expansionTerms) == 0 {
		return fmt.Sprintf("%q", keyword)
	}
	parts := make([]string, 0, len(expansionTerms)+1)
	parts = append(parts, fmt.Sprintf("%q", keyword))
	for _, term := range expansionTerms {
		parts = append(parts, fmt.Sprintf("%q", term))
	}
	return strings.Join(parts, " | ")
}

// researchMaturity buckets the field: many publications or heavy recent
// citations is mature, a handful of barely cited papers is emerging.
func researchMaturity(totalPublications int, avgCitations2y float64) string {
	if totalPublications > 50 || avgCitations2y > 20 {
		return "mature"
	}
	if totalPublications < 10 && avgCitations2y < 5 {
		return "emerging"
	}
	return "developing"
}

// researchBreadth buckets author and venue diversity per publication.
func researchBreadth(authorDiversity, venueDiversity, totalPublications int) string {
	if totalPublications == 0 {
		return "narrow"
	}
	authorRatio := float64(authorDiversity) / float64(totalPublications)
	venueRatio := float64(venueDiversity) / float64(totalPublications)

	if authorRatio > 2.0 && venueRatio > 0.3 {
		return "broad"
	}
	if authorRatio < 1.5 || venueRatio < 0.1 {
		return "narrow"
	}
	return "moderate"
}
