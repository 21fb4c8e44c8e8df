package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"HypeScanner/internal/domain"
	"HypeScanner/internal/ports"
)

const (
	defaultYahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	defaultYahooQuoteURL = "https://finance.yahoo.com/quote"

	tickerFetchWorkers = 5
)

// fallbackETFs stand in for the tech sector when ticker discovery fails.
var fallbackETFs = []string{"QQQ", "XLK"}

// TickerResolver maps a technology keyword to public-company tickers.
type TickerResolver interface {
	RelatedTickers(ctx context.Context, keyword string) ([]string, error)
}

// FinanceCollector gathers market signal from Yahoo Finance. Tickers come
// from the resolver (with a per-keyword cache), daily prices and volumes
// from the chart API, and market cap plus company name from scraping the
// quote page. Expansion terms are ignored: the ticker universe is keyed on
// the keyword alone.
type FinanceCollector struct {
	chartURL   string
	quoteURL   string
	resolver   TickerResolver
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu          sync.Mutex
	tickerCache map[string][]string
}

var _ ports.Collector = (*FinanceCollector)(nil)

func NewFinanceCollector(resolver TickerResolver, client *http.Client, logger *slog.Logger) *FinanceCollector {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &FinanceCollector{
		chartURL:    defaultYahooChartURL,
		quoteURL:    defaultYahooQuoteURL,
		resolver:    resolver,
		httpClient:  client,
		logger:      logger,
		now:         time.Now,
		tickerCache: map[string][]string{},
	}
}

func (c *FinanceCollector) Source() domain.Source {
	return domain.SourceFinance
}

// tickerData is the per-company snapshot aggregated into the metrics.
type tickerData struct {
	ticker        string
	name          string
	marketCap     float64
	sector        string
	industry      string
	priceChange1m float64
	priceChange6m float64
	priceChange2y float64
	avgVolume1m   float64
	avgVolume6m   float64
	volatility1m  float64
	volatility6m  float64
}

func (c *FinanceCollector) Fetch(ctx context.Context, keyword string, _ []string) (*domain.SourceMetrics, error) {
	now := c.now()

	var errs []string
	tickers := c.resolveTickers(ctx, keyword, &errs)
	if len(tickers) == 0 {
		return nil, fmt.Errorf("no tickers found: %s", strings.Join(errs, "; "))
	}

	valid := c.fetchAllTickers(ctx, tickers, &errs)
	if len(valid) == 0 {
		return nil, fmt.Errorf("all ticker fetches failed: %s", strings.Join(errs, "; "))
	}

	n := float64(len(valid))
	var totalMarketCap, change1m, change6m, change2y float64
	var volume1m, volume6m, volatility1m, volatility6m float64
	for _, td := range valid {
		totalMarketCap += td.marketCap
		change1m += td.priceChange1m
		change6m += td.priceChange6m
		change2y += td.priceChange2y
		volume1m += td.avgVolume1m
		volume6m += td.avgVolume6m
		volatility1m += td.volatility1m
		volatility6m += td.volatility6m
	}
	change1m /= n
	change6m /= n
	change2y /= n
	volume1m /= n
	volume6m /= n
	volatility1m /= n
	volatility6m /= n

	ranked := make([]tickerData, len(valid))
	copy(ranked, valid)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].marketCap > ranked[j].marketCap
	})
	topCompanies := []map[string]any{}
	tickerSymbols := []string{}
	for _, td := range valid {
		tickerSymbols = append(tickerSymbols, td.ticker)
	}
	for _, td := range ranked {
		if len(topCompanies) == 5 {
			break
		}
		topCompanies = append(topCompanies, map[string]any{
			"ticker":          td.ticker,
			"name":            td.name,
			"market_cap":      td.marketCap,
			"price_change_1m": td.priceChange1m,
			"sector":          td.sector,
			"industry":        td.industry,
		})
	}

	metrics := &domain.SourceMetrics{
		Source:      domain.SourceFinance,
		Keyword:     keyword,
		CollectedAt: now,
		Errors:      errs,
		Extra: map[string]any{
			"companies_found": len(valid),
			"tickers":         tickerSymbols,

			"total_market_cap": totalMarketCap,
			"avg_market_cap":   totalMarketCap / n,

			"avg_price_change_1m": change1m,
			"avg_price_change_6m": change6m,
			"avg_price_change_2y": change2y,

			"avg_volume_1m": volume1m,
			"avg_volume_6m": volume6m,
			"volume_trend":  volumeTrend(volume1m, volume6m),

			"avg_volatility_1m": volatility1m,
			"avg_volatility_6m": volatility6m,

			"market_maturity":     marketMaturity(totalMarketCap, volatility6m),
			"investor_sentiment":  investorSentiment(change1m, change6m),
			"investment_momentum": investmentMomentum(change1m, change6m, change2y),

			"top_companies": topCompanies,
		},
	}
	return metrics, nil
}

func (c *FinanceCollector) resolveTickers(ctx context.Context, keyword string, errs *[]string) []string {
	c.mu.Lock()
	cached, ok := c.tickerCache[keyword]
	c.mu.Unlock()
	if ok {
		return cached
	}

	if c.resolver == nil {
		*errs = append(*errs, "Ticker resolver not configured, using fallback ETFs")
		return fallbackETFs
	}

	tickers, err := c.resolver.RelatedTickers(ctx, keyword)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("Ticker discovery failed: %v", err))
		return fallbackETFs
	}

	c.mu.Lock()
	c.tickerCache[keyword] = tickers
	c.mu.Unlock()
	return tickers
}

// fetchAllTickers runs the per-ticker fetches with bounded concurrency and
// collects errors back on the calling goroutine.
func (c *FinanceCollector) fetchAllTickers(ctx context.Context, tickers []string, errs *[]string) []tickerData {
	type reply struct {
		data    *tickerData
		markers []string
	}

	jobs := make(chan string)
	replies := make(chan reply, len(tickers))

	var wg sync.WaitGroup
	workers := tickerFetchWorkers
	if len(tickers) < workers {
		workers = len(tickers)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticker := range jobs {
				data, markers := c.fetchTicker(ctx, ticker)
				replies <- reply{data: data, markers: markers}
			}
		}()
	}

	for _, ticker := range tickers {
		jobs <- ticker
	}
	close(jobs)
	wg.Wait()
	close(replies)

	var valid []tickerData
	for r := range replies {
		*errs = append(*errs, r.markers...)
		if r.data != nil {
			valid = append(valid, *r.data)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].ticker < valid[j].ticker
	})
	return valid
}

func (c *FinanceCollector) fetchTicker(ctx context.Context, ticker string) (*tickerData, []string) {
	var markers []string

	closes, volumes, err := c.fetchChart(ctx, ticker)
	if err != nil {
		markers = append(markers, fmt.Sprintf("%s: %v", ticker, err))
		return nil, markers
	}
	if len(closes) < 2 {
		markers = append(markers, fmt.Sprintf("No data for %s", ticker))
		return nil, markers
	}

	// The 2y daily series covers all three windows; roughly 21 trading days
	// per month.
	closes1m, volumes1m := tail(closes, 21), tail(volumes, 21)
	closes6m, volumes6m := tail(closes, 126), tail(volumes, 126)

	data := &tickerData{
		ticker:        ticker,
		name:          ticker,
		sector:        "Unknown",
		industry:      "Unknown",
		priceChange1m: priceChange(closes1m),
		priceChange6m: priceChange(closes6m),
		priceChange2y: priceChange(closes),
		avgVolume1m:   average(volumes1m),
		avgVolume6m:   average(volumes6m),
		volatility1m:  annualizedVolatility(closes1m),
		volatility6m:  annualizedVolatility(closes6m),
	}

	name, marketCap, err := c.scrapeQuotePage(ctx, ticker)
	if err != nil {
		markers = append(markers, fmt.Sprintf("%s: quote page: %v", ticker, err))
	} else {
		if name != "" {
			data.name = name
		}
		data.marketCap = marketCap
	}

	return data, markers
}

func (c *FinanceCollector) fetchChart(ctx context.Context, ticker string) (closes, volumes []float64, err error) {
	endpoint := fmt.Sprintf("%s/%s?range=2y&interval=1d", c.chartURL, ticker)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s", requestErrorMessage(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("%s", statusErrorMessage(resp.StatusCode))
	}

	var parsed struct {
		Chart struct {
			Result []struct {
				Indicators struct {
					Quote []struct {
						Close  []*float64 `json:"close"`
						Volume []*float64 `json:"volume"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
			Error *struct {
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil, fmt.Errorf("decode chart response: %w", err)
	}
	if parsed.Chart.Error != nil {
		return nil, nil, fmt.Errorf("chart API: %s", parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil, fmt.Errorf("chart response has no quote series")
	}

	quote := parsed.Chart.Result[0].Indicators.Quote[0]
	for i := range quote.Close {
		if quote.Close[i] == nil {
			continue
		}
		closes = append(closes, *quote.Close[i])
		volume := 0.0
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}
		volumes = append(volumes, volume)
	}
	return closes, volumes, nil
}

// scrapeQuotePage pulls company name and market cap out of the Yahoo quote
// page HTML.
func (c *FinanceCollector) scrapeQuotePage(ctx context.Context, ticker string) (string, float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteURL+"/"+ticker+"/", nil)
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%s", requestErrorMessage(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("%s", statusErrorMessage(resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("parse page: %w", err)
	}

	// The h1 reads "NVIDIA Corporation (NVDA)".
	name := strings.TrimSpace(doc.Find("h1").First().Text())
	if idx := strings.LastIndex(name, " ("); idx > 0 {
		name = name[:idx]
	}

	marketCap := 0.0
	capNode := doc.Find(`fin-streamer[data-field="marketCap"]`).First()
	if raw, ok := capNode.Attr("data-value"); ok {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			marketCap = v
		}
	}
	if marketCap == 0 {
		marketCap = parseAbbreviatedNumber(strings.TrimSpace(capNode.Text()))
	}

	return name, marketCap, nil
}

// parseAbbreviatedNumber reads display values like "1.23T" or "845.6B".
func parseAbbreviatedNumber(s string) float64 {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "N/A" {
		return 0
	}
	multiplier := 1.0
	switch s[len(s)-1] {
	case 'T':
		multiplier = 1e12
		s = s[:len(s)-1]
	case 'B':
		multiplier = 1e9
		s = s[:len(s)-1]
	case 'M':
		multiplier = 1e6
		s = s[:len(s)-1]
	case 'K':
		multiplier = 1e3
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v * multiplier
}

func tail(series []float64, n int) []float64 {
	if len(series) <= n {
		return series
	}
	return series[len(series)-n:]
}

func average(series []float64) float64 {
	if len(series) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// priceChange is the relative move from the first to the last close.
func priceChange(closes []float64) float64 {
	if len(closes) < 2 || closes[0] == 0 {
		return 0.0
	}
	return (closes[len(closes)-1] - closes[0]) / closes[0]
}

// annualizedVolatility is the standard deviation of daily returns scaled by
// sqrt(252 trading days).
func annualizedVolatility(closes []float64) float64 {
	if len(closes) < 3 {
		return 0.0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	if len(returns) < 2 {
		return 0.0
	}
	mean := average(returns)
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return math.Sqrt(variance) * math.Sqrt(252)
}

// marketMaturity buckets total market cap against volatility: big and calm
// is mature, small or turbulent is emerging.
func marketMaturity(totalMarketCap, avgVolatility float64) string {
	switch {
	case totalMarketCap > 100e9 && avgVolatility < 0.3:
		return "mature"
	case totalMarketCap < 10e9 || avgVolatility > 0.6:
		return "emerging"
	default:
		return "developing"
	}
}

// investorSentiment weights the 1-month move over the 6-month one.
func investorSentiment(change1m, change6m float64) string {
	weighted := change1m*0.6 + change6m*0.4
	switch {
	case weighted > 0.05:
		return "positive"
	case weighted < -0.05:
		return "negative"
	default:
		return "neutral"
	}
}

func investmentMomentum(change1m, change6m, change2y float64) string {
	switch {
	case change1m > change6m && change6m > change2y/4:
		return "accelerating"
	case change1m < change6m/2 || (change1m < 0 && 0 < change6m):
		return "decelerating"
	default:
		return "steady"
	}
}

func volumeTrend(volume1m, volume6m float64) string {
	if volume6m == 0 {
		return "stable"
	}
	change := (volume1m - volume6m) / volume6m
	switch {
	case change > 0.15:
		return "increasing"
	case change < -0.15:
		return "decreasing"
	default:
		return "stable"
	}
}
