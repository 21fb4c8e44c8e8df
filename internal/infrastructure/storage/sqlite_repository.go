package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"HypeScanner/internal/domain"
	"HypeScanner/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id TEXT PRIMARY KEY,
	keyword TEXT NOT NULL,
	phase TEXT NOT NULL,
	confidence REAL,
	reasoning TEXT,
	social_data TEXT,
	papers_data TEXT,
	patents_data TEXT,
	news_data TEXT,
	finance_data TEXT,
	per_source_analyses_data TEXT,
	query_expansion_applied INTEGER DEFAULT 0,
	expanded_terms_data TEXT,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_keyword ON analyses(keyword);
CREATE INDEX IF NOT EXISTS idx_expires ON analyses(expires_at);
`

// timeLayout keeps a fixed-width fractional part so stored timestamps
// compare correctly as strings in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRepository persists classification results in a sqlite file.
// One row per classification attempt; reads always take the newest live row
// for a keyword, so writes never update in place.
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ ports.AnalysisRepository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(db *sql.DB, logger *slog.Logger) *SQLiteRepository {
	return &SQLiteRepository{db: db, logger: logger}
}

// Open connects to the sqlite database at path and ensures the schema exists.
func Open(ctx context.Context, path string, logger *slog.Logger) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	repo := NewSQLiteRepository(db, logger)
	if err := repo.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// InitSchema creates the analyses table and its indexes if absent.
func (r *SQLiteRepository) InitSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Latest returns the newest unexpired result for keyword, or (nil, nil) when
// no live row exists. Derived response fields (success count, partial flag)
// are recomputed from the stored collector payloads; run errors are not
// persisted and come back empty on a cache hit.
func (r *SQLiteRepository) Latest(ctx context.Context, keyword string, now time.Time) (*domain.ClassificationResult, error) {
	query, args, err := sq.Select(
		"id", "keyword", "phase", "confidence", "reasoning",
		"social_data", "papers_data", "patents_data", "news_data", "finance_data",
		"per_source_analyses_data", "query_expansion_applied", "expanded_terms_data",
		"created_at", "expires_at",
	).
		From("analyses").
		Where(sq.Eq{"keyword": keyword}).
		Where(sq.Gt{"expires_at": now.UTC().Format(timeLayout)}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest query: %w", err)
	}

	var (
		result        domain.ClassificationResult
		sourceData    = map[domain.Source]sql.NullString{}
		socialData    sql.NullString
		papersData    sql.NullString
		patentsData   sql.NullString
		newsData      sql.NullString
		financeData   sql.NullString
		perSourceData sql.NullString
		expansion     int
		termsData     sql.NullString
		createdAt     string
		expiresAt     string
	)
	row := r.db.QueryRowContext(ctx, query, args...)
	err = row.Scan(
		&result.ID, &result.Keyword, &result.Phase, &result.Confidence, &result.Reasoning,
		&socialData, &papersData, &patentsData, &newsData, &financeData,
		&perSourceData, &expansion, &termsData,
		&createdAt, &expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest analysis: %w", err)
	}

	sourceData[domain.SourceSocial] = socialData
	sourceData[domain.SourcePapers] = papersData
	sourceData[domain.SourcePatents] = patentsData
	sourceData[domain.SourceNews] = newsData
	sourceData[domain.SourceFinance] = financeData

	result.Collector = make(map[domain.Source]*domain.SourceMetrics, len(domain.SourceOrder))
	for _, source := range domain.SourceOrder {
		raw := sourceData[source]
		if !raw.Valid || raw.String == "" {
			result.Collector[source] = nil
			continue
		}
		var metrics domain.SourceMetrics
		if err := json.Unmarshal([]byte(raw.String), &metrics); err != nil {
			return nil, fmt.Errorf("decode %s_data for %s: %w", source, keyword, err)
		}
		result.Collector[source] = &metrics
		result.CollectorsSucceeded++
	}
	result.PartialData = result.CollectorsSucceeded < len(domain.SourceOrder)

	result.PerSource = map[domain.Source]domain.PhaseOpinion{}
	if perSourceData.Valid && perSourceData.String != "" {
		if err := json.Unmarshal([]byte(perSourceData.String), &result.PerSource); err != nil {
			// A corrupted per-source blob degrades the cached row, it does
			// not invalidate it.
			r.logger.Warn("failed to decode per-source analyses", "keyword", keyword, "error", err)
			result.PerSource = map[domain.Source]domain.PhaseOpinion{}
		}
	}

	result.ExpansionApplied = expansion != 0
	result.ExpandedTerms = []string{}
	if termsData.Valid && termsData.String != "" {
		if err := json.Unmarshal([]byte(termsData.String), &result.ExpandedTerms); err != nil {
			r.logger.Warn("failed to decode expanded terms", "keyword", keyword, "error", err)
			result.ExpandedTerms = []string{}
		}
	}

	if result.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if result.ExpiresAt, err = time.Parse(timeLayout, expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}

	result.Errors = []string{}
	return &result, nil
}

// Save inserts one finished classification as a new row.
func (r *SQLiteRepository) Save(ctx context.Context, result *domain.ClassificationResult) error {
	perSource, err := json.Marshal(result.PerSource)
	if err != nil {
		return fmt.Errorf("encode per-source analyses: %w", err)
	}
	terms, err := json.Marshal(result.ExpandedTerms)
	if err != nil {
		return fmt.Errorf("encode expanded terms: %w", err)
	}

	values := map[string]any{
		"id":                       uuid.NewString(),
		"keyword":                  result.Keyword,
		"phase":                    string(result.Phase),
		"confidence":               result.Confidence,
		"reasoning":                result.Reasoning,
		"per_source_analyses_data": string(perSource),
		"query_expansion_applied":  boolToInt(result.ExpansionApplied),
		"expanded_terms_data":      string(terms),
		"created_at":               result.CreatedAt.UTC().Format(timeLayout),
		"expires_at":               result.ExpiresAt.UTC().Format(timeLayout),
	}
	for _, source := range domain.SourceOrder {
		column := fmt.Sprintf("%s_data", source)
		metrics := result.Collector[source]
		if metrics == nil {
			values[column] = nil
			continue
		}
		encoded, err := json.Marshal(metrics)
		if err != nil {
			return fmt.Errorf("encode %s: %w", column, err)
		}
		values[column] = string(encoded)
	}

	query, args, err := sq.Insert("analyses").SetMap(values).ToSql()
	if err != nil {
		return fmt.Errorf("build insert query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	r.logger.Debug("saved analysis", "keyword", result.Keyword, "phase", result.Phase)
	return nil
}

// DeleteExpired removes rows at or past their expiry and reports the count.
func (r *SQLiteRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query, args, err := sq.Delete("analyses").
		Where(sq.LtOrEq{"expires_at": now.UTC().Format(timeLayout)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired analyses: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted rows: %w", err)
	}
	return removed, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
