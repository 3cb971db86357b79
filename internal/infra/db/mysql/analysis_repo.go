package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/bryanwahyu/mediscan/internal/domain/analysis"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

const resultColumns = `
SELECT id, xray_image_id, user_id, overall_risk, recommendation, summary, status, processing_ms, analyzed_at
FROM analysis_results`

// Save inserts the result and its eighteen scores in one transaction.
func (r *AnalysisRepository) Save(ctx context.Context, res *domain.Result) error {
	const q = `
INSERT INTO analysis_results
(id, xray_image_id, user_id, overall_risk, recommendation, summary, status, processing_ms, analyzed_at)
VALUES (?,?,?,?,?,?,?,?,?);
`
	analyzed := res.AnalyzedAt
	if analyzed.IsZero() {
		analyzed = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, q,
		res.ID, res.ImageID, res.UserID, stringOrDash(string(res.OverallRisk)),
		res.Recommendation, res.Summary, stringOrDash(string(res.Status)), res.ProcessingMS, analyzed,
	); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	values := strings.TrimSuffix(strings.Repeat("(?,?,?),", len(domain.Conditions)), ",")
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO analysis_scores (analysis_id, condition_key, score) VALUES "+values+";",
		scoreRows(string(res.ID), res.Scores)...,
	); err != nil {
		return fmt.Errorf("insert analysis scores: %w", err)
	}
	return tx.Commit()
}

// Get by ID + user
func (r *AnalysisRepository) Get(ctx context.Context, userID string, id domain.ResultID) (*domain.Result, error) {
	row := r.db.QueryRowContext(ctx, resultColumns+"\nWHERE user_id=? AND id=? LIMIT 1;", userID, id)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachScores(ctx, []*domain.Result{res}); err != nil {
		return nil, err
	}
	return res, nil
}

// GetByImage returns nil, nil when the image has not been analyzed.
func (r *AnalysisRepository) GetByImage(ctx context.Context, userID, imageID string) (*domain.Result, error) {
	row := r.db.QueryRowContext(ctx, resultColumns+"\nWHERE user_id=? AND xray_image_id=? LIMIT 1;", userID, imageID)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachScores(ctx, []*domain.Result{res}); err != nil {
		return nil, err
	}
	return res, nil
}

// Paginate with offset + limit, newest first
func (r *AnalysisRepository) Paginate(ctx context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	rows, err := r.db.QueryContext(ctx,
		resultColumns+"\nWHERE user_id=? ORDER BY analyzed_at DESC, id DESC LIMIT ? OFFSET ?;",
		userID, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying analyses: %w", err)
	}
	results, err := scanResults(rows)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("scanning analyses: %w", err)
	}
	if err := r.attachScores(ctx, results); err != nil {
		return domain.PaginatedResult{}, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_results WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("getting total count: %w", err)
	}

	return domain.PaginatedResult{
		Data:       results,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// Summary counts analyses per risk tier since N days
func (r *AnalysisRepository) Summary(ctx context.Context, userID string, sinceDays int) (domain.RiskSummary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().UTC().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*) AS total_analyses,
       COALESCE(SUM(overall_risk = 'high'),0)   AS high,
       COALESCE(SUM(overall_risk = 'medium'),0) AS medium,
       COALESCE(SUM(overall_risk = 'low'),0)    AS low
FROM analysis_results
WHERE user_id=? AND analyzed_at >= ?;
`
	var s domain.RiskSummary
	if err := r.db.QueryRowContext(ctx, q, userID, cut).Scan(&s.Total, &s.High, &s.Medium, &s.Low); err != nil {
		return domain.RiskSummary{}, err
	}
	return s, nil
}

// attachScores loads analysis_scores for all results with one query.
func (r *AnalysisRepository) attachScores(ctx context.Context, results []*domain.Result) error {
	if len(results) == 0 {
		return nil
	}
	byID := make(map[domain.ResultID]*domain.Result, len(results))
	args := make([]any, 0, len(results))
	for _, res := range results {
		res.Scores = domain.Scores{}
		byID[res.ID] = res
		args = append(args, res.ID)
	}

	q := "SELECT analysis_id, condition_key, score FROM analysis_scores WHERE analysis_id IN (" + placeholders(len(args)) + ");"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("querying scores: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    domain.ResultID
			key   string
			score float64
		)
		if err := rows.Scan(&id, &key, &score); err != nil {
			return err
		}
		c, ok := domain.LookupCondition(key)
		if !ok {
			continue
		}
		if res, ok := byID[id]; ok {
			res.Scores[c] = score
		}
	}
	return rows.Err()
}

func scanResult(row rowScanner) (*domain.Result, error) {
	var res domain.Result
	if err := row.Scan(
		&res.ID, &res.ImageID, &res.UserID, &res.OverallRisk, &res.Recommendation, &res.Summary,
		&res.Status, &res.ProcessingMS, &res.AnalyzedAt,
	); err != nil {
		return nil, err
	}
	return &res, nil
}

func scanResults(rows *sql.Rows) ([]*domain.Result, error) {
	defer rows.Close()
	var out []*domain.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
