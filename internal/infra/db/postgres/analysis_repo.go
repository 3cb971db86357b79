package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"

	domain "github.com/bryanwahyu/mediscan/internal/domain/analysis"
)

type AnalysisRepository struct{ db *sql.DB }

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository { return &AnalysisRepository{db: db} }

const resultColumns = `
SELECT id, xray_image_id, user_id, overall_risk, recommendation, summary, status, processing_ms, analyzed_at
FROM analysis_results`

func (r *AnalysisRepository) Save(ctx context.Context, res *domain.Result) error {
	const q = `
INSERT INTO analysis_results
(id, xray_image_id, user_id, overall_risk, recommendation, summary, status, processing_ms, analyzed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, q,
		res.ID, res.ImageID, res.UserID, stringOrDash(string(res.OverallRisk)),
		res.Recommendation, res.Summary, stringOrDash(string(res.Status)), res.ProcessingMS, orNow(res.AnalyzedAt),
	); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	args := make([]any, 0, len(domain.Conditions)*3)
	for _, c := range domain.Conditions {
		args = append(args, res.ID, c.Key(), res.Scores.Get(c))
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO analysis_scores (analysis_id, condition_key, score) VALUES "+tuples(len(domain.Conditions), 3)+";",
		args...,
	); err != nil {
		return fmt.Errorf("insert analysis scores: %w", err)
	}
	return tx.Commit()
}

func (r *AnalysisRepository) Get(ctx context.Context, userID string, id domain.ResultID) (*domain.Result, error) {
	res, err := r.one(ctx, resultColumns+"\nWHERE user_id=$1 AND id=$2 LIMIT 1;", userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return res, err
}

func (r *AnalysisRepository) GetByImage(ctx context.Context, userID, imageID string) (*domain.Result, error) {
	res, err := r.one(ctx, resultColumns+"\nWHERE user_id=$1 AND xray_image_id=$2 LIMIT 1;", userID, imageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *AnalysisRepository) one(ctx context.Context, q string, args ...any) (*domain.Result, error) {
	res, err := scanResult(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		return nil, err
	}
	if err := r.attachScores(ctx, []*domain.Result{res}); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *AnalysisRepository) Paginate(ctx context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	rows, err := r.db.QueryContext(ctx,
		resultColumns+"\nWHERE user_id=$1 ORDER BY analyzed_at DESC, id DESC LIMIT $2 OFFSET $3;",
		userID, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying analyses: %w", err)
	}
	defer rows.Close()

	var results []*domain.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return domain.PaginatedResult{}, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("iterating rows: %w", err)
	}
	if err := r.attachScores(ctx, results); err != nil {
		return domain.PaginatedResult{}, err
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analysis_results WHERE user_id = $1`, userID).Scan(&total); err != nil {
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

func (r *AnalysisRepository) Summary(ctx context.Context, userID string, sinceDays int) (domain.RiskSummary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().UTC().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*) AS total_analyses,
       COUNT(*) FILTER (WHERE overall_risk = 'high')   AS high,
       COUNT(*) FILTER (WHERE overall_risk = 'medium') AS medium,
       COUNT(*) FILTER (WHERE overall_risk = 'low')    AS low
FROM analysis_results
WHERE user_id=$1 AND analyzed_at >= $2;`
	var s domain.RiskSummary
	if err := r.db.QueryRowContext(ctx, q, userID, cut).Scan(&s.Total, &s.High, &s.Medium, &s.Low); err != nil {
		return domain.RiskSummary{}, err
	}
	return s, nil
}

func (r *AnalysisRepository) attachScores(ctx context.Context, results []*domain.Result) error {
	if len(results) == 0 {
		return nil
	}
	byID := make(map[domain.ResultID]*domain.Result, len(results))
	ids := make([]string, 0, len(results))
	for _, res := range results {
		res.Scores = domain.Scores{}
		byID[res.ID] = res
		ids = append(ids, string(res.ID))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT analysis_id, condition_key, score FROM analysis_scores WHERE analysis_id = ANY($1);`, pq.Array(ids))
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
		if c, ok := domain.LookupCondition(key); ok {
			if res, ok := byID[id]; ok {
				res.Scores[c] = score
			}
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
