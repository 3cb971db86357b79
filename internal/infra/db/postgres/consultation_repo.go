package postgres

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/bryanwahyu/mediscan/internal/domain/consultations"
)

type ConsultationRepository struct{ db *sql.DB }

func NewConsultationRepository(db *sql.DB) *ConsultationRepository {
	return &ConsultationRepository{db: db}
}

func (r *ConsultationRepository) Save(ctx context.Context, c *domain.Consultation) error {
	const q = `
INSERT INTO consultations
(id, analysis_id, requesting_doctor_id, specialist_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 updated_at = EXCLUDED.updated_at;`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.AnalysisID, c.RequestingDoctorID, c.SpecialistID, stringOrDash(string(c.Status)),
		orNow(c.CreatedAt), orNow(c.UpdatedAt),
	)
	return err
}

func (r *ConsultationRepository) Get(ctx context.Context, id domain.ID) (*domain.Consultation, error) {
	const q = `
SELECT id, analysis_id, requesting_doctor_id, specialist_id, status, created_at, updated_at
FROM consultations
WHERE id=$1 LIMIT 1;`
	var c domain.Consultation
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID, &c.AnalysisID, &c.RequestingDoctorID, &c.SpecialistID, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConsultationRepository) SaveMessage(ctx context.Context, m *domain.Message) error {
	const q = `
INSERT INTO consultation_messages (id, consultation_id, sender_id, message, created_at)
VALUES ($1,$2,$3,$4,$5);`
	_, err := r.db.ExecContext(ctx, q, m.ID, m.ConsultationID, m.SenderID, m.Body, orNow(m.CreatedAt))
	return err
}

func (r *ConsultationRepository) ListMessages(ctx context.Context, id domain.ID, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, consultation_id, sender_id, message, created_at
FROM consultation_messages
WHERE consultation_id=$1
ORDER BY created_at ASC, id ASC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConsultationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
