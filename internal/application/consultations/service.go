package consultations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/mediscan/internal/application"
	domain "github.com/bryanwahyu/mediscan/internal/domain/consultations"
)

const maxMessageLen = 4000

var (
	ErrForbidden    = errors.New("not a participant of this consultation")
	ErrInvalidInput = errors.New("invalid consultation input")
	ErrClosed       = errors.New("consultation is closed")
)

// AnalysisChecker confirms the analysis exists and belongs to the doctor.
type AnalysisChecker func(ctx context.Context, userID, analysisID string) error

type Service struct {
	Repo          domain.Repository
	Broker        domain.Broker
	CheckAnalysis AnalysisChecker
	Clock         application.Clock
	Log           logrus.FieldLogger
}

type OpenCommand struct {
	DoctorID     string
	AnalysisID   string
	SpecialistID string
}

// Open starts a consultation between the requesting doctor and a specialist.
func (s *Service) Open(ctx context.Context, cmd OpenCommand) (*domain.Consultation, error) {
	if cmd.AnalysisID == "" || cmd.SpecialistID == "" {
		return nil, fmt.Errorf("%w: analysis_id and specialist_id are required", ErrInvalidInput)
	}
	if cmd.SpecialistID == cmd.DoctorID {
		return nil, fmt.Errorf("%w: specialist must be another user", ErrInvalidInput)
	}
	if s.CheckAnalysis != nil {
		if err := s.CheckAnalysis(ctx, cmd.DoctorID, cmd.AnalysisID); err != nil {
			return nil, err
		}
	}
	now := s.Clock.Now()
	c := &domain.Consultation{
		ID:                 domain.ID(uuid.NewString()),
		AnalysisID:         cmd.AnalysisID,
		RequestingDoctorID: cmd.DoctorID,
		SpecialistID:       cmd.SpecialistID,
		Status:             domain.StatusOpen,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.Repo.Save(ctx, c); err != nil {
		return nil, err
	}
	s.Log.WithFields(logrus.Fields{"consultation_id": c.ID, "analysis_id": c.AnalysisID}).Info("consultation opened")
	return c, nil
}

// Get returns the consultation if userID takes part in it.
func (s *Service) Get(ctx context.Context, userID string, id domain.ID) (*domain.Consultation, error) {
	c, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsParticipant(userID) {
		return nil, ErrForbidden
	}
	return c, nil
}

// Post stores a message and publishes it to live subscribers. A publish
// failure is logged, the message is already durable.
func (s *Service) Post(ctx context.Context, userID string, id domain.ID, body string) (*domain.Message, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.StatusClosed {
		return nil, ErrClosed
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(body) > maxMessageLen {
		return nil, fmt.Errorf("%w: message longer than %d characters", ErrInvalidInput, maxMessageLen)
	}

	m := &domain.Message{
		ID:             uuid.NewString(),
		ConsultationID: id,
		SenderID:       userID,
		Body:           body,
		CreatedAt:      s.Clock.Now(),
	}
	if err := s.Repo.SaveMessage(ctx, m); err != nil {
		return nil, err
	}
	if s.Broker != nil {
		if err := s.Broker.Publish(ctx, m); err != nil {
			s.Log.WithError(err).WithField("consultation_id", id).Warn("publish consultation message")
		}
	}
	return m, nil
}

func (s *Service) Messages(ctx context.Context, userID string, id domain.ID, limit int) ([]*domain.Message, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.Repo.ListMessages(ctx, id, limit)
}

// Subscribe streams new messages of a consultation to fn.
func (s *Service) Subscribe(ctx context.Context, userID string, id domain.ID, fn func(*domain.Message)) (func(), error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if s.Broker == nil {
		return nil, errors.New("live updates are not configured")
	}
	return s.Broker.Subscribe(ctx, id, fn)
}
