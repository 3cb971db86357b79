package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/consultations"
	"github.com/bryanwahyu/mediscan/internal/domain/images"
	"github.com/bryanwahyu/mediscan/internal/domain/pipelineerrors"
)

var imageCols = []string{"id", "user_id", "file_path", "file_name", "content_type", "size_bytes", "uploaded_at", "has_analysis"}

var resultCols = []string{"id", "xray_image_id", "user_id", "overall_risk", "recommendation", "summary", "status", "processing_ms", "analyzed_at"}

func newMock(t *testing.T) (sqlmock.Sqlmock, func() *ImageRepository, func() *AnalysisRepository) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return mock, func() *ImageRepository { return NewImageRepository(db) }, func() *AnalysisRepository { return NewAnalysisRepository(db) }
}

func TestImageRepositorySave(t *testing.T) {
	mock, imageRepo, _ := newMock(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec("INSERT INTO xray_images").
		WithArgs("img-1", "user-1", "user-1/1.jpg", "chest.jpg", "image/jpeg", int64(2048), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := imageRepo().Save(context.Background(), &images.Image{
		ID: "img-1", UserID: "user-1", FilePath: "user-1/1.jpg", FileName: "chest.jpg",
		ContentType: "image/jpeg", SizeBytes: 2048, UploadedAt: at,
	})
	require.NoError(t, err)
}

func TestImageRepositoryGetNotFound(t *testing.T) {
	mock, imageRepo, _ := newMock(t)
	mock.ExpectQuery("FROM xray_images").
		WithArgs("user-1", "missing").
		WillReturnRows(sqlmock.NewRows(imageCols))

	_, err := imageRepo().Get(context.Background(), "user-1", "missing")
	assert.ErrorIs(t, err, images.ErrNotFound)
}

func TestImageRepositoryLatest(t *testing.T) {
	mock, imageRepo, _ := newMock(t)
	now := time.Now()
	mock.ExpectQuery("FROM xray_images").
		WithArgs("user-1", 20).
		WillReturnRows(sqlmock.NewRows(imageCols).
			AddRow("img-2", "user-1", "user-1/2.png", "b.png", "image/png", 10, now, false).
			AddRow("img-1", "user-1", "user-1/1.png", "a.png", "image/png", 10, now.Add(-time.Hour), true))

	out, err := imageRepo().Latest(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.False(t, out[0].HasAnalysis)
	assert.True(t, out[1].HasAnalysis)
}

func TestImageRepositoryDelete(t *testing.T) {
	mock, imageRepo, _ := newMock(t)
	mock.ExpectExec("DELETE FROM xray_images").
		WithArgs("user-1", "img-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, imageRepo().Delete(context.Background(), "user-1", "img-1"))
}

func TestAnalysisRepositorySaveWritesEveryScore(t *testing.T) {
	mock, _, analysisRepo := newMock(t)
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO analysis_results").
		WithArgs("a-1", "img-1", "user-1", "high", "CT", "nodule", "completed", int64(1200), at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO analysis_scores").
		WillReturnResult(sqlmock.NewResult(0, int64(len(analysis.Conditions))))
	mock.ExpectCommit()

	err := analysisRepo().Save(context.Background(), &analysis.Result{
		ID: "a-1", ImageID: "img-1", UserID: "user-1",
		Scores:      analysis.Scores{analysis.Nodule: 0.82},
		OverallRisk: analysis.RiskHigh, Recommendation: "CT", Summary: "nodule",
		Status: analysis.StatusCompleted, ProcessingMS: 1200, AnalyzedAt: at,
	})
	require.NoError(t, err)
}

func TestAnalysisRepositorySaveRollsBackOnScoreFailure(t *testing.T) {
	mock, _, analysisRepo := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO analysis_results").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO analysis_scores").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := analysisRepo().Save(context.Background(), &analysis.Result{ID: "a-1", ImageID: "img-1", UserID: "user-1"})
	assert.ErrorContains(t, err, "insert analysis scores")
}

func TestAnalysisRepositoryGetMapsScores(t *testing.T) {
	mock, _, analysisRepo := newMock(t)
	now := time.Now()

	mock.ExpectQuery("FROM analysis_results").
		WithArgs("user-1", "a-1").
		WillReturnRows(sqlmock.NewRows(resultCols).
			AddRow("a-1", "img-1", "user-1", "high", "CT", "nodule", "completed", 900, now))
	mock.ExpectQuery("FROM analysis_scores").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"analysis_id", "condition_key", "score"}).
			AddRow("a-1", "nodule", 0.82).
			AddRow("a-1", "pleural_thickening", 0.72).
			AddRow("a-1", "hernia", 0.0))

	res, err := analysisRepo().Get(context.Background(), "user-1", "a-1")
	require.NoError(t, err)
	assert.Equal(t, analysis.RiskHigh, res.OverallRisk)
	assert.InDelta(t, 0.82, res.Scores.Get(analysis.Nodule), 1e-9)
	assert.InDelta(t, 0.72, res.Scores.Get(analysis.PleuralThickening), 1e-9)
	assert.Equal(t, 0.0, res.Scores.Get(analysis.Mass))
}

func TestAnalysisRepositoryGetByImageMissing(t *testing.T) {
	mock, _, analysisRepo := newMock(t)
	mock.ExpectQuery("FROM analysis_results").
		WithArgs("user-1", "img-1").
		WillReturnRows(sqlmock.NewRows(resultCols))

	res, err := analysisRepo().GetByImage(context.Background(), "user-1", "img-1")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestAnalysisRepositoryPaginate(t *testing.T) {
	mock, _, analysisRepo := newMock(t)
	now := time.Now()

	mock.ExpectQuery("FROM analysis_results").
		WithArgs("user-1", 2, 2).
		WillReturnRows(sqlmock.NewRows(resultCols).
			AddRow("a-3", "img-3", "user-1", "low", "", "", "completed", 1, now).
			AddRow("a-4", "img-4", "user-1", "medium", "", "", "completed", 1, now))
	mock.ExpectQuery("FROM analysis_scores").
		WithArgs("a-3", "a-4").
		WillReturnRows(sqlmock.NewRows([]string{"analysis_id", "condition_key", "score"}).
			AddRow("a-4", "edema", 0.4))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	page, err := analysisRepo().Paginate(context.Background(), "user-1", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Data, 2)
	assert.InDelta(t, 0.4, page.Data[1].Scores.Get(analysis.Edema), 1e-9)
	assert.Empty(t, page.Data[0].Scores)
}

func TestAnalysisRepositorySummary(t *testing.T) {
	mock, _, analysisRepo := newMock(t)
	mock.ExpectQuery("FROM analysis_results").
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"total_analyses", "high", "medium", "low"}).AddRow(6, 1, 2, 3))

	s, err := analysisRepo().Summary(context.Background(), "user-1", 30)
	require.NoError(t, err)
	assert.Equal(t, analysis.RiskSummary{Total: 6, High: 1, Medium: 2, Low: 3}, s)
}

func TestPipelineErrorRepositorySaveWrapsInvalidDetails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO pipeline_errors").
		WithArgs("user-1", "img-1", "validating", "transient", "boom", `{"raw":"not json"}`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewPipelineErrorRepository(db).Save(context.Background(), &pipelineerrors.PipelineError{
		UserID: "user-1", ImageID: "img-1", Phase: "validating", Kind: "transient", Message: "boom", DetailsJSON: "not json",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsultationRepositoryGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM consultations").
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewConsultationRepository(db).Get(context.Background(), "c-1")
	assert.ErrorIs(t, err, consultations.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsultationRepositoryListMessages(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("FROM consultation_messages").
		WithArgs("c-1", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "consultation_id", "sender_id", "message", "created_at"}).
			AddRow("m-1", "c-1", "doc", "first", now).
			AddRow("m-2", "c-1", "specialist-1", "second", now.Add(time.Second)))

	msgs, err := NewConsultationRepository(db).ListMessages(context.Background(), "c-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Body)
	assert.NoError(t, mock.ExpectationsWereMet())
}
