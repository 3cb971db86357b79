package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appanalysis "github.com/bryanwahyu/mediscan/internal/application/analysis"
	appconsult "github.com/bryanwahyu/mediscan/internal/application/consultations"
	"github.com/bryanwahyu/mediscan/internal/application/retry"
	"github.com/bryanwahyu/mediscan/internal/domain/ai"
	domain "github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/consultations"
	"github.com/bryanwahyu/mediscan/internal/domain/images"
	"github.com/bryanwahyu/mediscan/internal/infra/messaging"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 256)...)

type memImages struct {
	mu   sync.Mutex
	rows map[images.ImageID]*images.Image
}

func (m *memImages) Save(_ context.Context, img *images.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *img
	m.rows[img.ID] = &cp
	return nil
}

func (m *memImages) Get(_ context.Context, userID string, id images.ImageID) (*images.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.rows[id]
	if !ok || img.UserID != userID {
		return nil, images.ErrNotFound
	}
	cp := *img
	return &cp, nil
}

func (m *memImages) Delete(_ context.Context, userID string, id images.ImageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memImages) Latest(_ context.Context, userID string, limit int) ([]*images.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*images.Image
	for _, img := range m.rows {
		if img.UserID == userID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memImages) Cursor(ctx context.Context, userID string, _ time.Time, _ string, pageSize int) ([]*images.Image, error) {
	return m.Latest(ctx, userID, pageSize)
}

type memAnalyses struct {
	mu   sync.Mutex
	rows []*domain.Result
}

func (m *memAnalyses) Save(_ context.Context, r *domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

func (m *memAnalyses) Get(_ context.Context, userID string, id domain.ResultID) (*domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id && r.UserID == userID {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAnalyses) GetByImage(_ context.Context, userID, imageID string) (*domain.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ImageID == imageID && r.UserID == userID {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memAnalyses) Paginate(_ context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var mine []*domain.Result
	for _, r := range m.rows {
		if r.UserID == userID {
			mine = append(mine, r)
		}
	}
	return domain.PaginatedResult{Data: mine, Page: page, PageSize: pageSize, Total: int64(len(mine)), TotalPages: 1}, nil
}

func (m *memAnalyses) Summary(_ context.Context, userID string, _ int) (domain.RiskSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s domain.RiskSummary
	for _, r := range m.rows {
		if r.UserID != userID {
			continue
		}
		s.Total++
		switch r.OverallRisk {
		case domain.RiskHigh:
			s.High++
		case domain.RiskMedium:
			s.Medium++
		default:
			s.Low++
		}
	}
	return s, nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string]int
	rmErr   error
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, _ := io.ReadAll(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = len(b)
	return nil
}

func (m *memStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rmErr != nil {
		return m.rmErr
	}
	delete(m.objects, key)
	return nil
}

func (m *memStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blob.test/" + key, nil
}

type stubAI struct {
	verdict     ai.Validation
	validateErr error
	// failures returned by the first Validate calls, in order
	flaky  []error
	report *domain.Report
}

func (s *stubAI) Validate(context.Context, string) (ai.Validation, error) {
	if len(s.flaky) > 0 {
		err := s.flaky[0]
		s.flaky = s.flaky[1:]
		return ai.Validation{}, err
	}
	return s.verdict, s.validateErr
}

func (s *stubAI) Analyze(context.Context, string) (*domain.Report, error) {
	return s.report, nil
}

type memConsults struct {
	mu       sync.Mutex
	rows     map[consultations.ID]*consultations.Consultation
	messages []*consultations.Message
}

func (m *memConsults) Save(_ context.Context, c *consultations.Consultation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[c.ID] = c
	return nil
}

func (m *memConsults) Get(_ context.Context, id consultations.ID) (*consultations.Consultation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, consultations.ErrNotFound
	}
	return c, nil
}

func (m *memConsults) SaveMessage(_ context.Context, msg *consultations.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memConsults) ListMessages(_ context.Context, id consultations.ID, _ int) ([]*consultations.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*consultations.Message
	for _, msg := range m.messages {
		if msg.ConsultationID == id {
			out = append(out, msg)
		}
	}
	return out, nil
}

type fixture struct {
	handler  http.Handler
	images   *memImages
	analyses *memAnalyses
	store    *memStore
	ai       *stubAI
	svc      *appanalysis.Service
}

func newFixture(t *testing.T, maxUpload int64) *fixture {
	t.Helper()
	log, _ := test.NewNullLogger()

	f := &fixture{
		images:   &memImages{rows: map[images.ImageID]*images.Image{}},
		analyses: &memAnalyses{},
		store:    &memStore{objects: map[string]int{}},
		ai: &stubAI{
			verdict: ai.Validation{Valid: true, Raw: "YES"},
			report: &domain.Report{
				Findings: []domain.Finding{
					{Condition: "Nodule", Confidence: 82, Location: "right upper lobe"},
					{Condition: "Effusion", Confidence: 12},
				},
				OverallRisk:    "high",
				Recommendation: "CT follow-up",
				Summary:        "Solitary nodule",
			},
		},
	}

	svc := &appanalysis.Service{
		Images:       f.images,
		Analyses:     f.analyses,
		Store:        f.store,
		AI:           f.ai,
		Log:          log,
		SignedURLTTL: time.Hour,
		MaxBytes:     maxUpload,
	}
	f.svc = svc
	consult := &appconsult.Service{
		Repo:   &memConsults{rows: map[consultations.ID]*consultations.Consultation{}},
		Broker: messaging.NewLocalBroker(),
		CheckAnalysis: func(ctx context.Context, userID, analysisID string) error {
			_, err := svc.GetAnalysis(ctx, userID, domain.ResultID(analysisID))
			return err
		},
		Clock: fixedNow{},
		Log:   log,
	}

	f.handler = NewRouter(Options{
		Analysis:       svc,
		Consultations:  consult,
		Log:            log,
		APIKeys:        map[string]string{"dr-ana": "key-ana", "dr-bo": "key-bo", "dr-cy": "key-cy"},
		MaxUploadBytes: maxUpload,
	})
	return f
}

type fixedNow struct{}

func (fixedNow) Now() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }

func uploadRequest(t *testing.T, key string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "chest.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+key)
	return req
}

func do(t *testing.T, h http.Handler, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type errorEnvelope struct {
	Error appanalysis.Failure `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) appanalysis.Failure {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error
}

func uploadOK(t *testing.T, f *fixture) map[string]any {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, uploadRequest(t, "key-ana", pngBytes))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestUploadRunsPipeline(t *testing.T) {
	f := newFixture(t, 0)
	out := uploadOK(t, f)

	result := out["analysis"].(map[string]any)
	assert.Equal(t, 0.82, result["nodule_score"])
	assert.Equal(t, 0.12, result["effusion_score"])
	assert.Equal(t, 0.0, result["hernia_score"])
	assert.Equal(t, "high", result["overall_risk"])

	findings := out["findings"].([]any)
	require.NotEmpty(t, findings)
	assert.Equal(t, "Nodule", findings[0].(map[string]any)["condition"])

	assert.Len(t, f.store.objects, 1)
	assert.Len(t, f.images.rows, 1)
}

func TestUploadRejectedRollsBack(t *testing.T) {
	f := newFixture(t, 0)
	f.ai.verdict = ai.Validation{Valid: false, Reason: "This is a knee radiograph."}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, uploadRequest(t, "key-ana", pngBytes))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	failure := decodeError(t, rec)
	assert.Equal(t, appanalysis.KindRejected, failure.Kind)
	assert.Equal(t, "This is a knee radiograph.", failure.Message)
	assert.Empty(t, f.store.objects)
	assert.Empty(t, f.images.rows)
	assert.Empty(t, f.analyses.rows)
}

func TestUploadRejectedWithFailedCleanupKeepsReason(t *testing.T) {
	f := newFixture(t, 0)
	f.ai.verdict = ai.Validation{Valid: false, Reason: "This appears to be a knee X-ray"}
	f.store.rmErr = errors.New("network unreachable")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, uploadRequest(t, "key-ana", pngBytes))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	failure := decodeError(t, rec)
	assert.Equal(t, appanalysis.KindStorage, failure.Kind)
	assert.Equal(t, "Invalid Image", failure.Title)
	assert.Contains(t, failure.Message, "This appears to be a knee X-ray")
	assert.Contains(t, failure.Message, "Please contact support.")
	assert.NotContains(t, rec.Body.String(), "network unreachable")
}

func TestUploadReportsRetries(t *testing.T) {
	f := newFixture(t, 0)
	f.svc.Policies.AI = retry.Policy{MaxAttempts: 3}
	f.ai.flaky = []error{ai.FromStatus(http.StatusServiceUnavailable, ""), ai.FromStatus(http.StatusServiceUnavailable, "")}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, uploadRequest(t, "key-ana", pngBytes))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get("X-Retry-Attempts"))

	var out struct {
		Notices []appanalysis.Notice `json:"notices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Notices, 2)
	assert.Equal(t, 2, out.Notices[0].Attempt)
	assert.Equal(t, 3, out.Notices[1].MaxAttempts)
	assert.Equal(t, appanalysis.PhaseValidating, out.Notices[0].Phase)

	// a clean run carries neither
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, uploadRequest(t, "key-ana", pngBytes))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Retry-Attempts"))
	assert.NotContains(t, rec.Body.String(), `"notices"`)
}

func TestRetryCountSurvivesFailure(t *testing.T) {
	f := newFixture(t, 0)
	f.svc.Policies.AI = retry.Policy{MaxAttempts: 2}
	f.ai.validateErr = ai.FromStatus(http.StatusTooManyRequests, "")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, uploadRequest(t, "key-ana", pngBytes))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Retry-Attempts"))
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t, 1024)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, uploadRequest(t, "key-ana", []byte("%PDF-1.7 not an image")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid File Type", decodeError(t, rec).Title)

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, uploadRequest(t, "key-ana", append(pngBytes, bytes.Repeat([]byte{1}, 2048)...)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "File Too Large", decodeError(t, rec).Title)

	assert.Empty(t, f.store.objects)
}

func TestQuotaExceededIsServiceUnavailable(t *testing.T) {
	f := newFixture(t, 0)
	f.ai.validateErr = ai.FromStatus(http.StatusPaymentRequired, `{"error":"insufficient credits"}`)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, uploadRequest(t, "key-ana", pngBytes))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	failure := decodeError(t, rec)
	assert.Equal(t, appanalysis.KindQuotaExceeded, failure.Kind)
	assert.Equal(t, "AI service temporarily unavailable. Please contact support.", failure.Message)
	assert.NotContains(t, rec.Body.String(), "insufficient credits")
	// image stays pending, no rollback
	assert.Len(t, f.images.rows, 1)
}

func TestRequiresAPIKey(t *testing.T) {
	f := newFixture(t, 0)
	rec := do(t, f.handler, http.MethodGet, "/v1/analyses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, f.handler, http.MethodGet, "/livez", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalysisReads(t *testing.T) {
	f := newFixture(t, 0)
	out := uploadOK(t, f)
	id := out["analysis"].(map[string]any)["id"].(string)
	imageID := out["image"].(map[string]any)["id"].(string)

	rec := do(t, f.handler, http.MethodGet, "/v1/analyses/"+id, "key-ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"nodule_score":0.82`)

	// other users cannot see it
	rec = do(t, f.handler, http.MethodGet, "/v1/analyses/"+id, "key-bo", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, appanalysis.KindNotFound, decodeError(t, rec).Kind)

	rec = do(t, f.handler, http.MethodGet, "/v1/analyses/not-a-uuid", "key-ana", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid analysis ID format", decodeError(t, rec).Message)

	rec = do(t, f.handler, http.MethodGet, "/v1/analyses/"+id+"/findings", "key-ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed struct {
		Findings []domain.DisplayFinding `json:"findings"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	require.Len(t, feed.Findings, 2)
	assert.Equal(t, domain.Nodule, feed.Findings[0].Condition)

	rec = do(t, f.handler, http.MethodGet, "/v1/summary?days=7", "key-ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"high":1`)

	rec = do(t, f.handler, http.MethodGet, "/v1/analyses?page=1&page_size=10", "key-ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalItems":1`)

	rec = do(t, f.handler, http.MethodGet, "/v1/images", "key-ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, f.handler, http.MethodGet, "/v1/images/"+imageID+"/url", "key-ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://blob.test/dr-ana/")

	// re-trigger returns the stored result
	rec = do(t, f.handler, http.MethodPost, "/v1/images/"+imageID+"/analyze", "key-ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)
	assert.Len(t, f.analyses.rows, 1)
}

func TestExportXLSX(t *testing.T) {
	f := newFixture(t, 0)
	uploadOK(t, f)

	rec := do(t, f.handler, http.MethodGet, "/v1/reports/analyses.xlsx", "key-ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	// xlsx is a zip archive
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func openConsultation(t *testing.T, f *fixture) string {
	t.Helper()
	out := uploadOK(t, f)
	analysisID := out["analysis"].(map[string]any)["id"].(string)

	rec := do(t, f.handler, http.MethodPost, "/v1/consultations", "key-ana", map[string]string{
		"analysis_id":   analysisID,
		"specialist_id": "dr-bo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c consultations.Consultation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	return string(c.ID)
}

func TestConsultationMessages(t *testing.T) {
	f := newFixture(t, 0)
	id := openConsultation(t, f)

	rec := do(t, f.handler, http.MethodPost, "/v1/consultations/"+id+"/messages", "key-bo", map[string]string{"message": "  Agree, CT advised.  "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, f.handler, http.MethodGet, "/v1/consultations/"+id+"/messages", "key-ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"Agree, CT advised."`)

	rec = do(t, f.handler, http.MethodGet, "/v1/consultations/"+id, "key-cy", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, f.handler, http.MethodPost, "/v1/consultations/"+id+"/messages", "key-ana", map[string]string{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "message is empty", decodeError(t, rec).Message)
}

func TestConsultationOpenValidation(t *testing.T) {
	f := newFixture(t, 0)

	rec := do(t, f.handler, http.MethodPost, "/v1/consultations", "key-ana", map[string]string{
		"analysis_id":   "6f1c2a52-7a3e-4d55-9a35-0f6a8a4f1c11",
		"specialist_id": "dr-bo",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, f.handler, http.MethodPost, "/v1/consultations", "key-ana", map[string]string{
		"analysis_id":   "6f1c2a52-7a3e-4d55-9a35-0f6a8a4f1c11",
		"specialist_id": "",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsultationStream(t *testing.T) {
	f := newFixture(t, 0)
	id := openConsultation(t, f)

	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/consultations/" + id + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer key-ana"}})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	rec := do(t, f.handler, http.MethodPost, "/v1/consultations/"+id+"/messages", "key-bo", map[string]string{"message": "Looks benign"})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got consultations.Message
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "Looks benign", got.Body)
	assert.Equal(t, "dr-bo", got.SenderID)

	// non participants are refused before the upgrade
	_, resp, err = websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer key-cy"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLogsFailuresWithoutLeakingThem(t *testing.T) {
	log, hook := test.NewNullLogger()
	r := &Router{log: log}

	rec := httptest.NewRecorder()
	r.wrap(func(http.ResponseWriter, *http.Request) error {
		return fmt.Errorf("dial tcp 10.0.0.5:3306: connection refused")
	})(rec, httptest.NewRequest(http.MethodGet, "/v1/analyses", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.Equal(t, appanalysis.KindTransient, decodeError(t, rec).Kind)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}
