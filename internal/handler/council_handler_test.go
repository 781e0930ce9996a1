package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-council-planner/internal/dto"
	"github.com/noah-isme/sma-council-planner/internal/models"
	"github.com/noah-isme/sma-council-planner/internal/service"
	"github.com/noah-isme/sma-council-planner/pkg/jobs"
	"github.com/noah-isme/sma-council-planner/pkg/storage"
)

const sampleRoster = "Docente;1A;2A;3A;4A;5A;1B;2B;3B;4B;5B;Note\n" +
	"Rossi;x;;;;;x;;;;;\n" +
	"Bianchi;;x;;;;;;;;;\n" +
	"Verdi;;;x;x;;;;x;;;\n"

type recordingQueue struct {
	jobs []jobs.Job
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type apiFixture struct {
	router  *gin.Engine
	queue   *recordingQueue
	jobs    *service.MemoryExportJobStore
	export  *service.ExportService
	tokens  *service.TokenService
	handler *CouncilHandler
}

type fixtureOptions struct {
	auth       bool
	pdfEnabled bool
	maxUpload  int64
	checks     map[string]ReadinessCheck
}

func newAPIFixture(t *testing.T, opts fixtureOptions) apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := service.NewMetricsService()
	plans := service.NewMemoryPlanRunStore(time.Hour)
	planner := service.NewCouncilPlannerService(plans, nil, metrics, nil, nil, service.CouncilPlannerConfig{})

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	exporter := service.NewExportService(plans, files, signer, metrics, service.ExportConfig{APIPrefix: "/api/v1", PDFEnabled: opts.pdfEnabled}, nil, nil, nil, nil)

	jobStore := service.NewMemoryExportJobStore()
	queue := &recordingQueue{}
	exportJobs := service.NewExportJobService(jobStore, plans, queue, exporter, nil, nil, service.ExportJobConfig{})

	var tokens *service.TokenService
	if opts.auth {
		tokens = service.NewTokenService(nil, nil, service.TokenConfig{Secret: "jwt-secret"})
	}

	council := NewCouncilHandler(planner, exporter, exportJobs, CouncilHandlerConfig{
		APIPrefix:      "/api/v1",
		Delimiter:      ";",
		MaxUploadBytes: opts.maxUpload,
	})
	r := gin.New()
	RegisterRoutes(r, "/api/v1", RouteDeps{
		Council: council,
		Metrics: NewMetricsHandler(metrics, opts.checks),
		Tokens:  tokens,
		Logger:  zap.NewNop(),
	})
	return apiFixture{router: r, queue: queue, jobs: jobStore, export: exporter, tokens: tokens, handler: council}
}

func (f apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func multipartRequest(t *testing.T, path, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	part, err := writer.CreateFormFile("file", "roster.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, path string, payload interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type planEnvelope struct {
	Data  dto.PlanResponse       `json:"data"`
	Meta  map[string]interface{} `json:"meta"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decodePlan(t *testing.T, w *httptest.ResponseRecorder) planEnvelope {
	t.Helper()
	var env planEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestUploadPlan(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{pdfEnabled: true})

	w := f.do(multipartRequest(t, "/api/v1/councils/plans", sampleRoster, map[string]string{"maxGroupSize": "4"}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env := decodePlan(t, w)
	plan := env.Data
	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, "roster.csv", plan.Source)
	assert.Equal(t, []string{"A", "B"}, plan.Result.CompleteLetters)
	assert.Equal(t, []string{"Note"}, plan.Result.IgnoredColumns)
	assert.Len(t, plan.Result.Tables, 2)
	assert.Equal(t, 0, plan.Result.InvalidRows)
	assert.Equal(t, "/api/v1/councils/plans/"+plan.ID+"/archive", plan.Links.Archive)
	assert.Equal(t, "/api/v1/councils/plans/"+plan.ID+"/document", plan.Links.Document)
	assert.Equal(t, false, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
}

func TestUploadPlanErrors(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{maxUpload: 64})

	w := f.do(multipartRequest(t, "/api/v1/councils/plans", sampleRoster, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")

	f = newAPIFixture(t, fixtureOptions{})
	w = f.do(multipartRequest(t, "/api/v1/councils/plans", "Teacher;1A\nRossi;x\n", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_COLUMN")

	w = f.do(multipartRequest(t, "/api/v1/councils/plans", "Docente;1A;2A\nRossi;x;x\n", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "NO_COMPLETE_LETTERS")

	w = f.do(multipartRequest(t, "/api/v1/councils/plans", sampleRoster, map[string]string{"maxGroupSize": "40"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(multipartRequest(t, "/api/v1/councils/plans", sampleRoster, map[string]string{"delimiter": "|"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordsPlanAndRead(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})

	records := []map[string]interface{}{}
	for _, letter := range []string{"A", "B", "C"} {
		for year := 1; year <= 5; year++ {
			class := string(rune('0'+year)) + letter
			records = append(records, map[string]interface{}{"Docente": "T-" + class, class: "x"})
		}
	}
	w := f.do(jsonRequest(t, http.MethodPost, "/api/v1/councils/plans/records", dto.PlanRecordsRequest{
		Source:       "sis-export",
		Records:      records,
		MaxGroupSize: 2,
	}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	plan := decodePlan(t, w).Data
	assert.Equal(t, "sis-export", plan.Source)
	assert.Equal(t, [][]string{{"A", "B"}, {"C"}}, toStrings(plan.Result.Groups))
	assert.Empty(t, plan.Links.Document)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/councils/plans/"+plan.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, plan.ID, decodePlan(t, w).Data.ID)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/councils/plans?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/councils/plans?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/councils/plans/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(jsonRequest(t, http.MethodPost, "/api/v1/councils/plans/records", dto.PlanRecordsRequest{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func toStrings(groups []models.Group) [][]string {
	out := make([][]string, 0, len(groups))
	for _, group := range groups {
		out = append(out, []string(group))
	}
	return out
}

func TestSynchronousDownloads(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	w := f.do(multipartRequest(t, "/api/v1/councils/plans", sampleRoster, nil))
	require.Equal(t, http.StatusCreated, w.Code)
	plan := decodePlan(t, w).Data

	w = f.do(httptest.NewRequest(http.MethodGet, plan.Links.Archive, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".zip")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/councils/plans/"+plan.ID+"/document", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentDownload(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{pdfEnabled: true})
	w := f.do(multipartRequest(t, "/api/v1/councils/plans", sampleRoster, nil))
	require.Equal(t, http.StatusCreated, w.Code)
	plan := decodePlan(t, w).Data

	w = f.do(httptest.NewRequest(http.MethodGet, plan.Links.Document, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestExportJobFlow(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{})
	w := f.do(multipartRequest(t, "/api/v1/councils/plans", sampleRoster, nil))
	require.Equal(t, http.StatusCreated, w.Code)
	plan := decodePlan(t, w).Data

	w = f.do(jsonRequest(t, http.MethodPost, plan.Links.Exports, dto.ExportRequest{Format: models.ExportFormatZIP}))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var accepted struct {
		Data dto.ExportJobResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.Equal(t, models.ExportStatusQueued, accepted.Data.Status)
	require.Len(t, f.queue.jobs, 1)

	worker := service.NewExportWorker(f.jobs, f.export, 3, nil)
	require.NoError(t, worker.Handle(context.Background(), f.queue.jobs[0]))

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/councils/exports/"+accepted.Data.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Data dto.ExportStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.ExportStatusFinished, status.Data.Status)
	require.NotNil(t, status.Data.ResultURL)

	w = f.do(httptest.NewRequest(http.MethodGet, *status.Data.ResultURL, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/export/forged.token", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(jsonRequest(t, http.MethodPost, plan.Links.Exports, map[string]string{"format": "docx"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(jsonRequest(t, http.MethodPost, "/api/v1/councils/plans/missing/exports", dto.ExportRequest{Format: models.ExportFormatZIP}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCouncilRoutesRequireServiceToken(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{auth: true})

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/councils/plans", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	viewer, err := f.tokens.Issue(dto.TokenRequest{Subject: "dashboard", Role: models.RoleViewer}, 0)
	require.NoError(t, err)
	admin, err := f.tokens.Issue(dto.TokenRequest{Subject: "office", Role: models.RoleAdmin}, 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/councils/plans", nil)
	req.Header.Set("Authorization", "Bearer "+viewer.Token)
	assert.Equal(t, http.StatusOK, f.do(req).Code)

	req = multipartRequest(t, "/api/v1/councils/plans", sampleRoster, nil)
	req.Header.Set("Authorization", "Bearer "+viewer.Token)
	assert.Equal(t, http.StatusForbidden, f.do(req).Code)

	req = multipartRequest(t, "/api/v1/councils/plans", sampleRoster, nil)
	req.Header.Set("Authorization", "Bearer "+admin.Token)
	assert.Equal(t, http.StatusCreated, f.do(req).Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthReadyAndMetrics(t *testing.T) {
	f := newAPIFixture(t, fixtureOptions{checks: map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}})

	w := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"ok"`)
	assert.Contains(t, w.Body.String(), "connection refused")

	f.do(multipartRequest(t, "/api/v1/councils/plans", sampleRoster, nil))
	w = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `council_plans_total{outcome="valid"} 1`))
}
