package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"

	"asyncops/internal/config"
	apierrors "asyncops/internal/errors"
	"asyncops/internal/exporter"
	"asyncops/internal/middleware"
	"asyncops/internal/operations"
	"asyncops/internal/services"
	"asyncops/internal/shared/testutil"
	"asyncops/pkg/contracts"
	api "asyncops/pkg/contracts/api/v1"
	"asyncops/pkg/contracts/events"
)

type HandlerSuite struct {
	suite.Suite

	manager  *operations.Manager
	history  *exporter.History
	batches  *services.BatchService
	router   chi.Router
	upstream *httptest.Server
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger, _ := testutil.NewCaptureLogger()
	cfg := config.Default().Orchestrator
	cfg.DefaultTimeout = 2 * time.Minute
	cfg.MinPollInterval = 5 * time.Millisecond
	cfg.MaxBatchItems = 10

	s.manager = operations.NewManager(operations.WithLogger(logger), operations.WithGracePeriod(time.Minute))
	s.history = exporter.NewHistory(100)
	s.history.Attach(s.manager.Events())

	s.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"completed": true, "message": "upstream done"}`))
	}))

	opSvc := services.NewOperationService(s.manager, cfg, s.upstream.Client(), logger)
	s.batches = services.NewBatchService(s.manager, cfg, s.upstream.Client(), logger)
	validator := middleware.NewValidator(logger)
	errs := apierrors.NewErrorHandler(logger, false)

	health := NewHealthHandler(contracts.GetVersionInfo(), opSvc, nil)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", health.HealthCheck)
		r.Get("/version", health.Version)
		r.Mount("/operations", NewOperationsHandler(opSvc, validator, errs, logger).Routes())
		r.Mount("/batches", NewBatchHandler(s.batches, validator, errs, logger).Routes())
		r.Mount("/history", NewHistoryHandler(s.history, errs, logger).Routes())
	})
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.batches.Close()
	s.history.Stop()
	s.manager.ClearAll(context.Background())
	s.upstream.Close()
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) decode(w *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (s *HandlerSuite) problem(w *httptest.ResponseRecorder, status int, problemType string) map[string]any {
	s.Require().Equal(status, w.Code, w.Body.String())
	var body map[string]any
	s.decode(w, &body)
	s.Equal(problemType, body["type"])
	s.NotEmpty(body["request_id"])
	return body
}

func (s *HandlerSuite) register(id string) events.OperationSnapshot {
	w := s.do(http.MethodPost, "/api/operations", api.RegisterRequest{ID: id})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var snap events.OperationSnapshot
	s.decode(w, &snap)
	return snap
}

func (s *HandlerSuite) TestRegisterAndGet() {
	w := s.do(http.MethodPost, "/api/operations", map[string]any{
		"id":          "job-1",
		"description": "Import customers",
		"metadata":    map[string]string{"source": "crm"},
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Equal("/api/operations/job-1", w.Header().Get("Location"))

	var created events.OperationSnapshot
	s.decode(w, &created)
	s.Equal("job-1", created.ID)
	s.Equal("pending", created.Status)
	s.Equal(int64(120000), created.Config.TimeoutMS)
	s.True(created.Config.ShowNotifications)
	s.Equal("crm", created.Config.Metadata["source"])

	w = s.do(http.MethodGet, "/api/operations/job-1", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var got events.OperationSnapshot
	s.decode(w, &got)
	s.Equal("Import customers", got.Description)
}

func (s *HandlerSuite) TestRegisterWithoutBodyGeneratesID() {
	w := s.do(http.MethodPost, "/api/operations", nil)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var snap events.OperationSnapshot
	s.decode(w, &snap)
	s.NotEmpty(snap.ID)
}

func (s *HandlerSuite) TestRegisterValidation() {
	body := s.problem(s.do(http.MethodPost, "/api/operations", map[string]any{"id": "bad id!"}),
		http.StatusBadRequest, apierrors.TypeValidation)
	s.Equal("VALIDATION_FAILED", body["error_code"])

	body = s.problem(s.do(http.MethodPost, "/api/operations", `{"mode": "full"}`),
		http.StatusBadRequest, apierrors.TypeValidation)
	s.Equal("INVALID_JSON", body["error_code"])
}

func (s *HandlerSuite) TestGetUnknownOperation() {
	w := s.do(http.MethodGet, "/api/operations/ghost", nil)
	body := s.problem(w, http.StatusNotFound, apierrors.TypeOperationNotFound)
	s.Equal("operation ghost not found", body["detail"])
	s.Contains(w.Header().Get("Content-Type"), "application/json")
}

func (s *HandlerSuite) TestUpdateThenComplete() {
	s.register("job")

	w := s.do(http.MethodPatch, "/api/operations/job", map[string]any{
		"status": "running", "progress": 40, "fields": map[string]any{"rows": 400},
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var snap events.OperationSnapshot
	s.decode(w, &snap)
	s.Equal("running", snap.Status)
	s.Equal(40, snap.Progress)
	s.EqualValues(400, snap.Fields["rows"])

	w = s.do(http.MethodPost, "/api/operations/job/complete", map[string]any{"message": "imported"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(w, &snap)
	s.Equal("completed", snap.Status)
	s.Equal(100, snap.Progress)
	s.Require().NotNil(snap.Result)
	s.Equal("imported", snap.Result.Message)
	s.NotNil(snap.DurationMS)

	body := s.problem(s.do(http.MethodPost, "/api/operations/job/complete", nil),
		http.StatusConflict, apierrors.TypeOperationFinished)
	s.Equal("operation job already completed", body["detail"])
}

func (s *HandlerSuite) TestUpdateRejectsUnknownStatus() {
	s.register("job")
	s.problem(s.do(http.MethodPatch, "/api/operations/job", map[string]any{"status": "paused"}),
		http.StatusBadRequest, apierrors.TypeValidation)
}

func (s *HandlerSuite) TestFailAndCancel() {
	s.register("a")
	s.register("b")

	w := s.do(http.MethodPost, "/api/operations/a/fail", map[string]any{"error": "disk full"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var snap events.OperationSnapshot
	s.decode(w, &snap)
	s.Equal("failed", snap.Status)
	s.Equal("disk full", snap.Result.Error)

	s.problem(s.do(http.MethodPost, "/api/operations/b/fail", map[string]any{}),
		http.StatusBadRequest, apierrors.TypeValidation)

	w = s.do(http.MethodPost, "/api/operations/b/cancel", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &snap)
	s.Equal("cancelled", snap.Status)
}

func (s *HandlerSuite) TestListWithStatusFilter() {
	s.register("one")
	s.register("two")
	s.do(http.MethodPatch, "/api/operations/two", map[string]any{"status": "running"})

	w := s.do(http.MethodGet, "/api/operations", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var list api.OperationList
	s.decode(w, &list)
	s.Equal(2, list.Count)

	w = s.do(http.MethodGet, "/api/operations?status=running", nil)
	s.decode(w, &list)
	s.Require().Equal(1, list.Count)
	s.Equal("two", list.Operations[0].ID)

	s.problem(s.do(http.MethodGet, "/api/operations?status=paused", nil), http.StatusBadRequest, apierrors.TypeValidation)
}

func (s *HandlerSuite) TestClear() {
	s.register("x")
	s.register("y")

	w := s.do(http.MethodDelete, "/api/operations", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var resp api.ClearResponse
	s.decode(w, &resp)
	s.Equal(2, resp.Cleared)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/api/operations/x", nil).Code)
}

func (s *HandlerSuite) TestRemotePolling() {
	s.register("remote")

	w := s.do(http.MethodPost, "/api/operations/remote/poll", api.PollRequest{URL: s.upstream.URL, IntervalMS: 10})
	s.Require().Equal(http.StatusAccepted, w.Code, w.Body.String())

	s.Eventually(func() bool {
		op, ok := s.manager.Get("remote")
		return ok && op.Status == operations.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	s.problem(s.do(http.MethodPost, "/api/operations/remote/poll", api.PollRequest{URL: s.upstream.URL}),
		http.StatusConflict, apierrors.TypeOperationFinished)
	s.problem(s.do(http.MethodPost, "/api/operations/remote/poll", map[string]any{"url": "not a url"}),
		http.StatusBadRequest, apierrors.TypeValidation)
	s.problem(s.do(http.MethodDelete, "/api/operations/ghost/poll", nil),
		http.StatusNotFound, apierrors.TypeOperationNotFound)
}

func (s *HandlerSuite) TestStopPolling() {
	s.register("p")
	w := s.do(http.MethodDelete, "/api/operations/p/poll", nil)
	s.Equal(http.StatusNoContent, w.Code)
}

func (s *HandlerSuite) TestBatchSubmission() {
	w := s.do(http.MethodPost, "/api/batches", api.BatchRequest{
		ID: "sync",
		Items: []api.BatchItem{
			{Method: http.MethodGet, URL: s.upstream.URL + "/a"},
			{Method: http.MethodPost, URL: s.upstream.URL + "/b", Body: json.RawMessage(`{"x":1}`)},
		},
	})
	s.Require().Equal(http.StatusAccepted, w.Code, w.Body.String())
	s.Equal("/api/operations/sync", w.Header().Get("Location"))
	var resp api.BatchResponse
	s.decode(w, &resp)
	s.Equal(api.BatchResponse{ID: "sync", Items: 2}, resp)

	s.Eventually(func() bool {
		op, ok := s.manager.Get("sync")
		return ok && op.Status == operations.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	s.problem(s.do(http.MethodPost, "/api/batches", map[string]any{"items": []any{}}),
		http.StatusBadRequest, apierrors.TypeValidation)
	s.problem(s.do(http.MethodPost, "/api/batches", map[string]any{
		"items": []map[string]string{{"method": "FETCH", "url": s.upstream.URL}},
	}), http.StatusBadRequest, apierrors.TypeValidation)
}

func (s *HandlerSuite) TestHistoryExport() {
	for i := range 3 {
		id := fmt.Sprintf("h-%d", i)
		s.register(id)
		s.do(http.MethodPost, "/api/operations/"+id+"/complete", nil)
	}

	w := s.do(http.MethodGet, "/api/history?limit=2", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var list api.OperationList
	s.decode(w, &list)
	s.Require().Equal(2, list.Count)
	s.Equal("h-1", list.Operations[0].ID)

	w = s.do(http.MethodGet, "/api/history?format=csv", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal("text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	s.Contains(w.Header().Get("Content-Disposition"), `attachment; filename="operations-`)
	rows, err := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(w.Body.Bytes(), []byte{0xEF, 0xBB, 0xBF}))).ReadAll()
	s.Require().NoError(err)
	s.Len(rows, 4)

	w = s.do(http.MethodGet, "/api/history?format=xlsx", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	f, err := excelize.OpenReader(w.Body)
	s.Require().NoError(err)
	defer f.Close()
	xrows, err := f.GetRows(exporter.SheetName)
	s.Require().NoError(err)
	s.Len(xrows, 4)

	s.problem(s.do(http.MethodGet, "/api/history?format=pdf", nil), http.StatusBadRequest, apierrors.TypeValidation)
}

func (s *HandlerSuite) TestHealthAndVersion() {
	s.register("active")

	w := s.do(http.MethodGet, "/api/health", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var health api.HealthResponse
	s.decode(w, &health)
	s.Equal("ok", health.Status)
	s.Equal(1, health.ActiveOperations)
	s.Equal(contracts.Version, health.Version)

	w = s.do(http.MethodGet, "/api/version", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var info contracts.VersionInfo
	s.decode(w, &info)
	s.Equal(contracts.APIVersion, info.APIVersion)
}
