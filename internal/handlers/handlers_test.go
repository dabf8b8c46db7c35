package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/blurdetect/internal/analysis"
	"github.com/example/blurdetect/internal/blur"
	"github.com/example/blurdetect/internal/faults"
	"github.com/example/blurdetect/internal/jobs"
	"github.com/example/blurdetect/internal/usecase"
)

type stubService struct {
	result     *analysis.Result
	analyzeErr error
	gotPhotoID string
	gotUserID  string
	gotOpts    analysis.Options

	submission *usecase.BatchSubmission
	submitErr  error
	gotPhotos  []string

	view    *usecase.ResultView
	viewErr error

	job    *jobs.Record
	jobErr error

	tag    string
	tagErr error

	summary    *usecase.MetricsSummary
	summaryErr error
}

func (s *stubService) AnalyzeOne(ctx context.Context, photoID, userID string, opts analysis.Options) (*analysis.Result, error) {
	s.gotPhotoID, s.gotUserID, s.gotOpts = photoID, userID, opts
	if s.analyzeErr != nil {
		return nil, s.analyzeErr
	}
	return s.result, nil
}

func (s *stubService) SubmitBatch(ctx context.Context, userID string, photoIDs []string, opts analysis.Options) (*usecase.BatchSubmission, error) {
	s.gotUserID, s.gotPhotos, s.gotOpts = userID, photoIDs, opts
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return s.submission, nil
}

func (s *stubService) GetResult(ctx context.Context, photoID, userID string) (*usecase.ResultView, error) {
	if s.viewErr != nil {
		return nil, s.viewErr
	}
	return s.view, nil
}

func (s *stubService) GetJob(ctx context.Context, jobID, userID string) (*jobs.Record, error) {
	if s.jobErr != nil {
		return nil, s.jobErr
	}
	return s.job, nil
}

func (s *stubService) TagPhoto(ctx context.Context, photoID, userID string) (string, error) {
	if s.tagErr != nil {
		return "", s.tagErr
	}
	return s.tag, nil
}

func (s *stubService) GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error) {
	if s.summaryErr != nil {
		return nil, s.summaryErr
	}
	return s.summary, nil
}

func newTestRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, svc)
	return router
}

func doRequest(router *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response not JSON: %v (body: %s)", err, resp.Body.String())
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&stubService{})

	resp := doRequest(router, http.MethodGet, "/health", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	payload := decodeBody(t, resp)
	if payload["status"] != "healthy" || payload["service"] != "blur-detection-service" {
		t.Errorf("payload = %v", payload)
	}
}

func TestAnalyzeUsesDefaultOptions(t *testing.T) {
	svc := &stubService{result: &analysis.Result{PhotoID: "p1", BlurScore: 0.8, IsBlurred: true, ProcessedAt: time.Now()}}
	router := newTestRouter(svc)

	resp := doRequest(router, http.MethodPost, "/analyze/p1?user_id=u1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}

	if svc.gotPhotoID != "p1" || svc.gotUserID != "u1" {
		t.Errorf("service got (%s, %s)", svc.gotPhotoID, svc.gotUserID)
	}
	if svc.gotOpts.Threshold != analysis.DefaultThreshold || svc.gotOpts.Method != blur.MethodHybrid || !svc.gotOpts.UseFaceDetection {
		t.Errorf("options = %+v, want defaults", svc.gotOpts)
	}

	payload := decodeBody(t, resp)
	if payload["blur_score"].(float64) != 0.8 {
		t.Errorf("blur_score = %v", payload["blur_score"])
	}
	if payload["quality"] != "Very blurry" {
		t.Errorf("quality = %v", payload["quality"])
	}
}

func TestAnalyzeMergesRequestOptions(t *testing.T) {
	svc := &stubService{result: &analysis.Result{PhotoID: "p1"}}
	router := newTestRouter(svc)

	body := `{"threshold": 0.5, "method": "fft", "use_face_detection": false}`
	resp := doRequest(router, http.MethodPost, "/analyze/p1?user_id=u1", body)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}
	if svc.gotOpts.Threshold != 0.5 || svc.gotOpts.Method != blur.MethodFFT || svc.gotOpts.UseFaceDetection {
		t.Errorf("options = %+v", svc.gotOpts)
	}
}

func TestAnalyzeRequiresUserID(t *testing.T) {
	router := newTestRouter(&stubService{})

	resp := doRequest(router, http.MethodPost, "/analyze/p1", "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestAnalyzeRejectsOutOfRangeThreshold(t *testing.T) {
	router := newTestRouter(&stubService{})

	resp := doRequest(router, http.MethodPost, "/analyze/p1?user_id=u1", `{"threshold": 1.5}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestAnalyzeErrorMapping(t *testing.T) {
	cases := []struct {
		kind faults.Kind
		want int
	}{
		{faults.KindNotFound, http.StatusNotFound},
		{faults.KindAccessExpired, http.StatusForbidden},
		{faults.KindInvalidContent, http.StatusUnprocessableEntity},
		{faults.KindTimeout, http.StatusGatewayTimeout},
		{faults.KindNetworkUnavailable, http.StatusServiceUnavailable},
		{faults.KindUpstream, http.StatusBadGateway},
		{faults.KindScoring, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			svc := &stubService{analyzeErr: faults.Errorf(tc.kind, "analysis.analyze_photo", "boom")}
			router := newTestRouter(svc)

			resp := doRequest(router, http.MethodPost, "/analyze/p1?user_id=u1", "")
			if resp.Code != tc.want {
				t.Fatalf("status = %d, want %d", resp.Code, tc.want)
			}
			payload := decodeBody(t, resp)
			if payload["error"] != string(tc.kind) {
				t.Errorf("error label = %v", payload["error"])
			}
		})
	}
}

func TestAnalyzeUnclassifiedErrorIs500(t *testing.T) {
	svc := &stubService{analyzeErr: errors.New("wat")}
	router := newTestRouter(svc)

	resp := doRequest(router, http.MethodPost, "/analyze/p1?user_id=u1", "")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.Code)
	}
	payload := decodeBody(t, resp)
	if payload["error"] != "internal_error" {
		t.Errorf("error label = %v", payload["error"])
	}
}

func TestBatchSubmission(t *testing.T) {
	svc := &stubService{submission: &usecase.BatchSubmission{
		QueuedCount: 2,
		Jobs: []usecase.BatchItem{
			{JobID: "j1", PhotoID: "p1", Status: "queued"},
			{JobID: "j2", PhotoID: "p2", Status: "queued"},
		},
	}}
	router := newTestRouter(svc)

	body := `{"user_id": "u1", "photo_ids": ["p1", "p2"], "threshold": 0.4}`
	resp := doRequest(router, http.MethodPost, "/analyze/batch", body)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", resp.Code, resp.Body.String())
	}

	if len(svc.gotPhotos) != 2 || svc.gotUserID != "u1" {
		t.Errorf("service got photos=%v user=%s", svc.gotPhotos, svc.gotUserID)
	}
	if svc.gotOpts.Threshold != 0.4 {
		t.Errorf("threshold = %f", svc.gotOpts.Threshold)
	}

	payload := decodeBody(t, resp)
	if payload["status"] != "queued" {
		t.Errorf("status field = %v", payload["status"])
	}
	if payload["queued_count"].(float64) != 2 {
		t.Errorf("queued_count = %v", payload["queued_count"])
	}
	if jobsList := payload["jobs"].([]interface{}); len(jobsList) != 2 {
		t.Errorf("jobs = %v", jobsList)
	}
}

func TestBatchRequiresPhotoIDs(t *testing.T) {
	router := newTestRouter(&stubService{})

	resp := doRequest(router, http.MethodPost, "/analyze/batch", `{"user_id": "u1", "photo_ids": []}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestResultNotAnalyzedRendersNull(t *testing.T) {
	svc := &stubService{viewErr: usecase.ErrNotAnalyzed}
	router := newTestRouter(svc)

	resp := doRequest(router, http.MethodGet, "/photos/p1/result?user_id=u1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	if strings.TrimSpace(resp.Body.String()) != "null" {
		t.Errorf("body = %q, want null", resp.Body.String())
	}
}

func TestResultReturnsView(t *testing.T) {
	svc := &stubService{view: &usecase.ResultView{
		PhotoID:   "p1",
		BlurScore: 0.15,
		Quality:   "Very sharp",
	}}
	router := newTestRouter(svc)

	resp := doRequest(router, http.MethodGet, "/photos/p1/result?user_id=u1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	payload := decodeBody(t, resp)
	if payload["photo_id"] != "p1" || payload["quality"] != "Very sharp" {
		t.Errorf("payload = %v", payload)
	}
}

func TestJobStatusEndpoint(t *testing.T) {
	svc := &stubService{job: &jobs.Record{ID: "j1", PhotoID: "p1", UserID: "u1", Status: jobs.StatusCompleted}}
	router := newTestRouter(svc)

	resp := doRequest(router, http.MethodGet, "/jobs/j1?user_id=u1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	payload := decodeBody(t, resp)
	if payload["status"] != "completed" {
		t.Errorf("payload = %v", payload)
	}
}

func TestJobNotFound(t *testing.T) {
	svc := &stubService{jobErr: faults.Errorf(faults.KindNotFound, "jobs.get", "job j9 not found")}
	router := newTestRouter(svc)

	resp := doRequest(router, http.MethodGet, "/jobs/j9?user_id=u1", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestTagPhotoDisabled(t *testing.T) {
	svc := &stubService{tagErr: usecase.ErrTaggingDisabled}
	router := newTestRouter(svc)

	resp := doRequest(router, http.MethodPost, "/photos/p1/tag?user_id=u1", "")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.Code)
	}
}

func TestTagPhoto(t *testing.T) {
	svc := &stubService{tag: "dog"}
	router := newTestRouter(svc)

	resp := doRequest(router, http.MethodPost, "/photos/p1/tag?user_id=u1", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	payload := decodeBody(t, resp)
	if payload["tag"] != "dog" {
		t.Errorf("payload = %v", payload)
	}
}

func TestMetricsSummaryEndpoint(t *testing.T) {
	svc := &stubService{summary: &usecase.MetricsSummary{
		TotalPhotos:    10,
		AnalyzedPhotos: 5,
		AnalyzedRate:   0.5,
	}}
	router := newTestRouter(svc)

	resp := doRequest(router, http.MethodGet, "/metrics/summary", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d", resp.Code)
	}
	payload := decodeBody(t, resp)
	if payload["total_photos"].(float64) != 10 {
		t.Errorf("payload = %v", payload)
	}
	if payload["analyzed_rate"].(float64) != 0.5 {
		t.Errorf("payload = %v", payload)
	}
}
