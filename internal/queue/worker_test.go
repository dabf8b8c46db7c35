package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/example/blurdetect/internal/analysis"
	"github.com/example/blurdetect/internal/faults"
	"github.com/example/blurdetect/internal/jobs"
)

type stubRunner struct {
	result  *analysis.Result
	err     error
	photoID string
	userID  string
	opts    analysis.Options
	calls   int
}

func (r *stubRunner) AnalyzeOne(ctx context.Context, photoID, userID string, opts analysis.Options) (*analysis.Result, error) {
	r.calls++
	r.photoID = photoID
	r.userID = userID
	r.opts = opts
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

type stubTracker struct {
	running   []string
	completed []string
	failed    []string
	lastCause error
	err       error
}

func (t *stubTracker) Create(ctx context.Context, rec *jobs.Record) error { return t.err }

func (t *stubTracker) MarkRunning(ctx context.Context, jobID string) error {
	t.running = append(t.running, jobID)
	return t.err
}

func (t *stubTracker) MarkCompleted(ctx context.Context, jobID string) error {
	t.completed = append(t.completed, jobID)
	return t.err
}

func (t *stubTracker) MarkFailed(ctx context.Context, jobID string, cause error) error {
	t.failed = append(t.failed, jobID)
	t.lastCause = cause
	return t.err
}

func (t *stubTracker) Get(ctx context.Context, jobID string) (*jobs.Record, error) {
	return nil, t.err
}

func analysisTask(t *testing.T, payload AnalysisTaskPayload) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(TypeAnalyzePhoto, body)
}

func TestProcessTaskSuccess(t *testing.T) {
	runner := &stubRunner{result: &analysis.Result{PhotoID: "photo-1", BlurScore: 0.7, IsBlurred: true}}
	tracker := &stubTracker{}
	handler := NewAnalysisHandler(runner, tracker, zap.NewNop())

	opts := analysis.DefaultOptions()
	opts.Threshold = 0.5
	task := analysisTask(t, AnalysisTaskPayload{JobID: "job-1", PhotoID: "photo-1", UserID: "user-1", Options: opts})

	if err := handler.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}

	if runner.photoID != "photo-1" || runner.userID != "user-1" {
		t.Errorf("runner got (%s, %s)", runner.photoID, runner.userID)
	}
	if runner.opts.Threshold != 0.5 {
		t.Errorf("options not passed through, threshold = %f", runner.opts.Threshold)
	}
	if len(tracker.running) != 1 || len(tracker.completed) != 1 || len(tracker.failed) != 0 {
		t.Errorf("tracker transitions: running=%v completed=%v failed=%v",
			tracker.running, tracker.completed, tracker.failed)
	}
}

func TestProcessTaskPermanentFailureSkipsRetry(t *testing.T) {
	cause := faults.New(faults.KindNotFound, "photos.get", errors.New("record not found"))
	runner := &stubRunner{err: cause}
	tracker := &stubTracker{}
	handler := NewAnalysisHandler(runner, tracker, zap.NewNop())

	task := analysisTask(t, AnalysisTaskPayload{JobID: "job-2", PhotoID: "photo-2", UserID: "user-1", Options: analysis.DefaultOptions()})
	err := handler.ProcessTask(context.Background(), task)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("permanent failure should skip retry, got %v", err)
	}
	if len(tracker.failed) != 1 {
		t.Fatalf("expected one failed transition, got %v", tracker.failed)
	}
	if !faults.IsKind(tracker.lastCause, faults.KindNotFound) {
		t.Errorf("tracker cause = %v", tracker.lastCause)
	}
}

func TestProcessTaskTransientFailureAllowsRetry(t *testing.T) {
	runner := &stubRunner{err: faults.Errorf(faults.KindNetworkUnavailable, "upstream.fetch_image", "connection refused")}
	handler := NewAnalysisHandler(runner, &stubTracker{}, zap.NewNop())

	task := analysisTask(t, AnalysisTaskPayload{JobID: "job-3", PhotoID: "photo-3", UserID: "user-1", Options: analysis.DefaultOptions()})
	err := handler.ProcessTask(context.Background(), task)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("infrastructure failure should stay retryable")
	}
}

func TestProcessTaskMalformedPayload(t *testing.T) {
	handler := NewAnalysisHandler(&stubRunner{}, &stubTracker{}, zap.NewNop())

	err := handler.ProcessTask(context.Background(), asynq.NewTask(TypeAnalyzePhoto, []byte("{broken")))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload should skip retry, got %v", err)
	}
}

func TestProcessTaskWithoutTracker(t *testing.T) {
	runner := &stubRunner{result: &analysis.Result{PhotoID: "photo-4", BlurScore: 0.1}}
	handler := NewAnalysisHandler(runner, nil, zap.NewNop())

	task := analysisTask(t, AnalysisTaskPayload{PhotoID: "photo-4", UserID: "user-1", Options: analysis.DefaultOptions()})
	if err := handler.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask returned error: %v", err)
	}
	if runner.calls != 1 {
		t.Fatalf("runner called %d times", runner.calls)
	}
}

func TestProcessTaskTrackerFailureIsAdvisory(t *testing.T) {
	runner := &stubRunner{result: &analysis.Result{PhotoID: "photo-5", BlurScore: 0.2}}
	tracker := &stubTracker{err: errors.New("redis down")}
	handler := NewAnalysisHandler(runner, tracker, zap.NewNop())

	task := analysisTask(t, AnalysisTaskPayload{JobID: "job-5", PhotoID: "photo-5", UserID: "user-1", Options: analysis.DefaultOptions()})
	if err := handler.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("tracker failure must not fail the task: %v", err)
	}
}
