package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/wolfman30/clinic-messaging/internal/dispatch"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

type recordingRunner struct {
	jobs []string
	err  error
}

func (r *recordingRunner) Run(_ context.Context, job string) (dispatch.Summary, error) {
	r.jobs = append(r.jobs, job)
	summary := dispatch.NewSummary(job)
	summary.Processed = 2
	summary.Sent = 2
	return summary, r.err
}

func TestHandleDirectJob(t *testing.T) {
	runner := &recordingRunner{}

	summary, err := handle(context.Background(), runner, logging.Default(), json.RawMessage(`{"job":"reminder"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.jobs) != 1 || runner.jobs[0] != "reminder" {
		t.Fatalf("expected reminder run, got %v", runner.jobs)
	}
	if summary.Sent != 2 {
		t.Fatalf("expected 2 sent, got %d", summary.Sent)
	}
}

func TestHandleEventBridgeDetail(t *testing.T) {
	runner := &recordingRunner{}
	payload := `{"version":"0","id":"e1","detail-type":"Scheduled Event","source":"aws.events","detail":{"job":"birthday"}}`

	if _, err := handle(context.Background(), runner, logging.Default(), json.RawMessage(payload)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.jobs) != 1 || runner.jobs[0] != "birthday" {
		t.Fatalf("expected birthday run, got %v", runner.jobs)
	}
}

func TestHandleMissingJob(t *testing.T) {
	runner := &recordingRunner{}

	_, err := handle(context.Background(), runner, logging.Default(), json.RawMessage(`{"detail-type":"Scheduled Event","detail":{}}`))
	if !errors.Is(err, errMissingJob) {
		t.Fatalf("expected errMissingJob, got %v", err)
	}
	if len(runner.jobs) != 0 {
		t.Fatalf("expected no runs, got %v", runner.jobs)
	}
}

func TestHandlePropagatesRunError(t *testing.T) {
	runner := &recordingRunner{err: errors.New("gateway not configured")}

	if _, err := handle(context.Background(), runner, logging.Default(), json.RawMessage(`{"job":"campaign"}`)); err == nil {
		t.Fatalf("expected run error")
	}
}
