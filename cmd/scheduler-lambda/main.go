package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/clinic-messaging/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-messaging/internal/config"
	"github.com/wolfman30/clinic-messaging/internal/dispatch"
	"github.com/wolfman30/clinic-messaging/internal/store"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

var errMissingJob = errors.New("scheduler-lambda: event carries no job")

type jobRunner interface {
	Run(ctx context.Context, job string) (dispatch.Summary, error)
}

type jobEvent struct {
	Job string `json:"job"`
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	// The pool outlives individual invocations on a warm container.
	dbs, err := bootstrap.OpenDatabases(context.Background(), cfg)
	if err != nil {
		panic(err)
	}
	runner := bootstrap.BuildRunner(cfg, store.NewStore(dbs.Pool), nil, logger)

	lambda.Start(func(ctx context.Context, payload json.RawMessage) (dispatch.Summary, error) {
		return handle(ctx, runner, logger, payload)
	})
}

func handle(ctx context.Context, runner jobRunner, logger *logging.Logger, payload json.RawMessage) (dispatch.Summary, error) {
	job, err := jobFromPayload(payload)
	if err != nil {
		return dispatch.Summary{}, err
	}
	summary, err := runner.Run(ctx, job)
	if err != nil {
		logger.Error("scheduled job failed", "job", job, "error", err)
		return summary, err
	}
	logger.Info("scheduled job finished",
		"job", job,
		"processed", summary.Processed,
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

// jobFromPayload accepts either a constant input ({"job":"reminder"}) or an
// EventBridge event whose detail carries the job.
func jobFromPayload(payload json.RawMessage) (string, error) {
	var direct jobEvent
	if err := json.Unmarshal(payload, &direct); err != nil {
		return "", fmt.Errorf("scheduler-lambda: decode event: %w", err)
	}
	if job := strings.TrimSpace(direct.Job); job != "" {
		return job, nil
	}

	var evt events.CloudWatchEvent
	if err := json.Unmarshal(payload, &evt); err != nil || len(evt.Detail) == 0 {
		return "", errMissingJob
	}
	var detail jobEvent
	if err := json.Unmarshal(evt.Detail, &detail); err != nil {
		return "", fmt.Errorf("scheduler-lambda: decode event detail: %w", err)
	}
	if job := strings.TrimSpace(detail.Job); job != "" {
		return job, nil
	}
	return "", errMissingJob
}
