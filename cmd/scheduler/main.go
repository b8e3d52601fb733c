// Command scheduler runs one messaging job and prints its summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wolfman30/clinic-messaging/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-messaging/internal/config"
	"github.com/wolfman30/clinic-messaging/internal/scheduler"
	"github.com/wolfman30/clinic-messaging/internal/store"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

func main() {
	job := flag.String("job", "", "job to run: "+strings.Join(scheduler.Jobs(), ", "))
	flag.Parse()

	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, logger, *job))
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, job string) int {
	if job == "" {
		fmt.Fprintf(os.Stderr, "-job is required (%s)\n", strings.Join(scheduler.Jobs(), ", "))
		return 2
	}

	dbs, err := bootstrap.OpenDatabases(ctx, cfg)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer dbs.Close()

	runner := bootstrap.BuildRunner(cfg, store.NewStore(dbs.Pool), nil, logger)
	summary, runErr := runner.Run(ctx, job)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		logger.Error("failed to encode summary", "error", err)
	}
	if runErr != nil {
		logger.Error("job failed", "job", job, "error", runErr)
		return 1
	}
	return 0
}
