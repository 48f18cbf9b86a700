// cmd/tools/purge-drafts/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"registration-workers/internal/common/config"
	"registration-workers/internal/common/database"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/models"
	"registration-workers/internal/registration/application"
	"registration-workers/internal/registration/sequence"
	"registration-workers/internal/registration/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to configs/config.yaml)")
	operator := flag.String("operator", "", "State administrator user ID performing the purge (required)")
	olderThan := flag.Duration("older-than", 180*24*time.Hour, "Purge drafts not updated for this long")
	limit := flag.Int("limit", 500, "Maximum drafts to purge in this run")
	dryRun := flag.Bool("dry-run", true, "List candidates without deleting them")
	flag.Parse()

	if *operator == "" {
		fmt.Println("Error: -operator is required.")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	st := store.NewPostgres(pg.DB)
	svc := application.NewService(st, sequence.NewAllocator(st, cfg.Workflow.AllocationMaxAttempts, log), cfg.Workflow, log)

	report, err := svc.PurgeAbandonedDrafts(ctx, models.Actor{ID: *operator, Role: models.RoleStateAdmin}, *olderThan, *limit, *dryRun)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error purging drafts: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
