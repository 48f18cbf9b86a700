// cmd/tools/sync-documents/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"registration-workers/internal/common/config"
	"registration-workers/internal/common/database"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/registration/documents"
)

// sync-documents copies inline application documents into
// application_documents. Each batch clears the blobs it copied, so the
// loop ends once no application still carries inline documents.
func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to configs/config.yaml)")
	batch := flag.Int("batch", 100, "Applications per batch")
	maxBatches := flag.Int("max-batches", 0, "Stop after this many batches (0 = until done)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error migrating schema: %v\n", err)
		os.Exit(1)
	}

	docs := documents.NewPostgres(pg.DB, cfg.Workflow.RequiredDocuments, log)
	total := documents.SyncReport{}
	for n := 0; *maxBatches == 0 || n < *maxBatches; n++ {
		report, err := docs.SyncFromJSONB(ctx, *batch)
		if report != nil {
			total.Applications += report.Applications
			total.Copied += report.Copied
			total.Skipped += report.Skipped
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error syncing documents: %v\n", err)
			printJSON(total)
			os.Exit(1)
		}
		if report.Applications == 0 {
			break
		}
	}
	printJSON(total)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
