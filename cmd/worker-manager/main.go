// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"registration-workers/internal/common/aws"
	"registration-workers/internal/common/camunda"
	"registration-workers/internal/common/config"
	"registration-workers/internal/common/database"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/common/observability"
	"registration-workers/internal/registration/application"
	"registration-workers/internal/registration/certificate"
	"registration-workers/internal/registration/documents"
	"registration-workers/internal/registration/events"
	"registration-workers/internal/registration/inspection"
	"registration-workers/internal/registration/payment"
	"registration-workers/internal/registration/sequence"
	"registration-workers/internal/registration/statemachine"
	"registration-workers/internal/registration/store"

	aaa "registration-workers/internal/workers/application/apply-application-action"
	csr "registration-workers/internal/workers/application/check-submission-readiness"
	car "registration-workers/internal/workers/application/create-application-record"
	dd "registration-workers/internal/workers/application/discard-draft"
	ic "registration-workers/internal/workers/application/issue-certificate"
	qwq "registration-workers/internal/workers/application/query-work-queue"
	si "registration-workers/internal/workers/application/schedule-inspection"
	sn "registration-workers/internal/workers/application/send-notification"
	sir "registration-workers/internal/workers/application/submit-inspection-report"
	uad "registration-workers/internal/workers/application/update-application-draft"
	uio "registration-workers/internal/workers/application/update-inspection-order"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	obs, err := observability.New(cfg.App.Name)
	if err != nil || obs == nil {
		zapLog.Warn("OTel metrics disabled", zap.Error(err))
		obs = &observability.Observability{}
	}
	if cfg.Tracing.Enabled {
		tracing, err := observability.NewTracing(cfg.App.Name, cfg.Tracing.JaegerEndpoint)
		if err != nil {
			zapLog.Warn("tracing disabled", zap.Error(err))
		} else {
			obs.AttachTracing(tracing)
		}
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected and migrated", zap.Int("migrations", database.MigrationCount()))

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Domain event sinks ---
	sinks := []events.Sink{events.NewZeebeSink(zeebe, time.Duration(cfg.Camunda.MessageTTL)*time.Second)}
	var indexer *events.SearchIndexer
	if cfg.Search.Enabled {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		indexer = events.NewSearchIndexer(es.Client, cfg.Search.Index)
		sinks = append(sinks, indexer)
		zapLog.Info("Elasticsearch connected successfully", zap.String("index", cfg.Search.Index))
	}

	awsClients, err := aws.NewClients(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		zapLog.Fatal("aws clients failed", zap.Error(err))
	}

	// --- Workflow core ---
	st := store.NewPostgres(pg.DB)
	allocator := sequence.NewAllocator(st, cfg.Workflow.AllocationMaxAttempts, log)
	docs := documents.NewPostgres(pg.DB, cfg.Workflow.RequiredDocuments, log)
	machine := statemachine.New(st, statemachine.Config{
		MinPhotos:      cfg.Workflow.MinPhotos,
		IdempotencyTTL: cfg.Workflow.IdempotencyTTLDuration(),
	}, statemachine.Dependencies{
		Documents:     docs,
		Payments:      payment.NewGateway(cfg.Payment, rdb.Client, log),
		Publisher:     events.NewFanout(log, sinks...),
		Cache:         rdb.Client,
		Observability: obs,
	}, log)
	applications := application.NewService(st, allocator, cfg.Workflow, log)
	inspections := inspection.NewSubsystem(st, machine, log)
	issuer := certificate.NewIssuer(st, machine, allocator, cfg.Workflow, log)
	var archive ic.CertificateArchive
	if cfg.Archive.Enabled {
		archive = certificate.NewArchive(awsClients.S3, cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Archive.VerifyURL)
		zapLog.Info("Certificate archive enabled", zap.String("bucket", cfg.Archive.Bucket))
	}

	// --- Register workers ---
	handlers := map[string]worker.JobHandler{
		car.TaskType: car.NewHandler(car.LoadConfig(config.GetWorkerConfig(cfg, car.TaskType)), applications, log).Handle,
		uad.TaskType: uad.NewHandler(uad.LoadConfig(config.GetWorkerConfig(cfg, uad.TaskType)), applications, log).Handle,
		dd.TaskType:  dd.NewHandler(dd.LoadConfig(config.GetWorkerConfig(cfg, dd.TaskType)), applications, log).Handle,
		csr.TaskType: csr.NewHandler(csr.LoadConfig(config.GetWorkerConfig(cfg, csr.TaskType), cfg.Workflow), applications, docs, log).Handle,
		aaa.TaskType: aaa.NewHandler(aaa.LoadConfig(config.GetWorkerConfig(cfg, aaa.TaskType)), machine, log).Handle,
		si.TaskType:  si.NewHandler(si.LoadConfig(config.GetWorkerConfig(cfg, si.TaskType)), inspections, log).Handle,
		uio.TaskType: uio.NewHandler(uio.LoadConfig(config.GetWorkerConfig(cfg, uio.TaskType)), inspections, log).Handle,
		sir.TaskType: sir.NewHandler(sir.LoadConfig(config.GetWorkerConfig(cfg, sir.TaskType)), inspections, log).Handle,
		ic.TaskType:  ic.NewHandler(ic.LoadConfig(config.GetWorkerConfig(cfg, ic.TaskType)), issuer, archive, log).Handle,
		sn.TaskType: sn.NewHandler(
			sn.LoadConfig(config.GetWorkerConfig(cfg, sn.TaskType), cfg.Notifications),
			pg.DB, awsClients.SES, awsClients.SNS, log,
		).Handle,
	}
	if indexer != nil {
		handlers[qwq.TaskType] = qwq.NewHandler(qwq.LoadConfig(config.GetWorkerConfig(cfg, qwq.TaskType)), indexer, log).Handle
	}

	var workers []worker.JobWorker
	for taskType, handle := range handlers {
		if w := camunda.StartWorker(zeebe.GetClient(), taskType, config.GetWorkerConfig(cfg, taskType), handle, zapLog); w != nil {
			workers = append(workers, w)
		}
	}
	zapLog.Info("Workers registered", zap.Int("started", len(workers)), zap.Int("known", len(handlers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{"status": "ready", "time": time.Now().Format(time.RFC3339)}
		code := http.StatusOK
		for name, ping := range map[string]func(context.Context) error{
			"postgres": pg.Ping,
			"redis":    rdb.Ping,
			"zeebe":    zeebe.HealthCheck,
		} {
			if err := ping(checkCtx); err != nil {
				checks[name] = err.Error()
				checks["status"] = "not_ready"
				code = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		writeStatus(w, code, checks)
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	server := &http.Server{Addr: cfg.App.HTTPAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.App.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	for _, w := range workers {
		w.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func writeStatus(w http.ResponseWriter, code int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
