// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"time"

	"registration-workers/internal/common/config"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/common/metrics"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

// StartWorker opens a job worker for taskType with duration and in-flight
// instrumentation around handlerFunc. It returns nil when the worker is disabled.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handlerFunc worker.JobHandler, log *zap.Logger) worker.JobWorker {
	if !wcfg.Enabled {
		log.Info("worker disabled", zap.String("taskType", taskType))
		return nil
	}

	instrumented := func(jc worker.JobClient, job entities.Job) {
		metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
		start := time.Now()
		defer func() {
			metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
		}()
		handlerFunc(jc, job)
	}

	w := client.NewJobWorker().
		JobType(taskType).
		Handler(instrumented).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", wcfg.MaxJobsActive),
		zap.Int("timeout_ms", wcfg.Timeout),
	)
	return w
}

// Responder completes or fails jobs for a single task type.
type Responder struct {
	taskType string
	logger   logger.Logger
	errs     *errors.ErrorHandler
}

func NewResponder(taskType string, log logger.Logger) *Responder {
	return &Responder{
		taskType: taskType,
		logger:   log,
		errs:     errors.NewErrorHandler(log),
	}
}

func (r *Responder) Complete(client worker.JobClient, job entities.Job, output interface{}) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		r.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		r.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()
	r.logger.Info("job completed successfully", map[string]interface{}{
		"jobKey": job.Key,
	})
}

func (r *Responder) Fail(client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(r.taskType, string(errors.AsStandard(err).Code)).Inc()
	r.errs.HandleJobError(context.Background(), client, job, err)
}
