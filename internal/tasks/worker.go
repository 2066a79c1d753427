package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/adamwilson22/Velaa-Backend/internal/config"
)

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec string
	Task *asynq.Task
}

// Worker wraps the asynq server and the periodic scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
}

// NewMux registers every billing handler.
func NewMux(processor *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeInvoiceGenerate, processor.HandleInvoiceGenerateTask)
	mux.HandleFunc(TypeInvoiceCheckOverdue, processor.HandleInvoiceCheckOverdueTask)
	mux.HandleFunc(TypeReminderDelivery, processor.HandleReminderDeliveryTask)
	mux.HandleFunc(TypeExportMonthly, processor.HandleExportMonthlyTask)
	return mux
}

// Schedule returns the periodic tasks configured in cfg. Empty specs are skipped.
func Schedule(cfg *config.Config) ([]CronRegistration, error) {
	var out []CronRegistration
	if cfg.BillingGenerateCron != "" {
		task, err := NewInvoiceGenerateTask(InvoiceGeneratePayload{})
		if err != nil {
			return nil, err
		}
		out = append(out, CronRegistration{Spec: cfg.BillingGenerateCron, Task: task})
	}
	if cfg.BillingOverdueCron != "" {
		task, err := NewInvoiceCheckOverdueTask()
		if err != nil {
			return nil, err
		}
		out = append(out, CronRegistration{Spec: cfg.BillingOverdueCron, Task: task})
	}
	return out, nil
}

// NewWorker builds the server and scheduler without connecting to Redis.
func NewWorker(cfg *config.Config, processor *TaskProcessor) (*Worker, error) {
	opt := RedisOpt(cfg)
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
			QueueLow:      1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Error().
				Err(err).
				Str("task", task.Type()).
				Int("retry", retried).
				Int("max_retry", maxRetry).
				Msg("task failed")
		}),
		Logger: asynqLogger{},
	})

	entries, err := Schedule(cfg)
	if err != nil {
		return nil, err
	}
	var scheduler *asynq.Scheduler
	if len(entries) > 0 {
		scheduler = asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC, Logger: asynqLogger{}})
		for _, e := range entries {
			id, err := scheduler.Register(e.Spec, e.Task)
			if err != nil {
				return nil, fmt.Errorf("failed to schedule %s at %q: %w", e.Task.Type(), e.Spec, err)
			}
			log.Info().Str("task", e.Task.Type()).Str("spec", e.Spec).Str("entry", id).Msg("periodic task registered")
		}
	}

	return &Worker{server: srv, mux: NewMux(processor), scheduler: scheduler}, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}
	if err := w.server.Start(w.mux); err != nil {
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return fmt.Errorf("failed to start task server: %w", err)
	}
	log.Info().Msg("background worker started")

	<-ctx.Done()
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	log.Info().Msg("background worker stopped")
	return nil
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { log.Debug().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { log.Info().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { log.Warn().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { log.Error().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { log.Fatal().Msg(fmt.Sprint(args...)) }
