package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/keybind/internal/config"
	"github.com/makkenzo/keybind/internal/tasks"
	"go.uber.org/zap"
)

func redisConnOpts(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// RunWorkers runs the asynq server and the stats scheduler until ctx is done.
func RunWorkers(ctx context.Context, cfg *config.Config, source tasks.Summarizer, logger *zap.Logger) error {
	connOpts := redisConnOpts(&cfg.Redis)

	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	srv := asynq.NewServer(
		connOpts,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log := logger.Named("AsynqServerErrorHandler")
				log.Error("Asynq task processing failed",
					zap.String("task_type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err),
				)
			}),
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqServer")),
		},
	)

	mux := asynq.NewServeMux()
	statsHandler := tasks.NewStatsRefreshHandler(source, logger)
	mux.HandleFunc(tasks.TypeStatsRefresh, statsHandler.ProcessTask)

	scheduler := asynq.NewScheduler(
		connOpts,
		&asynq.SchedulerOpts{
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqScheduler")),
		},
	)

	statsTask, err := tasks.NewStatsRefreshTask()
	if err != nil {
		return fmt.Errorf("scheduler task creation error: %w", err)
	}

	entryID, err := scheduler.Register(cfg.Worker.StatsInterval, statsTask)
	if err != nil {
		return fmt.Errorf("scheduler registration error: %w", err)
	}
	logger.Info("Registered periodic license stats refresh", zap.String("entry_id", entryID), zap.String("schedule", cfg.Worker.StatsInterval))

	logger.Info("Starting Asynq Server...")
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("asynq server error: %w", err)
	}

	logger.Info("Starting Asynq Scheduler...")
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		return fmt.Errorf("asynq scheduler error: %w", err)
	}

	enqueueInitialRefresh(connOpts, logger)

	<-ctx.Done()

	logger.Info("Shutting down Asynq Scheduler...")
	scheduler.Shutdown()
	logger.Info("Asynq Scheduler stopped.")

	logger.Info("Shutting down Asynq Server...")
	srv.Shutdown()
	logger.Info("Asynq Server stopped.")
	return nil
}

// enqueueInitialRefresh fills the gauges right away instead of waiting for the first tick.
func enqueueInitialRefresh(connOpts asynq.RedisClientOpt, logger *zap.Logger) {
	client := asynq.NewClient(connOpts)
	defer client.Close()

	task, err := tasks.NewStatsRefreshTask()
	if err != nil {
		logger.Warn("Could not build initial stats refresh task", zap.Error(err))
		return
	}
	info, err := client.Enqueue(task)
	if err != nil {
		logger.Warn("Could not enqueue initial stats refresh", zap.Error(err))
		return
	}
	logger.Debug("Initial stats refresh enqueued", zap.String("task_id", info.ID))
}

type asynqLoggerAdapter struct {
	logger *zap.Logger
}

func NewAsynqLoggerAdapter(logger *zap.Logger) *asynqLoggerAdapter {
	return &asynqLoggerAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (l *asynqLoggerAdapter) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}
