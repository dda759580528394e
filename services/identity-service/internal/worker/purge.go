package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"SocialMeshPlatform/pkg/logger"
)

// Purger удаляет просроченные refresh токены
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// PurgeJob периодически чистит просроченные refresh токены по расписанию cron
type PurgeJob struct {
	purger   Purger
	schedule string
	timeout  time.Duration
	log      logger.Logger
	cron     *cron.Cron
}

// NewPurgeJob создает задачу. schedule принимает стандартный cron с необязательными секундами
// и дескрипторы вида "@every 1h".
func NewPurgeJob(purger Purger, schedule string, timeout time.Duration, log logger.Logger) (*PurgeJob, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	job := &PurgeJob{
		purger:   purger,
		schedule: schedule,
		timeout:  timeout,
		log:      log.With(logger.String("job", "refresh_token_purge")),
	}

	cronLog := cronLogger{log: job.log}
	job.cron = cron.New(
		cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := job.cron.AddFunc(schedule, job.run); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	return job, nil
}

// Start запускает планировщик и останавливает его при отмене ctx
func (j *PurgeJob) Start(ctx context.Context) {
	j.log.Info("Starting purge job", logger.String("schedule", j.schedule))
	j.cron.Start()

	<-ctx.Done()
	stopped := j.cron.Stop()
	<-stopped.Done()
	j.log.Info("Purge job stopped")
}

// RunOnce выполняет одну очистку
func (j *PurgeJob) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	return j.purger.PurgeExpired(ctx)
}

func (j *PurgeJob) run() {
	start := time.Now()
	n, err := j.RunOnce(context.Background())
	if err != nil {
		j.log.Error("Failed to purge expired refresh tokens", logger.Error(err))
		return
	}
	j.log.Info("Expired refresh tokens purged",
		logger.Int64("deleted", n),
		logger.Duration("duration", time.Since(start)))
}

// cronLogger адаптирует logger.Logger к cron.Logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(keysAndValues []interface{}) []logger.Field {
	out := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return out
}
