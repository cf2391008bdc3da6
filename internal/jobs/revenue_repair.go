// Package jobs runs the service's scheduled maintenance work.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/models"
)

const repairTimeout = 30 * time.Minute

// RevenueRepairer is implemented by OrderService.
type RevenueRepairer interface {
	RepairRevenue(ctx context.Context, batchSize int) (*models.RepairReport, error)
}

// RevenueRepairJob periodically rewrites stale revenue columns. A run that is
// still going when the next one is due causes the next one to be skipped.
type RevenueRepairJob struct {
	cron     *cron.Cron
	repairer RevenueRepairer
	batch    int
	logger   *logging.Logger
}

func NewRevenueRepairJob(repairer RevenueRepairer, cfg config.SchedulerConfig, logger *logging.Logger) *RevenueRepairJob {
	cl := cronLogger{logger}
	return &RevenueRepairJob{
		cron: cron.New(cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		), cron.WithLogger(cl)),
		repairer: repairer,
		batch:    cfg.RevenueRepairBatch,
		logger:   logger,
	}
}

// Start schedules the job on spec, a standard five-field cron expression.
func (j *RevenueRepairJob) Start(spec string) error {
	if _, err := j.cron.AddFunc(spec, j.Run); err != nil {
		return fmt.Errorf("schedule revenue repair %q: %w", spec, err)
	}
	j.cron.Start()
	j.logger.Info("Revenue repair scheduled", logging.Fields{"schedule": spec})
	return nil
}

// Run performs one repair pass.
func (j *RevenueRepairJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), repairTimeout)
	defer cancel()

	start := time.Now()
	report, err := j.repairer.RepairRevenue(ctx, j.batch)
	if err != nil {
		j.logger.Error("Revenue repair run failed", logging.Fields{"error": err.Error()})
		return
	}

	j.logger.Info("Revenue repair run finished", logging.Fields{
		"scanned":  report.Scanned,
		"repaired": report.Repaired,
		"failed":   len(report.Failed),
		"duration": time.Since(start).String(),
	})
}

// Stop stops scheduling and returns a context that is done once a running pass finishes.
func (j *RevenueRepairJob) Stop() context.Context {
	return j.cron.Stop()
}

type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := pairs(keysAndValues)
	fields["error"] = err.Error()
	l.logger.Error(msg, fields)
}

func pairs(kv []interface{}) logging.Fields {
	fields := logging.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
