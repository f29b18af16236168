// Package jobs runs the payment and session automation, on a schedule or on demand.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/auth"
	"github.com/imusici/accademia/core/payment"
)

const (
	JobOverdueSweep    = "overdue_sweep"
	JobMonthlyPayments = "monthly_payments"
	JobSessionCleanup  = "session_cleanup"

	TriggerSchedule = "schedule"
	TriggerManual   = "manual"

	runTimeout = 5 * time.Minute
)

var (
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "accademia",
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Automation job runs by job, trigger and outcome.",
	}, []string{"job", "trigger", "outcome"})

	affectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "accademia",
		Subsystem: "jobs",
		Name:      "affected_records_total",
		Help:      "Records changed by automation jobs.",
	}, []string{"job"})
)

func init() {
	prometheus.MustRegister(runsTotal, affectedTotal)
}

type Runner struct {
	payments *payment.Service
	auth     *auth.Service
	conf     core.JobsConfig
	logger   core.Logger
	cron     *cron.Cron
}

func NewRunner(payments *payment.Service, authSvc *auth.Service, conf *core.Config, logger core.Logger) *Runner {
	return &Runner{
		payments: payments,
		auth:     authSvc,
		conf:     conf.Jobs,
		logger:   logger,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
	}
}

func (r *Runner) record(job, trigger string, affected int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		r.logger.Error(fmt.Sprintf("job %s (%s) failed", job, trigger), err)
	} else {
		r.logger.Info(fmt.Sprintf("job %s (%s) done: %d affected", job, trigger, affected))
	}
	runsTotal.WithLabelValues(job, trigger, outcome).Inc()
	affectedTotal.WithLabelValues(job).Add(float64(affected))
}

// Sweep marks the payments past due date and tolerance as overdue.
func (r *Runner) Sweep(ctx context.Context, trigger string) (payment.SweepResult, error) {
	res, err := r.payments.Sweep(ctx)
	r.record(JobOverdueSweep, trigger, res.Updated, err)
	return res, err
}

// Monthly materializes the monthly payments of req's month.
func (r *Runner) Monthly(ctx context.Context, trigger string, req payment.MonthlyRequest) (payment.MonthlyResult, error) {
	res, err := r.payments.GenerateMonthly(ctx, req)
	r.record(JobMonthlyPayments, trigger, res.Created, err)
	return res, err
}

func (r *Runner) CleanupSessions(ctx context.Context, trigger string) (int, error) {
	n, err := r.auth.CleanupExpiredSessions(ctx)
	r.record(JobSessionCleanup, trigger, n, err)
	return n, err
}

// Start schedules the jobs. It does nothing when jobs are disabled.
func (r *Runner) Start() error {
	if !r.conf.Enabled {
		r.logger.Info("scheduled jobs disabled")
		return nil
	}

	schedule := []struct {
		spec string
		job  string
		run  func(ctx context.Context) error
	}{
		{r.conf.OverdueSweep, JobOverdueSweep, func(ctx context.Context) error {
			_, err := r.Sweep(ctx, TriggerSchedule)
			return err
		}},
		{r.conf.MonthlyPayments, JobMonthlyPayments, func(ctx context.Context) error {
			_, err := r.Monthly(ctx, TriggerSchedule, payment.MonthlyRequest{})
			return err
		}},
		{r.conf.SessionCleanup, JobSessionCleanup, func(ctx context.Context) error {
			_, err := r.CleanupSessions(ctx, TriggerSchedule)
			return err
		}},
	}
	for _, s := range schedule {
		run := s.run
		if _, err := r.cron.AddFunc(s.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
			defer cancel()
			_ = run(ctx) // already logged & counted
		}); err != nil {
			return errors.Wrapf(err, "scheduling %s (%q)", s.job, s.spec)
		}
	}
	r.cron.Start()
	r.logger.Info(fmt.Sprintf("scheduled jobs started: sweep=%q monthly=%q cleanup=%q",
		r.conf.OverdueSweep, r.conf.MonthlyPayments, r.conf.SessionCleanup))
	return nil
}

// Stop waits for running jobs to finish, or for ctx to be done.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.logger.Warn("stopping jobs: running jobs did not finish in time")
	}
}
