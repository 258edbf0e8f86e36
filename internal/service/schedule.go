package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const reportJobTimeout = time.Minute

var reportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bankfeed_report_runs_total",
	Help: "Scheduled monthly report runs, labeled by result",
}, []string{"result"})

// ReportJob builds and logs the previous month's report when the scheduler fires.
type ReportJob struct {
	reporter *Reporter
	log      logrus.FieldLogger
}

func NewReportJob(r *Reporter, log logrus.FieldLogger) *ReportJob {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReportJob{reporter: r, log: log.WithField(logging.FieldComponent, "report_job")}
}

// Run implements cron.Job.
func (j *ReportJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), reportJobTimeout)
	defer cancel()

	year, month := j.reporter.PreviousMonth()
	report, err := j.reporter.Monthly(ctx, year, month)
	if err != nil {
		reportRuns.WithLabelValues("error").Inc()
		j.log.WithError(err).Error("Monthly report failed")
		return
	}
	reportRuns.WithLabelValues("ok").Inc()

	j.log.WithFields(logrus.Fields{
		"period":           report.Label,
		logging.FieldCount: report.TransactionCount,
		"total_income":     report.TotalIncome,
		"total_expense":    report.TotalExpense,
		"net":              report.Net,
	}).Info("Monthly report generated")
}

// NewScheduler returns a cron scheduler evaluating specs in loc, with the
// report job registered under spec.
func NewScheduler(spec string, loc *time.Location, job *ReportJob) (*cron.Cron, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, err
	}
	return c, nil
}
