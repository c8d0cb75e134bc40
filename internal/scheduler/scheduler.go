// Package scheduler triggers the monthly summary run on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"gastos/internal/core"
)

// Summarizer is the single operation the scheduler drives.
type Summarizer interface {
	Summarize(ctx context.Context, p core.Period) ([]core.ExpenseShareSummary, error)
}

// Scheduler runs the summary job for the previous calendar month on
// each tick. The period is resolved at fire time, not at start time.
type Scheduler struct {
	cron       *cron.Cron
	summarizer Summarizer
	jobTimeout time.Duration
}

func New(spec string, summarizer Summarizer) (*Scheduler, error) {
	s := &Scheduler{
		cron:       cron.New(),
		summarizer: summarizer,
		jobTimeout: 5 * time.Minute,
	}

	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("schedule summary job: %w", err)
	}

	return s, nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	p := core.PreviousPeriod(time.Now())

	slog.InfoContext(ctx, "Running scheduled summary job",
		"year", p.Year,
		"month", p.Month)

	summaries, err := s.summarizer.Summarize(ctx, p)
	if err != nil {
		slog.ErrorContext(ctx, "Scheduled summary job failed",
			"year", p.Year,
			"month", p.Month,
			"error", err)
		return
	}

	slog.InfoContext(ctx, "Scheduled summary job finished",
		"year", p.Year,
		"month", p.Month,
		"summaries", len(summaries))
}

// Start begins firing scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Summary scheduler started")
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Summary scheduler stopped")
}
