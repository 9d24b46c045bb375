// Package schedule runs periodic projection retraining.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"wordmap/internal/projection"
)

// Trainer forces a new projection model.
type Trainer interface {
	Model(ctx context.Context, forceRetrain bool) (*projection.Model, error)
}

// Retrainer calls Trainer on a cron schedule. A failed run is logged and the
// previously published model keeps serving.
type Retrainer struct {
	cron    *cron.Cron
	trainer Trainer
	timeout time.Duration
	log     *slog.Logger
	entry   cron.EntryID
}

// NewRetrainer validates spec (standard five-field cron or a descriptor such
// as "@daily") and registers the job. The scheduler is not started.
func NewRetrainer(spec string, trainer Trainer, timeout time.Duration, log *slog.Logger) (*Retrainer, error) {
	if spec == "" {
		return nil, errors.New("empty retrain schedule")
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Hour
	}
	r := &Retrainer{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		trainer: trainer,
		timeout: timeout,
		log:     log,
	}
	id, err := r.cron.AddFunc(spec, r.Run)
	if err != nil {
		return nil, fmt.Errorf("retrain schedule %q: %w", spec, err)
	}
	r.entry = id
	return r, nil
}

// Run performs one retraining.
func (r *Retrainer) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	start := time.Now()
	r.log.Info("scheduled retrain started")
	m, err := r.trainer.Model(ctx, true)
	if err != nil {
		r.log.Error("scheduled retrain failed, keeping previous model", "err", err)
		return
	}
	r.log.Info("scheduled retrain finished", "samples", m.Samples, "took", time.Since(start))
}

// Next is the next scheduled run time, zero before Start.
func (r *Retrainer) Next() time.Time { return r.cron.Entry(r.entry).Next }

func (r *Retrainer) Start() {
	r.cron.Start()
	r.log.Info("retrain scheduler started", "next", r.Next())
}

// Stop halts scheduling and waits for a running job.
func (r *Retrainer) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info("retrain scheduler stopped")
}
