package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner removes expired state and reports how many entries went away.
type Pruner interface {
	Prune(ctx context.Context, now time.Time) (int, error)
}

// PrunerFunc adapts a function to Pruner.
type PrunerFunc func(ctx context.Context, now time.Time) (int, error)

// Prune calls f.
func (f PrunerFunc) Prune(ctx context.Context, now time.Time) (int, error) { return f(ctx, now) }

// Janitor periodically prunes expired sessions and OTP entries.
//
// English comment:
// - Expiry is already enforced lazily on read; the janitor only bounds memory.
// - Redis-backed stores expire natively, so their pruners are cheap no-ops.
type Janitor struct {
	log     *slog.Logger
	cron    *cron.Cron
	pruners map[string]Pruner
	now     func() time.Time
}

// NewJanitor schedules a prune pass for every named pruner on spec
// (standard cron syntax or descriptors such as "@every 1m").
func NewJanitor(log *slog.Logger, spec string, pruners map[string]Pruner) (*Janitor, error) {
	j := &Janitor{
		log:     log,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		pruners: pruners,
		now:     time.Now,
	}
	if _, err := j.cron.AddFunc(spec, j.runOnce); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
	j.log.Info("janitor.start", "jobs", len(j.pruners))
}

// Stop halts the schedule and waits for a running pass, bounded by ctx.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		j.log.Warn("janitor.stop.timeout")
	}
}

func (j *Janitor) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := j.now()
	for name, p := range j.pruners {
		n, err := p.Prune(ctx, now)
		if err != nil {
			j.log.Error("janitor.prune.fail", "store", name, "err", err)
			continue
		}
		if n > 0 {
			j.log.Info("janitor.prune", "store", name, "removed", n)
		}
	}
}
