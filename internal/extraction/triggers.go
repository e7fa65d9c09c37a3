package extraction

import (
	"context"

	"github.com/robfig/cron/v3"
)

// Run starts the scheduler's timer trigger and blocks until ctx is done.
// Turn-count and explicit triggers arrive via NotifyTurns and Request; all
// three funnel through the same per-fingerprint dedup.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.CronSpec == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	c := cron.New()
	if _, err := c.AddFunc(s.cfg.CronSpec, func() { s.trigger(ctx, "timer") }); err != nil {
		return err
	}
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return ctx.Err()
}

// NotifyTurns reports the current unseen-turn count; crossing the threshold
// triggers a pass. Safe to call from the orchestrator's event loop: the pass
// itself runs on its own goroutine.
func (s *Scheduler) NotifyTurns(unseen int) {
	if s.cfg.TurnThreshold <= 0 || unseen < s.cfg.TurnThreshold {
		return
	}
	go s.trigger(context.Background(), "turn_threshold")
}

func (s *Scheduler) trigger(ctx context.Context, source string) {
	if s.snapshot == nil {
		return
	}
	snap := s.snapshot()
	if snap.Empty() {
		return
	}
	s.metrics.ExtractionEvents.WithLabelValues("trigger_" + source).Inc()
	if _, err := s.Request(ctx, snap); err != nil {
		// Already logged and counted inside the pass.
		return
	}
}
