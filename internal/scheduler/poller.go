package scheduler

import (
	"context"
	"time"

	"mirra/internal/logger"
)

// Poller runs a task on a fixed cadence. A send on Wake runs the next tick
// early, so filesystem events can shortcut the poll interval.
type Poller struct {
	Interval       time.Duration
	Wake           <-chan struct{}
	RunImmediately bool

	ctx   context.Context
	nowFn func() time.Time
}

func NewPoller(ctx context.Context, interval time.Duration) *Poller {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Poller{
		Interval:       interval,
		RunImmediately: true,
		ctx:            ctx,
		nowFn:          time.Now,
	}
}

// Start blocks and runs task until the context is cancelled.
func (p *Poller) Start(task func()) {
	if p == nil {
		return
	}
	if task == nil {
		logger.Warnf("Poller: task is nil, exit")
		return
	}
	if p.Interval <= 0 {
		logger.Warnf("Poller: invalid interval=%s, exit", p.Interval)
		return
	}
	if p.ctx == nil {
		p.ctx = context.Background()
	}
	if p.nowFn == nil {
		p.nowFn = time.Now
	}

	logger.Infof("Poller: started interval=%s at=%s", p.Interval, p.nowFn().UTC().Format(time.RFC3339))

	if p.RunImmediately {
		task()
	}
	timer := time.NewTimer(p.Interval)
	defer timer.Stop()
	for {
		select {
		case <-p.ctx.Done():
			logger.Infof("Poller: context done, stop")
			return
		case <-timer.C:
		case <-p.Wake:
			// Drain the timer so the reset below starts a clean cycle.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		task()
		timer.Reset(p.Interval)
	}
}
