package announcement

import (
	"context"
	"time"

	"github.com/trezcool/pueriangeli/core"
)

const defaultDispatchInterval = time.Minute

// Dispatcher sends scheduled announcements once they are due.
type Dispatcher struct {
	svc      Service
	logger   core.Logger
	interval time.Duration
	nowFunc  func() time.Time // mockable
}

func NewDispatcher(svc Service, logger core.Logger, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = defaultDispatchInterval
	}
	return &Dispatcher{svc: svc, logger: logger, interval: interval, nowFunc: time.Now}
}

// Run dispatches on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	sent, err := d.svc.DispatchDue(ctx, d.nowFunc().UTC())
	if err != nil && ctx.Err() == nil {
		d.logger.Error("dispatching announcements", err)
		return
	}
	if sent > 0 {
		d.logger.Info("announcements dispatched", map[string]interface{}{"count": sent})
	}
}
