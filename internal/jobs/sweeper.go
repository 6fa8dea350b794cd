package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Expirer deletes rows whose lifetime has passed and reports how many.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically removes expired sessions and OTP challenges.  Reads
// already ignore expired rows, so a missed sweep only costs disk space.
type Sweeper struct {
	Targets  map[string]Expirer
	Interval time.Duration
	Timeout  time.Duration
	Log      logrus.FieldLogger
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Log.WithField("interval", interval.String()).Info("sweeper started")
	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			s.Log.Info("sweeper stopped")
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs every target once.  A failing target is logged and does
// not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) map[string]int64 {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	removed := make(map[string]int64, len(s.Targets))
	for name, t := range s.Targets {
		if ctx.Err() != nil {
			return removed
		}
		tctx, cancel := context.WithTimeout(ctx, timeout)
		n, err := t.DeleteExpired(tctx)
		cancel()
		if err != nil {
			s.Log.WithError(err).WithField("target", name).Warn("sweep failed")
			continue
		}
		removed[name] = n
		if n > 0 {
			s.Log.WithFields(logrus.Fields{"target": name, "removed": n}).Info("expired rows removed")
		}
	}
	return removed
}
