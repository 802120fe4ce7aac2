package directory

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RunPurger hard-deletes rooms closed longer than retention every interval
// until ctx is done.
func RunPurger(ctx context.Context, p Purger, retention, interval time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeClosed(ctx, retention)
			if err != nil {
				if ctx.Err() == nil {
					logger.WithError(err).Warn("purging closed rooms")
				}
				continue
			}
			if n > 0 {
				logger.WithFields(logrus.Fields{"purged": n, "retention": retention}).Info("purged closed rooms")
			}
		}
	}
}
