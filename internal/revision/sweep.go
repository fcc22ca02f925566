package revision

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runSweepOnce performs a single expiration pass.
func runSweepOnce(ctx context.Context, svc *Service) {
	n, err := svc.MarkExpired(ctx)
	if err != nil {
		zap.L().Error("revision sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("revision requests expired", zap.Int64("count", n))
	}
}

// StartSweepWorker launches a background goroutine that expires stale
// requests once at startup and then every interval until ctx is done.
// A non-positive interval disables it.
func StartSweepWorker(ctx context.Context, svc *Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		runSweepOnce(ctx, svc)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runSweepOnce(ctx, svc)
			}
		}
	}()
}
