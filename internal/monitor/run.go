package monitor

import (
	"context"
	"time"

	"github.com/rewired-gh/claimwatch/internal/logger"
)

// RotateEvery is the number of cycles between journal rotations.
const RotateEvery = 720

// Rotator trims persisted history.
type Rotator interface {
	Rotate() error
}

// Run executes a cycle immediately and then once per interval until ctx is
// done. Ticks that arrive while a cycle is running are dropped.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, rotator Rotator) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cycles := 0
	runOnce := func() {
		if _, err := m.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Debug("Monitoring cycle interrupted: %v", err)
				return
			}
			logger.Error("Monitoring cycle failed: %v", err)
		}
		cycles++
		if rotator != nil && cycles%RotateEvery == 0 {
			if err := rotator.Rotate(); err != nil {
				logger.Warn("Failed to rotate alert journal: %v", err)
			}
		}
	}

	logger.Debug("Running initial monitoring cycle")
	runOnce()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			runOnce()
		}
	}
}
