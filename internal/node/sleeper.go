package node

import (
	"context"
	"time"

	"github.com/chrissnell/watergate/internal/wake"
	"go.uber.org/zap"
)

// HostSleeper stands in for deep sleep on a development host. It waits the
// requested duration multiplied by Scale and always reports a timer wake.
type HostSleeper struct {
	Scale  float64
	logger *zap.SugaredLogger
}

// NewHostSleeper returns a HostSleeper. A scale <= 0 does not wait at all.
func NewHostSleeper(scale float64, logger *zap.SugaredLogger) *HostSleeper {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &HostSleeper{Scale: scale, logger: logger}
}

func (h *HostSleeper) DeepSleep(ctx context.Context, d time.Duration) (wake.RawCause, error) {
	wait := time.Duration(float64(d) * h.Scale)
	h.logger.Debugw("entering simulated deep sleep", "requested", d.String(), "actual", wait.String())
	if wait <= 0 {
		return wake.RawTimer, ctx.Err()
	}
	if err := sleepContext(ctx, wait); err != nil {
		return wake.RawUndefined, err
	}
	return wake.RawTimer, nil
}
