package resilience

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ReconnectFunc is a function that attempts to reconnect
type ReconnectFunc func(ctx context.Context) error

// Reconnect waits b.Next() and calls fn, repeating until fn succeeds or ctx
// is done. The first attempt is delayed too, since callers reach here after a
// failure. There is no attempt limit. A success resets b.
func Reconnect(ctx context.Context, fn ReconnectFunc, b *Backoff, logger zerolog.Logger) error {
	for attempt := 1; ; attempt++ {
		delay := b.Next()
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		err := fn(ctx)
		if err == nil {
			b.Reset()
			logger.Info().Int("attempt", attempt).Msg("Reconnection successful")
			return nil
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", b.Current()).
			Msg("Reconnection attempt failed")
	}
}
