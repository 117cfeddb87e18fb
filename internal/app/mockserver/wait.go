package mockserver

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
)

var errNotYet = errors.New("not yet")

// waitFor polls done until it holds or duration has passed, sleeping on n between
// polls so a recorded call is noticed without waiting for the full delay.
func waitFor(ctx context.Context, n *notify, done func() bool, delay, duration time.Duration) bool {
	deadline := time.Now().Add(duration)
	err := retry.Do(func() error {
		if done() {
			return nil
		}
		timeLeft := time.Until(deadline)
		if timeLeft <= 0 {
			return retry.Unrecoverable(errNotYet)
		}
		n.Wait(ctx, timeLeft)
		if done() {
			return nil
		}
		return errNotYet
	},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
	)
	return err == nil
}
