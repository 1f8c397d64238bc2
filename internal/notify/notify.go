// Package notify tells backend workers that a job is waiting for them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for worker notification failures.
var (
	ErrUnreachable = errors.New("dispatcher unreachable")
	ErrTimeout     = errors.New("dispatcher timeout")
	ErrRejected    = errors.New("dispatcher rejected job")
)

// Notifier starts a job on a backend worker. The worker later fetches its
// input from and posts its result to callbackURL.
type Notifier interface {
	StartJob(ctx context.Context, kind, callbackURL string) error
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
