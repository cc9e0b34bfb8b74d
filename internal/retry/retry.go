// Package retry wraps cenkalti/backoff/v4 to implement the fence-wait
// and dispatch-retry policy spec §5/§7 describe: a bounded number of
// increasingly spaced attempts, after which Until reports failure,
// replacing the original's hand-rolled `sleep(retryCount*1ms)` loop
// with the ecosystem's standard retry/backoff library.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vmware/vmaccel/internal/constants"
)

// Policy configures a bounded exponential backoff.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// FenceWait is the default policy used for fence-wait retry.
func FenceWait() Policy {
	return Policy{
		InitialInterval: constants.FenceWaitInitialInterval,
		MaxInterval:     constants.FenceWaitMaxInterval,
		MaxElapsedTime:  constants.FenceWaitMaxElapsed,
	}
}

func (p Policy) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsedTime
	return b
}

// DispatchRetry is the default policy used to retry a dispatch that
// returned RESOURCE_UNAVAILABLE.
func DispatchRetry() Policy {
	return Policy{
		InitialInterval: constants.DispatchRetryInitialInterval,
		MaxInterval:     constants.DispatchRetryMaxInterval,
		MaxElapsedTime:  constants.DispatchRetryMaxElapsed,
	}
}

// Until retries check until it returns true, the context is canceled,
// or the policy's deadline elapses. It returns false in the latter two
// cases, matching the original's bounded fence-wait spin.
func Until(ctx context.Context, p Policy, check func() (bool, error)) bool {
	op := func() error {
		done, err := check()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errNotReady
		}
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(p.backoff(), ctx))
	return err == nil
}

type notReadyError struct{}

func (notReadyError) Error() string { return "retry: condition not yet satisfied" }

var errNotReady = notReadyError{}
