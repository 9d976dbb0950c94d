package backoff

import (
	"math/rand"
	"time"
)

// JitterFunc transforms a computed interval into a jittered one.
type JitterFunc func(interval time.Duration) time.Duration

// FullJitter returns a random interval in [0, interval). This spreads
// retries from many clients uniformly across the backoff window.
func FullJitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(interval)))
}

// EqualJitter returns interval/2 plus a random amount in [0, interval/2).
func EqualJitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	half := interval / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// WithJitter decorates a retry policy so that every computed interval is
// passed through the given jitter function.
func WithJitter(policy RetryPolicy, jitter JitterFunc) RetryPolicy {
	return &jitteredPolicy{policy: policy, jitter: jitter}
}

type jitteredPolicy struct {
	policy RetryPolicy
	jitter JitterFunc
}

func (p *jitteredPolicy) ComputeNextInterval(retryCount int, elapsedTime time.Duration, err error) (time.Duration, error) {
	interval, computeErr := p.policy.ComputeNextInterval(retryCount, elapsedTime, err)
	if computeErr != nil {
		return 0, computeErr
	}
	return p.jitter(interval), nil
}
