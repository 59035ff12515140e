package channel

import "time"

const (
	defaultRetryDuration = 5 * time.Second
	maxRetryDuration     = 5 * time.Minute
	maxFailedAttempts    = 25
)

// attempt tracks an in-flight or recently-failed reachout to an
// endpoint, with the same linear, capped backoff the connection manager
// uses for persistent dial requests: delay grows with retryCount *
// defaultRetryDuration up to maxRetryDuration.
type attempt struct {
	endpoint    string
	retryCount  int
	lastAttempt time.Time
}

func (a *attempt) backoff() time.Duration {
	d := time.Duration(a.retryCount) * defaultRetryDuration
	if d > maxRetryDuration {
		d = maxRetryDuration
	}
	return d
}

func (a *attempt) exhausted() bool {
	return a.retryCount >= maxFailedAttempts
}

func (a *attempt) ready(now time.Time) bool {
	return now.Sub(a.lastAttempt) >= a.backoff()
}
