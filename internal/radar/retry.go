package radar

import "time"

// RetryPolicy repeats an operation that failed. It is applied by callers
// around single-shot engine operations.
type RetryPolicy struct {
	Attempts   int
	Delay      time.Duration
	Multiplier float64       // <= 1 keeps the delay constant
	MaxDelay   time.Duration // 0 means unbounded

	sleep func(time.Duration)
}

// Do calls fn until it succeeds or Attempts are used up, and returns the
// last error. attempt counts from 1.
func (p RetryPolicy) Do(fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	delay := p.Delay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		sleep(delay)
		if p.Multiplier > 1 {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
