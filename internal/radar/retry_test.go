package radar

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy(t *testing.T) {
	errFail := errors.New("fail")
	tests := []struct {
		name      string
		policy    RetryPolicy
		failures  int
		wantCalls int
		wantErr   bool
		wantWaits []time.Duration
	}{
		{"first try", RetryPolicy{Attempts: 3, Delay: time.Second}, 0, 1, false, nil},
		{"second try", RetryPolicy{Attempts: 3, Delay: time.Second}, 1, 2, false, []time.Duration{time.Second}},
		{"exhausted", RetryPolicy{Attempts: 3, Delay: time.Second}, 5, 3, true, []time.Duration{time.Second, time.Second}},
		{"zero attempts runs once", RetryPolicy{}, 5, 1, true, nil},
		{"backoff capped", RetryPolicy{Attempts: 4, Delay: time.Second, Multiplier: 3, MaxDelay: 5 * time.Second}, 5, 4, true,
			[]time.Duration{time.Second, 3 * time.Second, 5 * time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var waits []time.Duration
			p := tt.policy
			p.sleep = func(d time.Duration) { waits = append(waits, d) }

			calls := 0
			err := p.Do(func(attempt int) error {
				calls++
				assert.Equal(t, calls, attempt)
				if attempt <= tt.failures {
					return errFail
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantWaits, waits)
			if tt.wantErr {
				assert.Equal(t, errFail, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
