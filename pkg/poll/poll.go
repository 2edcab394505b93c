package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned together with the last observed result when the
// attempt budget is exhausted before a terminal result arrives.
var ErrTimeout = errors.New("poll: attempts exhausted without terminal result")

// Until calls fetch until isTerminal reports true or maxAttempts calls have
// been made, waiting interval between calls. A maxAttempts below 1 is raised
// to 1, so fetch is always called at least once.
//
// Attempts are strictly sequential. A fetch error is returned as is, there is
// no retry on transport failures. When the budget is exhausted the last result
// is returned along with ErrTimeout so callers can decide whether to present
// it as a soft failure.
func Until[T any](ctx context.Context, fetch func(context.Context) (T, error), isTerminal func(T) bool, maxAttempts int, interval time.Duration) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var last T
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			t := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return last, ctx.Err()
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return last, err
		}
		v, err := fetch(ctx)
		if err != nil {
			return last, err
		}
		last = v
		if isTerminal(v) {
			return v, nil
		}
	}
	return last, ErrTimeout
}
