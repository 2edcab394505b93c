package poll

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUntil(t *testing.T) {
	tests := []struct {
		name         string
		results      []string
		maxAttempts  int
		wantCalls    int
		wantResult   string
		wantTimeout  bool
		wantFetchErr bool
	}{
		{
			name:        "first attempt terminal",
			results:     []string{"SUCCESS"},
			maxAttempts: 5,
			wantCalls:   1,
			wantResult:  "SUCCESS",
		},
		{
			name:        "terminal after pending",
			results:     []string{"PENDING", "PENDING", "SUCCESS", "PENDING"},
			maxAttempts: 10,
			wantCalls:   3,
			wantResult:  "SUCCESS",
		},
		{
			name:        "budget exhausted",
			results:     []string{"PENDING", "PENDING", "PENDING", "PENDING"},
			maxAttempts: 3,
			wantCalls:   3,
			wantResult:  "PENDING",
			wantTimeout: true,
		},
		{
			name:        "zero attempts raised to one",
			results:     []string{"PENDING"},
			maxAttempts: 0,
			wantCalls:   1,
			wantResult:  "PENDING",
			wantTimeout: true,
		},
		{
			name:        "negative attempts raised to one",
			results:     []string{"PENDING"},
			maxAttempts: -2,
			wantCalls:   1,
			wantResult:  "PENDING",
			wantTimeout: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			fetch := func(context.Context) (string, error) {
				v := tt.results[calls%len(tt.results)]
				calls++
				return v, nil
			}
			got, err := Until(context.Background(), fetch, func(s string) bool { return s == "SUCCESS" }, tt.maxAttempts, time.Millisecond)
			if tt.wantTimeout {
				if !errors.Is(err, ErrTimeout) {
					t.Fatalf("Until() err = %v; want %v", err, ErrTimeout)
				}
			} else if err != nil {
				t.Fatalf("Until() err = %v; want nil", err)
			}
			if got != tt.wantResult {
				t.Fatalf("Until() = %q; want %q", got, tt.wantResult)
			}
			if calls != tt.wantCalls {
				t.Fatalf("Until() calls = %d; want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestUntilFetchError(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	fetch := func(context.Context) (int, error) {
		calls++
		if calls == 2 {
			return 0, boom
		}
		return calls, nil
	}
	got, err := Until(context.Background(), fetch, func(int) bool { return false }, 5, time.Millisecond)
	if !errors.Is(err, boom) {
		t.Fatalf("Until() err = %v; want %v", err, boom)
	}
	if calls != 2 {
		t.Fatalf("Until() calls = %d; want 2", calls)
	}
	if got != 1 {
		t.Fatalf("Until() = %d; want last result 1", got)
	}
}

func TestUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	fetch := func(context.Context) (int, error) {
		calls++
		cancel()
		return calls, nil
	}
	start := time.Now()
	_, err := Until(ctx, fetch, func(int) bool { return false }, 5, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Until() err = %v; want %v", err, context.Canceled)
	}
	if calls != 1 {
		t.Fatalf("Until() calls = %d; want 1", calls)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Until() waited %s after cancel", time.Since(start))
	}
}

func TestUntilNoTrailingSleep(t *testing.T) {
	fetch := func(context.Context) (bool, error) { return true, nil }
	start := time.Now()
	if _, err := Until(context.Background(), fetch, func(b bool) bool { return b }, 3, time.Hour); err != nil {
		t.Fatalf("Until() err = %v; want nil", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Until() slept after terminal result")
	}
}
