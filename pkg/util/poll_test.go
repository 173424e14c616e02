package util

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPollUntil(t *testing.T) {
	t.Run("done on third attempt", func(t *testing.T) {
		calls := 0
		err := PollUntil(context.Background(), 5, 0, func() (bool, error) {
			calls++
			return calls == 3, nil
		})
		if err != nil {
			t.Fatalf("PollUntil() = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := PollUntil(context.Background(), 4, 0, func() (bool, error) {
			calls++
			return false, nil
		})
		if err == nil || !strings.Contains(err.Error(), "gave up after 4 attempts") {
			t.Errorf("err = %v", err)
		}
		if calls != 4 {
			t.Errorf("calls = %d, want 4", calls)
		}
	})

	t.Run("errors are retried and kept", func(t *testing.T) {
		boom := errors.New("show arp: exit status 1")
		calls := 0
		err := PollUntil(context.Background(), 3, 0, func() (bool, error) {
			calls++
			return false, boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped %v", err, boom)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("zero attempts still checks once", func(t *testing.T) {
		calls := 0
		_ = PollUntil(context.Background(), 0, 0, func() (bool, error) {
			calls++
			return true, nil
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("cancelled between attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := PollUntil(ctx, 3, time.Hour, func() (bool, error) {
			cancel()
			return false, nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestSleepContext(t *testing.T) {
	if err := SleepContext(context.Background(), 0); err != nil {
		t.Errorf("zero sleep = %v", err)
	}
	if err := SleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("short sleep = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled zero sleep = %v", err)
	}
	if err := SleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled sleep = %v", err)
	}
}
