package rate

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "ip:1.2.3.4")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !res.Allowed || res.CurrentHits != int64(i) || res.Remaining != int64(3-i) {
			t.Fatalf("hit %d: unexpected %+v", i, res)
		}
	}
	res, _ := l.Allow(ctx, "ip:1.2.3.4")
	if res.Allowed || res.RetryAfter <= 0 {
		t.Fatalf("4th hit must be rejected with retry-after: %+v", res)
	}

	// otra key tiene su propia ventana
	if res, _ := l.Allow(ctx, "ip:5.6.7.8"); !res.Allowed {
		t.Fatalf("independent key rejected")
	}
}
