package upstream

import (
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, Factor: 2.0}

	// Pre-jitter delay for the nth retry is base * factor^n.
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, c := range cases {
		if got := p.Delay(c.attempt); got != c.want {
			t.Errorf("Delay(%d) = %s, want %s", c.attempt, got, c.want)
		}
	}
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, Factor: 2.0}
	if got := p.Delay(30); got != maxBackoff {
		t.Errorf("Delay(30) = %s, want cap %s", got, maxBackoff)
	}
	if got := p.Delay(-1); got != p.BaseDelay {
		t.Errorf("Delay(-1) = %s, want base %s", got, p.BaseDelay)
	}
}

func TestJitterBounds(t *testing.T) {
	d := 10 * time.Second
	lo, hi := 8*time.Second, 12*time.Second
	for i := 0; i < 1000; i++ {
		j := Jitter(d)
		if j < lo || j > hi {
			t.Fatalf("jitter %s outside [%s, %s]", j, lo, hi)
		}
	}
}
