package queue

import (
	"testing"
	"time"
)

func TestBackoff_DoublesUntilCap(t *testing.T) {
	r := &Runtime{cfg: Config{BackoffBase: time.Second, BackoffCap: 60 * time.Second}}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{8, 60 * time.Second}, // capped
	}
	for _, c := range cases {
		if got := r.backoff(c.attempt); got != c.want {
			t.Errorf("backoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}
