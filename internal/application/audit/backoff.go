package audit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes retry delays: Base doubled per attempt, capped at Max, plus up to
// Jitter (a fraction below 1) of extra delay. Below the cap delays strictly increase.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// DefaultBackoff matches the provider's per-minute quota windows.
var DefaultBackoff = Backoff{Base: time.Second, Max: 16 * time.Second, Jitter: 0.25}

// Delay is a pure function of the attempt index (1-based) and a sample in [0, 1).
func (b Backoff) Delay(attempt int, sample float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = DefaultBackoff.Base
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	d := base << shift
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}

	j := b.Jitter
	if j < 0 {
		j = 0
	}
	if j > 0.99 {
		j = 0.99
	}
	if sample < 0 {
		sample = 0
	}
	if sample >= 1 {
		sample = 0.999999
	}
	return d + time.Duration(float64(d)*j*sample)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the timer-based SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Random feeds jitter samples and discovery query choices. *rand.Rand satisfies it
// but is not safe for concurrent use, see NewRandom.
type Random interface {
	Float64() float64
	Intn(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandom returns a goroutine-safe seeded source.
func NewRandom(seed int64) Random {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
