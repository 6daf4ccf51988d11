package session

import "time"

// frameLimiter is a token bucket over inbound microphone frames and bytes.
// A nil limiter allows everything.
type frameLimiter struct {
	now   func() time.Time
	burst int64
	last  time.Time

	fps, fpsTokens int64
	bps, bpsTokens int64
}

func newFrameLimiter(now func() time.Time, fps int, bps int64, burstSeconds int) *frameLimiter {
	if fps <= 0 && bps <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	if burstSeconds <= 0 {
		burstSeconds = 1
	}
	l := &frameLimiter{
		now:   now,
		burst: int64(burstSeconds),
		last:  now(),
		fps:   int64(fps),
		bps:   bps,
	}
	l.fpsTokens = l.fps * l.burst
	l.bpsTokens = l.bps * l.burst
	return l
}

// Allow takes one frame of n bytes from the bucket.
func (l *frameLimiter) Allow(n int) bool {
	if l == nil {
		return true
	}
	l.refill()
	if n < 0 {
		n = 0
	}
	if l.fps > 0 && l.fpsTokens < 1 {
		return false
	}
	if l.bps > 0 && l.bpsTokens < int64(n) {
		return false
	}
	if l.fps > 0 {
		l.fpsTokens--
	}
	if l.bps > 0 {
		l.bpsTokens -= int64(n)
	}
	return true
}

func (l *frameLimiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.last)
	if elapsed <= 0 {
		return
	}
	l.fpsTokens = topUp(l.fpsTokens, l.fps, l.burst, elapsed)
	l.bpsTokens = topUp(l.bpsTokens, l.bps, l.burst, elapsed)
	l.last = now
}

func topUp(tokens, rate, burst int64, elapsed time.Duration) int64 {
	if rate <= 0 {
		return tokens
	}
	tokens += elapsed.Nanoseconds() * rate / int64(time.Second)
	if max := rate * burst; tokens > max {
		tokens = max
	}
	return tokens
}
