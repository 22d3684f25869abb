package resilience

import "time"

// Policy tunes retries, circuit breaking and throttling for one outbound
// dependency. Dependency prefixes breaker names, log records and metrics.
type Policy struct {
	Dependency string
	Retry      RetryPolicy
	Breaker    BreakerPolicy
	Throttle   ThrottlePolicy
}

type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// MaxServerDelay caps a Retry-After hint from the dependency.
	MaxServerDelay time.Duration
}

type BreakerPolicy struct {
	Disabled         bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

// ThrottlePolicy caps attempts per second across all operations of the
// dependency. Zero PerSecond disables it.
type ThrottlePolicy struct {
	PerSecond float64
	Burst     int
}

// LLMPolicy suits generation and embedding backends: calls are slow and
// providers throttle with 429 and Retry-After.
func LLMPolicy() Policy {
	return Policy{
		Dependency: "llm",
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2,
			MaxServerDelay: 10 * time.Second,
		},
		Breaker: BreakerPolicy{
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
	}
}

// QueuePolicy suits publishing ingest events: short waits, quick recovery.
func QueuePolicy() Policy {
	return Policy{
		Dependency: "nats",
		Retry: RetryPolicy{
			MaxAttempts:    4,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     500 * time.Millisecond,
			Multiplier:     2,
			MaxServerDelay: time.Second,
		},
		Breaker: BreakerPolicy{
			MinRequests:      5,
			FailureRatio:     0.6,
			OpenTimeout:      10 * time.Second,
			HalfOpenMaxCalls: 1,
		},
	}
}

func (p Policy) normalize() Policy {
	out := p
	def := LLMPolicy()
	if out.Dependency == "" {
		out.Dependency = "external"
	}

	r := &out.Retry
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = def.Retry.MaxAttempts
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = def.Retry.InitialBackoff
	}
	if r.MaxBackoff < r.InitialBackoff {
		r.MaxBackoff = r.InitialBackoff
	}
	if r.Multiplier < 1 {
		r.Multiplier = def.Retry.Multiplier
	}
	if r.MaxServerDelay < r.MaxBackoff {
		r.MaxServerDelay = r.MaxBackoff
	}

	b := &out.Breaker
	if b.MinRequests == 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.Breaker.OpenTimeout
	}
	if b.HalfOpenMaxCalls == 0 {
		b.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
	}

	t := &out.Throttle
	if t.PerSecond < 0 {
		t.PerSecond = 0
	}
	if t.PerSecond > 0 && t.Burst <= 0 {
		t.Burst = max(1, int(t.PerSecond))
	}
	return out
}

// backoff returns the wait before retry number attempt (1-based), raised to
// the dependency's hint when it asks for longer.
func (r RetryPolicy) backoff(attempt int, hint time.Duration) time.Duration {
	wait := r.InitialBackoff
	for i := 1; i < attempt && wait < r.MaxBackoff; i++ {
		wait = time.Duration(float64(wait) * r.Multiplier)
	}
	wait = min(wait, r.MaxBackoff)
	if hint > wait {
		wait = min(hint, r.MaxServerDelay)
	}
	return wait
}
