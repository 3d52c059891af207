package messaging

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/itsneelabh/gomind-mas/core"
)

// SimulatedLink is an in-process Messenger that times out with a fixed
// probability. Failures are drawn from a seeded source so runs repeat.
type SimulatedLink struct {
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
	failNext    int
	attempts    int
	delivered   []Message

	limiter *rate.Limiter
	now     func() time.Time
	logger  core.Logger
}

// LinkOption customises a SimulatedLink.
type LinkOption func(*SimulatedLink)

// WithRateLimit caps sends per second; callers block until a token is free.
func WithRateLimit(perSecond float64, burst int) LinkOption {
	return func(l *SimulatedLink) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithLinkLogger sets the logger, scoped to framework/messaging.
func WithLinkLogger(logger core.Logger) LinkOption {
	return func(l *SimulatedLink) {
		l.logger = core.ComponentLogger(logger, "framework/messaging")
	}
}

// WithClock overrides the delivery timestamp source.
func WithClock(now func() time.Time) LinkOption {
	return func(l *SimulatedLink) {
		if now != nil {
			l.now = now
		}
	}
}

// NewSimulatedLink creates a link that fails each send with probability
// failureRate, which must lie in [0,1].
func NewSimulatedLink(failureRate float64, seed int64, opts ...LinkOption) (*SimulatedLink, error) {
	if failureRate < 0 || failureRate > 1 {
		return nil, &core.FrameworkError{
			Op:      "messaging.NewSimulatedLink",
			Kind:    "config",
			Message: fmt.Sprintf("failure rate must be within [0,1], got %g", failureRate),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	l := &SimulatedLink{
		rng:         rand.New(rand.NewSource(seed)),
		failureRate: failureRate,
		now:         time.Now,
		logger:      &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// FailNext forces the next n sends to time out regardless of the failure rate.
func (l *SimulatedLink) FailNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = n
}

// Send delivers body to target or returns a *core.CommunicationError.
func (l *SimulatedLink) Send(ctx context.Context, target, body string) error {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return &core.CommunicationError{Target: target, Reason: "rate limited", Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.attempts++
	attempt := l.attempts
	fail := false
	if l.failNext > 0 {
		l.failNext--
		fail = true
	} else if l.failureRate > 0 && l.rng.Float64() < l.failureRate {
		fail = true
	}
	if !fail {
		l.delivered = append(l.delivered, Message{Target: target, Body: body, DeliveredAt: l.now()})
	}
	l.mu.Unlock()

	if fail {
		l.logger.Debug("Simulated send timed out", map[string]interface{}{
			"operation": "send",
			"target":    target,
			"attempt":   attempt,
		})
		return &core.CommunicationError{Target: target, Reason: "timeout"}
	}
	l.logger.Debug("Message delivered", map[string]interface{}{
		"operation": "send",
		"target":    target,
		"attempt":   attempt,
	})
	return nil
}

// Attempts returns how many sends were tried, failed or not.
func (l *SimulatedLink) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

// RateLimit reports the send cap per second and its burst. Zero means the
// link is unlimited.
func (l *SimulatedLink) RateLimit() (float64, int) {
	if l.limiter == nil {
		return 0, 0
	}
	return float64(l.limiter.Limit()), l.limiter.Burst()
}

// Delivered returns a copy of the delivered messages in order.
func (l *SimulatedLink) Delivered() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.delivered))
	copy(out, l.delivered)
	return out
}
