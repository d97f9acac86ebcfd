package geocode

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrProviderUnavailable is returned for a provider whose breaker is open
// after repeated request failures. Lookups fail fast until the cooldown ends.
var ErrProviderUnavailable = eris.New("geocode: provider unavailable after repeated failures")

// breaker stops calling a provider after threshold consecutive request
// errors. Once cooldown has passed a single probe is let through; a failed
// probe reopens it and a successful one closes it. Misses are not failures.
// A nil breaker always allows.
type breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	now      func() time.Time
}

func newBreaker(name string, threshold int, cooldown time.Duration) *breaker {
	if threshold <= 0 {
		return nil
	}
	return &breaker{name: name, threshold: threshold, cooldown: cooldown, now: time.Now}
}

func (b *breaker) allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures < b.threshold || b.now().Sub(b.openedAt) >= b.cooldown
}

func (b *breaker) record(err error) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.failures >= b.threshold {
			zap.L().Info("geocode: provider recovered", zap.String("provider", b.name))
		}
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		if b.failures == b.threshold {
			zap.L().Warn("geocode: provider disabled after repeated failures",
				zap.String("provider", b.name),
				zap.Int("failures", b.failures),
				zap.Duration("cooldown", b.cooldown),
				zap.Error(err),
			)
		}
		b.openedAt = b.now()
	}
}
