package geo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fpang/litter-report/internal/report"
)

// Position source errors.
var (
	ErrPositionDenied      = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
)

// DefaultMaxFixAge is how old a pushed fix may be and still be served.
const DefaultMaxFixAge = 60 * time.Second

// PositionSource provides a single device position fix. Implementations
// block until a fix is available or ctx is done.
type PositionSource interface {
	CurrentPosition(ctx context.Context) (report.Position, error)
}

// FixedSource always reports the same position. Err, when set, is returned
// instead.
type FixedSource struct {
	Position report.Position
	Err      error
}

func (f FixedSource) CurrentPosition(ctx context.Context) (report.Position, error) {
	if err := ctx.Err(); err != nil {
		return report.Position{}, err
	}
	if f.Err != nil {
		return report.Position{}, f.Err
	}
	return f.Position, nil
}

// PushSource serves fixes reported by a client, such as a browser posting
// its geolocation. A waiting caller is woken by the next Push.
type PushSource struct {
	maxAge time.Duration
	now    func() time.Time

	mu      sync.Mutex
	fix     report.Position
	fixedAt time.Time
	denied  bool
	waiters []chan struct{}
}

// NewPushSource creates a source that serves fixes up to maxAge old.
func NewPushSource(maxAge time.Duration) *PushSource {
	if maxAge <= 0 {
		maxAge = DefaultMaxFixAge
	}
	return &PushSource{maxAge: maxAge, now: time.Now}
}

// Push records a new fix and wakes waiting callers.
func (s *PushSource) Push(p report.Position) {
	s.mu.Lock()
	s.fix = p
	s.fixedAt = s.now()
	s.denied = false
	s.wakeLocked()
	s.mu.Unlock()
}

// Deny records that the user refused location access.
func (s *PushSource) Deny() {
	s.mu.Lock()
	s.denied = true
	s.wakeLocked()
	s.mu.Unlock()
}

func (s *PushSource) wakeLocked() {
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

func (s *PushSource) CurrentPosition(ctx context.Context) (report.Position, error) {
	for {
		s.mu.Lock()
		if s.denied {
			s.mu.Unlock()
			return report.Position{}, ErrPositionDenied
		}
		if !s.fixedAt.IsZero() && s.now().Sub(s.fixedAt) <= s.maxAge {
			p := s.fix
			s.mu.Unlock()
			return p, nil
		}
		w := make(chan struct{})
		s.waiters = append(s.waiters, w)
		s.mu.Unlock()

		select {
		case <-w:
		case <-ctx.Done():
			return report.Position{}, ctx.Err()
		}
	}
}
