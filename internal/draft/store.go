// Package draft owns the single in-progress report. Every read goes through
// Current and every write through Save, so gating decisions always observe
// the latest state.
package draft

import (
	"context"
	"sync"
	"time"

	"github.com/fpang/litter-report/internal/report"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultKey is the persistence key used when a Store is not given one.
const DefaultKey = "current"

// Listener receives a copy of the draft after each effective change.
type Listener func(d report.Draft)

// Store holds the in-memory draft and mirrors it into a Backend.
// The in-memory draft is authoritative; a backend failure is returned to the
// caller but does not roll the change back.
type Store struct {
	backend   Backend
	key       string
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	draft   report.Draft
	version uint64

	// persistMu orders backend writes; mu is never held across backend I/O.
	persistMu sync.Mutex
	persisted uint64

	subMu   sync.Mutex
	subs    map[int]Listener
	nextSub int
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the persistence key (one draft per key).
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRetention overrides the 24h retention window.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// New creates a Store holding a fresh empty draft. Call Load to restore a
// persisted one.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		key:       DefaultKey,
		retention: Retention,
		now:       time.Now,
		subs:      make(map[int]Listener),
	}
	for _, o := range opts {
		o(s)
	}
	s.draft = s.fresh()
	return s
}

func (s *Store) fresh() report.Draft {
	now := s.now().UTC()
	return report.Draft{
		ID:        uuid.NewString(),
		Status:    report.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Current returns a copy of the draft.
func (s *Store) Current() report.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

// Load restores the persisted draft. A missing or expired draft yields a
// fresh empty one; an expired draft is deleted from the backend.
func (s *Store) Load(ctx context.Context) (report.Draft, error) {
	stored, err := s.backend.GetDraft(ctx, s.key)
	if err != nil {
		return s.Current(), report.NewError(report.ErrPersistence, report.CauseStorage, "load draft", err)
	}

	expired := stored != nil && s.now().Sub(stored.CreatedAt) > s.retention
	if expired {
		log.Info().
			Str("draftId", stored.ID).
			Time("createdAt", stored.CreatedAt).
			Msg("Persisted draft expired, starting fresh")
		if err := s.backend.DeleteDraft(ctx, s.key); err != nil {
			log.Warn().Err(err).Str("key", s.key).Msg("Failed to purge expired draft")
		}
	}

	s.mu.Lock()
	s.version++
	switch {
	case stored == nil, expired:
		s.draft = s.fresh()
	default:
		s.draft = stored.Clone()
		if s.draft.Status == "" {
			s.draft.Status = report.StatusDraft
		}
		log.Debug().Str("draftId", s.draft.ID).Str("status", string(s.draft.Status)).Msg("Draft restored")
	}
	out := s.draft.Clone()
	s.mu.Unlock()

	s.notify(out)
	return out, nil
}

// Save applies patches in order and persists the result if any patch changed
// the draft. It reports whether the draft changed.
func (s *Store) Save(ctx context.Context, patches ...Patch) (bool, error) {
	s.mu.Lock()
	next := s.draft.Clone()
	changed := false
	for _, p := range patches {
		if p(&next) {
			changed = true
		}
	}
	if !changed {
		s.mu.Unlock()
		return false, nil
	}
	next.UpdatedAt = s.now().UTC()
	s.draft = next
	s.version++
	v := s.version
	out := next.Clone()
	s.mu.Unlock()

	s.notify(out)
	err := s.persist(v, func() error { return s.backend.PutDraft(ctx, s.key, &next) })
	if err != nil {
		return true, report.NewError(report.ErrPersistence, report.CauseStorage, "save draft", err)
	}
	return true, nil
}

// Clear discards the draft in memory and in the backend.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.draft = s.fresh()
	s.version++
	v := s.version
	out := s.draft.Clone()
	s.mu.Unlock()

	s.notify(out)
	err := s.persist(v, func() error { return s.backend.DeleteDraft(ctx, s.key) })
	if err != nil {
		return report.NewError(report.ErrPersistence, report.CauseStorage, "clear draft", err)
	}
	return nil
}

// Purge removes the persisted copy but keeps the in-memory draft, so a
// submitted report can still be shown until the workflow restarts.
func (s *Store) Purge(ctx context.Context) error {
	s.mu.Lock()
	v := s.version
	s.mu.Unlock()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := s.backend.DeleteDraft(ctx, s.key); err != nil {
		return report.NewError(report.ErrPersistence, report.CauseStorage, "purge draft", err)
	}
	if v > s.persisted {
		s.persisted = v
	}
	return nil
}

// persist runs write for in-memory version v unless a newer version has
// already reached the backend.
func (s *Store) persist(v uint64, write func() error) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if v <= s.persisted {
		log.Debug().Uint64("version", v).Msg("Skipped superseded draft write")
		return nil
	}
	if err := write(); err != nil {
		return err
	}
	s.persisted = v
	return nil
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(d report.Draft) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(d.Clone())
	}
}
