package draft

import (
	"context"
	"sync"
	"time"

	"github.com/fpang/litter-report/internal/report"
)

// Retention is how long an unsubmitted draft survives. Older drafts are
// treated as absent on Load and purged.
const Retention = 24 * time.Hour

// Backend persists at most one draft per key.
//
// GetDraft returns (nil, nil) when no draft is stored under key.
// PutDraft is an upsert. DeleteDraft of a missing key is not an error.
type Backend interface {
	GetDraft(ctx context.Context, key string) (*report.Draft, error)
	PutDraft(ctx context.Context, key string, d *report.Draft) error
	DeleteDraft(ctx context.Context, key string) error
}

// Memory is a process-local Backend. Drafts survive a Store being rebuilt
// but not a process restart.
type Memory struct {
	mu     sync.Mutex
	drafts map[string]report.Draft
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{drafts: make(map[string]report.Draft)}
}

func (m *Memory) GetDraft(_ context.Context, key string) (*report.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[key]
	if !ok {
		return nil, nil
	}
	out := d.Clone()
	return &out, nil
}

func (m *Memory) PutDraft(_ context.Context, key string, d *report.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[key] = d.Clone()
	return nil
}

func (m *Memory) DeleteDraft(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, key)
	return nil
}
