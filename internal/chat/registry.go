package chat

import (
	"context"
	"log/slog"
	"sync"
)

// Lister is the remote side of the conversation list.
type Lister interface {
	ListConversations(ctx context.Context) ([]Summary, error)
}

// SummaryCache mirrors the last successful snapshot locally so a restarted
// client has something to show before its first fetch. Replacement is
// always wholesale, never a merge.
type SummaryCache interface {
	LoadSummaries() ([]Summary, error)
	ReplaceSummaries(items []Summary) error
}

// Registry caches the signed-in user's conversation summaries. Each Refresh
// is a full snapshot and a full replace; a failed fetch keeps the previous
// snapshot and records the error for that attempt only.
type Registry struct {
	gw    Lister
	cache SummaryCache
	log   *slog.Logger
	gate  func() bool

	mu      sync.Mutex
	items   []Summary
	lastErr error
}

// NewRegistry seeds the in-memory list from the local cache when one is
// provided. cache may be nil.
func NewRegistry(gw Lister, cache SummaryCache, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{gw: gw, cache: cache, log: log}
	if cache != nil {
		items, err := cache.LoadSummaries()
		if err != nil {
			log.Warn("loading cached conversation list", "error", err)
		} else {
			r.items = items
		}
	}
	return r
}

// SetGate installs a predicate consulted before each fetch. When it reports
// false the refresh is skipped and the current snapshot stands.
func (r *Registry) SetGate(gate func() bool) {
	r.gate = gate
}

// Refresh fetches the full conversation list and replaces the cached set.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.gate != nil && !r.gate() {
		return nil
	}
	items, err := r.gw.ListConversations(ctx)
	if err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.items = items
	r.lastErr = nil
	r.mu.Unlock()

	if r.cache != nil {
		if err := r.cache.ReplaceSummaries(items); err != nil {
			r.log.Warn("persisting conversation list", "error", err)
		}
	}
	return nil
}

// Items returns a copy of the current snapshot.
func (r *Registry) Items() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Summary(nil), r.items...)
}

// Err reports the outcome of the most recent Refresh.
func (r *Registry) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
