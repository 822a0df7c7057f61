package memory

import (
	"sync"
	"time"

	"chat-session-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

// SessionRepository is the process-wide registry of session records.
type SessionRepository struct {
	cache *cache.Cache

	// idle is true when records expire after a period without access.
	idle bool
	// mu serialises GetOrCreate so a record is only ever added once and a
	// refresh never replaces a record added by another caller.
	mu sync.Mutex
}

// NewSessionRepository creates a registry. A positive ttl is an idle timeout:
// every GetOrCreate pushes the record's expiry back. A non-positive ttl keeps
// records until they are deleted explicitly by connection teardown.
func NewSessionRepository(ttl, cleanupInterval time.Duration) *SessionRepository {
	idle := ttl > 0
	if !idle {
		ttl = cache.NoExpiration
	}
	return &SessionRepository{
		cache: cache.New(ttl, cleanupInterval),
		idle:  idle,
	}
}

// GetOrCreate returns the record for sessionID, creating it if absent.
// Concurrent callers racing on an unseen id all receive the same record.
func (r *SessionRepository) GetOrCreate(sessionID string) *store.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		if x, found := r.cache.Get(sessionID); found {
			rec := x.(*store.Record)
			if r.idle {
				// Re-setting restores the record even if the janitor removed it
				// after the Get above.
				r.cache.Set(sessionID, rec, cache.DefaultExpiration)
			}
			return rec
		}

		rec := store.NewRecord(sessionID)
		if err := r.cache.Add(sessionID, rec, cache.DefaultExpiration); err == nil {
			return rec
		}
	}
}

func (r *SessionRepository) Get(sessionID string) (*store.Record, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*store.Record), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}
