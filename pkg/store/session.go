package store

import "sync"

// Record is the key/value state held for one live connection.
// All access goes through the record's own lock so that two sessions never
// contend with each other.
type Record struct {
	ID string `json:"id"`

	mu     sync.Mutex
	values map[string]interface{}
}

// NewRecord allocates an empty record for the given session identifier.
func NewRecord(id string) *Record {
	return &Record{
		ID:     id,
		values: make(map[string]interface{}),
	}
}

// Update runs fn with exclusive access to the record's values.
// fn must not retain the map after it returns.
func (r *Record) Update(fn func(values map[string]interface{})) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.values)
}

// Snapshot returns a shallow copy of the stored values.
func (r *Record) Snapshot() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
