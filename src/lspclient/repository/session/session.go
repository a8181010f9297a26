package session

import (
	"context"
	"sort"
	"sync"

	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/errors"
)

// Repository keeps the status records of every session started by the pool.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (entity.SessionInfo, error)
	Set(ctx context.Context, info entity.SessionInfo) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]entity.SessionInfo, error)
	SessionCount(ctx context.Context) (int, error)
}

type repository struct {
	mu       sync.Mutex
	memstore map[uuid.UUID]entity.SessionInfo
	stats    tally.Scope
}

// New returns a repository to a key-value SessionInfo data store.
func New(stats tally.Scope) Repository {
	return &repository{
		memstore: make(map[uuid.UUID]entity.SessionInfo),
		stats:    stats,
	}
}

// Get returns the SessionInfo associated with the given id.
func (r *repository) Get(ctx context.Context, id uuid.UUID) (entity.SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.memstore[id]
	if !ok {
		return entity.SessionInfo{}, &errors.UUIDNotFoundError{UUID: id}
	}
	return info, nil
}

// Set stores the SessionInfo under its uuid.
func (r *repository) Set(ctx context.Context, info entity.SessionInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.UUID == uuid.Nil {
		return errors.New("can't save session without uuid")
	}
	r.memstore[info.UUID] = info
	r.updateGauges()
	return nil
}

// Delete removes the SessionInfo associated with the given id.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.memstore, id)
	r.updateGauges()
	return nil
}

// List returns every record, most recently started first.
func (r *repository) List(ctx context.Context) ([]entity.SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := make([]entity.SessionInfo, 0, len(r.memstore))
	for _, info := range r.memstore {
		found = append(found, info)
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].StartedAt.After(found[j].StartedAt)
	})
	return found, nil
}

// SessionCount returns the number of sessions that are starting or healthy.
func (r *repository) SessionCount(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.liveCount(), nil
}

func (r *repository) liveCount() int {
	count := 0
	for _, info := range r.memstore {
		if !info.State.Terminal() {
			count++
		}
	}
	return count
}

// updateGauges must be called with mu held.
func (r *repository) updateGauges() {
	r.stats.Gauge("active_sessions").Update(float64(r.liveCount()))
}
