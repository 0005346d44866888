package store

import (
	"context"
	"log/slog"
	"time"

	"gastos/internal/cache"
	"gastos/internal/core"
	"gastos/internal/events"
)

// Registry keeps one Store per signed-in user. Idle stores expire after the
// TTL and are loaded again on next use.
type Registry struct {
	remote   Remote
	bus      *events.Bus
	notifier Notifier
	hooks    Hooks
	stores   *cache.LRU[*Store]
}

// NewRegistry keeps up to maxUsers stores, each evicted after ttl without use.
func NewRegistry(remote Remote, bus *events.Bus, notifier Notifier, maxUsers int, ttl time.Duration) *Registry {
	r := &Registry{
		remote:   remote,
		bus:      bus,
		notifier: notifier,
		stores:   cache.NewLRU[*Store](maxUsers, ttl),
	}
	r.stores.OnEvict = func(userID string, s *Store) {
		slog.Debug("Evicting expense store", "user_id", userID)
		s.Wait()
	}
	return r
}

// Get returns the user's store, loading it on first use. A store whose
// first load failed is still returned along with the error.
func (r *Registry) Get(ctx context.Context, user core.User) (*Store, error) {
	s := r.stores.GetOrCreate(user.ID, func() *Store {
		s := New(user, r.remote, r.bus, r.notifier)
		s.SetHooks(r.hooks)
		return s
	})
	if s.Loaded() {
		return s, nil
	}
	return s, s.Load(ctx)
}

// SetHooks applies h to stores created from now on.
func (r *Registry) SetHooks(h Hooks) { r.hooks = h }

// Size reports the number of cached stores.
func (r *Registry) Size() int { return r.stores.Size() }

// CleanExpired drops idle stores. It satisfies cache.Cleaner.
func (r *Registry) CleanExpired() int {
	return r.stores.CleanExpired()
}

// Wait blocks until background deletes of every live store finish.
func (r *Registry) Wait() {
	for _, s := range r.stores.Values() {
		s.Wait()
	}
}
