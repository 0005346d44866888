package events

import (
	"context"
	"sync"
)

// Topic fans a payload type out to its subscribers. The zero value is ready to use.
type Topic[T any] struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(T)
}

// Subscribe registers fn and returns a function that removes it.
// fn runs on the publisher's goroutine and must not block.
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.subs == nil {
		t.subs = make(map[int]func(T))
	}
	id := t.next
	t.next++
	t.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

// Publish delivers v to every current subscriber.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	subs := make([]func(T), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.RUnlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Len reports the number of subscribers.
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Bus groups the topics a store publishes on.
type Bus struct {
	Created  Topic[ExpenseCreated]
	Deleted  Topic[ExpenseDeleted]
	Preview  Topic[ExpensePreview]
	Reloaded Topic[ExpensesReloaded]
	Totals   Topic[TotalsUpdated]
	People   Topic[PeopleUpdated]

	all Topic[Event]
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{}
}

// SubscribeAll registers fn for every event kind.
func (b *Bus) SubscribeAll(fn func(Event)) (unsubscribe func()) {
	return b.all.Subscribe(fn)
}

// Publish routes e to its typed topic and to SubscribeAll subscribers.
func (b *Bus) Publish(e Event) {
	switch v := e.(type) {
	case ExpenseCreated:
		b.Created.Publish(v)
	case ExpenseDeleted:
		b.Deleted.Publish(v)
	case ExpensePreview:
		b.Preview.Publish(v)
	case ExpensesReloaded:
		b.Reloaded.Publish(v)
	case TotalsUpdated:
		b.Totals.Publish(v)
	case PeopleUpdated:
		b.People.Publish(v)
	}
	b.all.Publish(e)
}

// Recorder collects the names of published events, in order. It backs the
// HX-Trigger header of a single request. Publishers find it on the context
// of the operation through RecorderFrom, so events raised by other requests
// never reach it.
type Recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.names {
		if n == e.Name() {
			return
		}
	}
	r.names = append(r.names, e.Name())
}

// Names returns the distinct event names recorded so far.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

type recorderKey struct{}

// WithRecorder returns a copy of ctx carrying rec. A nil rec detaches any
// recorder inherited from ctx.
func WithRecorder(ctx context.Context, rec *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, rec)
}

// RecorderFrom returns the recorder attached to ctx, or nil.
func RecorderFrom(ctx context.Context) *Recorder {
	rec, _ := ctx.Value(recorderKey{}).(*Recorder)
	return rec
}
