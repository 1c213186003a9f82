package capture

import (
	"errors"
	"sync"

	"github.com/bebsworthy/testreport/internal/events"
)

// Registry maps suite keys to their aggregators. Different keys never block
// each other; a key is finalized at most once.
type Registry struct {
	handlers sync.Map // SuiteKey -> *Aggregator
	newFn    func(key SuiteKey) *Aggregator
}

// NewRegistry creates a registry that builds aggregators with newFn.
func NewRegistry(newFn func(key SuiteKey) *Aggregator) *Registry {
	return &Registry{newFn: newFn}
}

// HandlerFor returns the aggregator for a descriptor, creating it on first use.
// Output of individual tests is attached to their enclosing suite.
func (r *Registry) HandlerFor(d *events.Descriptor) *Aggregator {
	if !d.Composite && d.Parent != nil {
		d = d.Parent
	}
	key := KeyOf(d)
	if existing, ok := r.handlers.Load(key); ok {
		return existing.(*Aggregator)
	}
	created := r.newFn(key)
	actual, loaded := r.handlers.LoadOrStore(key, created)
	if loaded {
		// Lost the race; the unused aggregator never spilled.
		_ = created.Close() //nolint:errcheck // nothing was written
	}
	return actual.(*Aggregator)
}

// Get returns the aggregator for key without creating one.
func (r *Registry) Get(key SuiteKey) (*Aggregator, bool) {
	v, ok := r.handlers.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Aggregator), true
}

// Remove detaches the aggregator for key. The second removal of a key reports false.
func (r *Registry) Remove(key SuiteKey) (*Aggregator, bool) {
	v, ok := r.handlers.LoadAndDelete(key)
	if !ok {
		return nil, false
	}
	return v.(*Aggregator), true
}

// Len returns the number of live aggregators.
func (r *Registry) Len() int {
	n := 0
	r.handlers.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll removes and closes every remaining aggregator.
func (r *Registry) CloseAll() error {
	var errs []error
	r.handlers.Range(func(k, _ any) bool {
		if agg, ok := r.Remove(k.(SuiteKey)); ok {
			errs = append(errs, agg.Close())
		}
		return true
	})
	return errors.Join(errs...)
}
