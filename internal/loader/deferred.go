package loader

import "sync"

// Deferred is a pending aggregation handle. Creating one performs no work;
// the first Value call resolves it and every later call returns the same
// outcome.
type Deferred struct {
	once    sync.Once
	resolve func() (interface{}, bool, error)

	value   interface{}
	present bool
	err     error
}

func newDeferred(resolve func() (interface{}, bool, error)) *Deferred {
	return &Deferred{resolve: resolve}
}

// Value resolves the aggregation on first call. present is false when the
// parent had no matching rows and the function carries no zero default.
func (d *Deferred) Value() (value interface{}, present bool, err error) {
	d.once.Do(func() {
		d.value, d.present, d.err = d.resolve()
	})
	return d.value, d.present, d.err
}
