// Atomic value with validity timeout.
// "modified" timestamp is updated after value, without consistency.
// Usage scenario: modem signal strength, battery voltage.
// All methods except `Init` are thread-safe.
package cacheval

import (
	"sync/atomic"
	"time"

	"github.com/devtele/lightdb/helpers/atomic_clock"
)

type Int32 struct {
	value   int32
	updated atomic_clock.Clock
	valid   time.Duration
}

// Not thread-safe. `valid` duration cannot be changed later.
func (c *Int32) Init(valid time.Duration) { c.valid = valid }

// Returns current (possibly stale) value. Fast and cheap.
func (c *Int32) Get() int32 { return atomic.LoadInt32(&c.value) }

// Returns current value and true if it's fresh.
func (c *Int32) GetFresh() (int32, bool) {
	v := atomic.LoadInt32(&c.value)
	if c.updated.IsZero() {
		return v, false
	}
	age := atomic_clock.Since(&c.updated)
	return v, age >= 0 && age <= c.valid
}

// GetOrUpdate returns fresh value, calling `read()` if cached one is stale.
// On `read()` error returns stale value and the error, cache is not touched.
// No cache stampede guard.
func (c *Int32) GetOrUpdate(read func() (int32, error)) (int32, error) {
	if v, ok := c.GetFresh(); ok {
		return v, nil
	}
	v, err := read()
	if err != nil {
		return c.Get(), err
	}
	c.Set(v)
	return v, nil
}

// Updates value and modified timestamp.
func (c *Int32) Set(new int32) {
	atomic.StoreInt32(&c.value, new)
	c.updated.SetNow()
}
