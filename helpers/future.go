// Based on https://github.com/256dpi/gomqtt/blob/e7823dfd0958f968b8e69eb1bf235456316c54fb/client/future/future.go
// with completed/cancelled channels exported
// which allows to wait on result in custom select statement.

package helpers

import (
	"context"
	"sync"
)

// Future is one-shot result slot: either Complete(value) or Cancel(error),
// whichever comes first wins.
type Future struct {
	result    interface{}
	err       error
	completed chan struct{}
	cancelled chan struct{}
	done      bool
	mutex     sync.Mutex
}

func NewFuture() *Future {
	return &Future{
		completed: make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

func (f *Future) Cancelled() <-chan struct{} { return f.cancelled }
func (f *Future) Completed() <-chan struct{} { return f.completed }

func (f *Future) Complete(result interface{}) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.done {
		return false
	}

	f.result = result
	close(f.completed)
	f.done = true
	return true
}

func (f *Future) Cancel(err error) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.done {
		return false
	}

	f.err = err
	close(f.cancelled)
	f.done = true
	return true
}

func (f *Future) Result() (interface{}, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.result, f.err
}

// Wait returns ctx.Err() if ctx is done first.
// Future stays pending in that case, caller decides whether to Cancel.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.completed:
	case <-f.cancelled:
	case <-ctx.Done():
		// result may have arrived at the same time, prefer it
		select {
		case <-f.completed:
		case <-f.cancelled:
		default:
			return nil, ctx.Err()
		}
	}
	return f.Result()
}
