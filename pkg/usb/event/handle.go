package event

import (
	"sync"
	"sync/atomic"
)

// Handle is the opaque context a native source carries for a pinned
// Registration. It is an integer so it can cross the C boundary as a
// uintptr_t / void * without handing C a Go pointer.
type Handle uintptr

var (
	handles   sync.Map // Handle -> *Registration
	handleIdx atomic.Uintptr
)

// pin keeps r reachable until the returned handle is released.
func pin(r *Registration) Handle {
	h := Handle(handleIdx.Add(1))
	handles.Store(h, r)
	return h
}

func (h Handle) registration() (*Registration, bool) {
	v, ok := handles.Load(h)
	if !ok {
		return nil, false
	}
	return v.(*Registration), true
}

func (h Handle) release() {
	handles.Delete(h)
}

// Pinned reports how many registrations are currently held for native sources.
func Pinned() int {
	n := 0
	handles.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
