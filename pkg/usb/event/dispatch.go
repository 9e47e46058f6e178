package event

import (
	"fmt"
	"sync"

	"github.com/apex/log"
)

// Callback is the function shape a native source invokes for every event.
type Callback func(raw *RawEvent, context uintptr)

// Source is a native notification subscription API: it stores one callback
// and one opaque context and calls them from its own goroutine/thread until
// Unsubscribe returns. Unsubscribe must not return while a callback is still
// running.
type Source interface {
	Subscribe(cb Callback, context uintptr) error
	Unsubscribe() error
}

// Dispatch is the entry point every native source calls.
//
// context must be a Handle returned by pin and not yet released; Subscription
// guarantees this by releasing the handle only after the source's Unsubscribe
// returned. Unknown contexts and malformed records are dropped.
func Dispatch(raw *RawEvent, context uintptr) {
	r, ok := Handle(context).registration()
	if !ok {
		log.Debugf("event: dropping event for stale context %#x", context)
		return
	}
	if err := r.Invoke(raw); err != nil {
		log.WithError(err).Debug("event: dropping malformed native event")
	}
}

// Subscription ties a pinned Registration to the Source calling it.
type Subscription struct {
	src    Source
	handle Handle
	reg    *Registration

	once sync.Once
	err  error
}

// Subscribe pins r and asks src to start calling Dispatch for it.
func Subscribe(src Source, r *Registration) (*Subscription, error) {
	if src == nil || r == nil {
		return nil, fmt.Errorf("event: subscribe needs a source and a registration")
	}
	h := pin(r)
	if err := src.Subscribe(Dispatch, uintptr(h)); err != nil {
		h.release()
		return nil, fmt.Errorf("event: failed to subscribe: %w", err)
	}
	return &Subscription{
		src:    src,
		handle: h,
		reg:    r,
	}, nil
}

func (s *Subscription) Registration() *Registration {
	return s.reg
}

// Close stops the source and then releases the registration. If the source
// fails to stop, the registration stays pinned since the source may still
// call it.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		if err := s.src.Unsubscribe(); err != nil {
			log.WithError(err).Warn("event: source failed to unsubscribe, keeping registration pinned")
			s.err = fmt.Errorf("event: failed to unsubscribe: %w", err)
			return
		}
		s.handle.release()
	})
	return s.err
}
