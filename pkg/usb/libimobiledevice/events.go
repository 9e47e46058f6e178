//go:build cgo && libimobiledevice

package libimobiledevice

/*
#cgo pkg-config: libimobiledevice-1.0
#include <stdint.h>
#include <libimobiledevice/libimobiledevice.h>

int idevice_bridge_subscribe(uintptr_t context);
int idevice_bridge_unsubscribe(void);
*/
import "C"

import (
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/blacktop/go-idevice/pkg/usb/event"
)

const sourceName = "libimobiledevice"

func init() {
	event.RegisterSource(sourceName, func() event.Source {
		return &eventSource{}
	})
}

// libimobiledevice keeps a single process wide event subscription.
var (
	activeMu sync.RWMutex
	active   event.Callback
)

type eventSource struct {
	subscribed bool
}

func (s *eventSource) Subscribe(cb event.Callback, context uintptr) error {
	activeMu.Lock()
	defer activeMu.Unlock()
	if active != nil {
		return fmt.Errorf("libimobiledevice: event subscription already active")
	}
	active = cb
	if rc := C.idevice_bridge_subscribe(C.uintptr_t(context)); rc != 0 {
		active = nil
		return fmt.Errorf("libimobiledevice: idevice_event_subscribe: %d", int(rc))
	}
	s.subscribed = true
	return nil
}

// Unsubscribe returns once libimobiledevice stopped its event thread.
func (s *eventSource) Unsubscribe() error {
	if !s.subscribed {
		return nil
	}
	if rc := C.idevice_bridge_unsubscribe(); rc != 0 {
		return fmt.Errorf("libimobiledevice: idevice_event_unsubscribe: %d", int(rc))
	}
	activeMu.Lock()
	active = nil
	activeMu.Unlock()
	s.subscribed = false
	return nil
}

// goIdeviceEventCallback is called by libimobiledevice's event thread through
// the C trampoline. evt and its udid are owned by libimobiledevice and only
// valid for the duration of the call.
//
//export goIdeviceEventCallback
func goIdeviceEventCallback(evt *C.idevice_event_t, context C.uintptr_t) {
	if evt == nil {
		log.Debug("libimobiledevice: dropping nil event")
		return
	}
	raw := &event.RawEvent{
		Type:     int32(evt.event),
		ConnType: int32(evt.conn_type),
	}
	if evt.udid != nil {
		raw.UDID = C.GoString(evt.udid)
	}

	activeMu.RLock()
	cb := active
	activeMu.RUnlock()
	if cb == nil {
		return
	}
	cb(raw, uintptr(context))
}
