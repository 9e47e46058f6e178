// Package event bridges native device notifications (attach, detach, paired)
// to Go handlers.
//
// A native event source only ever sees two things: a function to call and an
// opaque uintptr context. The context is a Handle into a process wide table
// that keeps the *Registration reachable until the source has been told to
// stop calling it. Dispatch is the only place a context is turned back into a
// registration.
package event

import (
	"errors"
	"fmt"
)

//go:generate go tool stringer -type=Kind,ConnectionType -output event_string.go

// Kind is the kind of device notification. Values match idevice_event_type.
type Kind int

const (
	Add Kind = iota + 1
	Remove
	Paired
)

// ConnectionType is how the device is reachable. Values match
// idevice_connection_type.
type ConnectionType int

const (
	USBMux ConnectionType = iota + 1
	Network
)

var (
	ErrNilEvent    = errors.New("nil native event")
	ErrMissingUDID = errors.New("native event has no udid")
	ErrUnknownKind = errors.New("unknown native event kind")
)

// RawEvent is the record a native source hands to Dispatch. It is untrusted
// until Decode has validated it.
type RawEvent struct {
	Type     int32
	UDID     string
	ConnType int32
}

// Event is a validated device notification.
type Event struct {
	kind Kind
	udid string
	conn ConnectionType
}

func (e Event) Kind() Kind                     { return e.kind }
func (e Event) UDID() string                   { return e.udid }
func (e Event) ConnectionType() ConnectionType { return e.conn }

func (e Event) String() string {
	return fmt.Sprintf("%s %s (%s)", e.kind, e.udid, e.conn)
}

// Decode validates raw and converts it to an Event.
func Decode(raw *RawEvent) (Event, error) {
	if raw == nil {
		return Event{}, ErrNilEvent
	}
	kind := Kind(raw.Type)
	switch kind {
	case Add, Remove, Paired:
	default:
		return Event{}, fmt.Errorf("%w: %d", ErrUnknownKind, raw.Type)
	}
	if raw.UDID == "" {
		return Event{}, ErrMissingUDID
	}
	conn := ConnectionType(raw.ConnType)
	switch conn {
	case USBMux, Network:
	default:
		// libimobiledevice leaves conn_type unset for some paired events
		conn = USBMux
	}
	return Event{kind: kind, udid: raw.UDID, conn: conn}, nil
}
