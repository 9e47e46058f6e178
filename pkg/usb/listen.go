package usb

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/apex/log"
	"github.com/blacktop/go-idevice/pkg/usb/event"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// DefaultListenerCacheSize bounds how many DeviceID -> UDID mappings a
// Listener remembers for Detached and Paired messages.
const DefaultListenerCacheSize = 64

func init() {
	event.RegisterSource("usbmuxd", func() event.Source {
		return NewListener(DefaultListenerCacheSize)
	})
}

type listenMessage struct {
	MessageType string
	DeviceID    int
	Properties  *DeviceAttachment
}

// Listener is an event.Source backed by a usbmuxd Listen connection.
type Listener struct {
	mu      sync.Mutex
	conn    *Conn
	g       *errgroup.Group
	closing bool
	done    chan struct{}
	err     error

	devices *lru.Cache[int, *DeviceAttachment]
}

func NewListener(cacheSize int) *Listener {
	if cacheSize <= 0 {
		cacheSize = DefaultListenerCacheSize
	}
	devices, _ := lru.New[int, *DeviceAttachment](cacheSize)
	return &Listener{devices: devices}
}

// Subscribe opens a usbmuxd connection, switches it to listen mode and starts
// calling cb from a single goroutine.
func (l *Listener) Subscribe(cb event.Callback, context uintptr) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return fmt.Errorf("usbmuxd listener already subscribed")
	}

	conn, err := NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to usbmuxd: %w", err)
	}
	if err := conn.Listen(); err != nil {
		conn.Close()
		return err
	}

	done := make(chan struct{})
	l.conn = conn
	l.closing = false
	l.done = done
	l.err = nil
	l.g = new(errgroup.Group)
	l.g.Go(func() error {
		err := l.loop(conn, cb, context)
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(done)
		return err
	})

	return nil
}

// Done is closed once the read loop of the current subscription has stopped,
// either through Unsubscribe or because usbmuxd closed the stream.
func (l *Listener) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Err reports why the read loop stopped. It is nil while the loop runs and
// after a clean Unsubscribe.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Unsubscribe closes the listen connection and waits for the read loop to
// exit, so cb is never called after it returns. A loop that already died
// has stopped calling cb too; its error stays available through Err.
func (l *Listener) Unsubscribe() error {
	l.mu.Lock()
	conn, g := l.conn, l.g
	if conn == nil {
		l.mu.Unlock()
		return nil
	}
	l.closing = true
	l.mu.Unlock()

	closeErr := conn.Close()
	loopErr := g.Wait()

	l.mu.Lock()
	l.conn = nil
	l.g = nil
	l.mu.Unlock()

	if loopErr != nil {
		log.WithError(loopErr).Debug("usbmuxd: listen stream ended before unsubscribe")
	}
	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return closeErr
	}
	return nil
}

func (l *Listener) loop(conn *Conn, cb event.Callback, context uintptr) error {
	for {
		var msg listenMessage
		if err := conn.Recv(&msg); err != nil {
			l.mu.Lock()
			closing := l.closing
			l.mu.Unlock()
			if closing {
				return nil
			}
			if errors.Is(err, ErrMalformedPlist) {
				log.WithError(err).Debug("usbmuxd: skipping malformed listen message")
				continue
			}
			return fmt.Errorf("usbmuxd listen: %w", err)
		}
		raw := l.decode(&msg)
		if raw == nil {
			continue
		}
		cb(raw, context)
	}
}

// decode turns a usbmuxd listen message into the record handed to the
// event bridge. UDIDs of detached or paired devices come from the attach
// cache; an unknown DeviceID yields an empty UDID, which the bridge rejects.
func (l *Listener) decode(msg *listenMessage) *event.RawEvent {
	switch msg.MessageType {
	case "Attached":
		if msg.Properties == nil {
			return &event.RawEvent{Type: int32(event.Add)}
		}
		l.devices.Add(msg.DeviceID, msg.Properties)
		return &event.RawEvent{
			Type:     int32(event.Add),
			UDID:     msg.Properties.Identifier(),
			ConnType: connectionType(msg.Properties.ConnectionType),
		}
	case "Detached":
		raw := &event.RawEvent{Type: int32(event.Remove)}
		if dev, ok := l.devices.Peek(msg.DeviceID); ok {
			raw.UDID = dev.Identifier()
			raw.ConnType = connectionType(dev.ConnectionType)
			l.devices.Remove(msg.DeviceID)
		}
		return raw
	case "Paired":
		raw := &event.RawEvent{Type: int32(event.Paired)}
		if dev, ok := l.devices.Get(msg.DeviceID); ok {
			raw.UDID = dev.Identifier()
			raw.ConnType = connectionType(dev.ConnectionType)
		}
		return raw
	default:
		log.Debugf("usbmuxd: ignoring listen message %q", msg.MessageType)
		return nil
	}
}

func connectionType(t string) int32 {
	switch t {
	case "Network":
		return int32(event.Network)
	default:
		return int32(event.USBMux)
	}
}
