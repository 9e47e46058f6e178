// Package mobilesync is a client for the com.apple.mobilesync service.
//
// A Client owns one native session. The session is released exactly once,
// either by Close or, for a Client that was dropped without Close, by a
// finalizer. A Client must not be used from more than one goroutine at a time.
package mobilesync

import (
	"reflect"
	"runtime"
	"sync/atomic"

	"github.com/apex/log"
)

type options struct {
	backendName string
	backend     Backend
}

type Option func(*options)

// WithBackend selects a registered backend by name.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backendName = name
	}
}

// WithSessionBackend uses b directly instead of a registered backend.
func WithSessionBackend(b Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

func resolve(opts []Option) (Backend, error) {
	o := options{backendName: DefaultBackend}
	for _, opt := range opts {
		opt(&o)
	}
	if o.backend != nil {
		return o.backend, nil
	}
	return lookupBackend(o.backendName)
}

type Client struct {
	session  Session
	udid     string
	released atomic.Bool
}

// New opens a mobilesync session on a service lockdownd already started.
func New(udid string, desc *ServiceDescriptor, opts ...Option) (*Client, error) {
	if desc == nil {
		return nil, &Error{Op: "new", Code: InvalidArg}
	}
	backend, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	sess, code := backend.NewSession(udid, desc)
	return newClient("new", udid, sess, code)
}

// StartService asks lockdownd to start com.apple.mobilesync, identifying
// the host with label, and opens a session on it.
func StartService(udid, label string, opts ...Option) (*Client, error) {
	if label == "" {
		return nil, &Error{Op: "start service", Code: InvalidArg}
	}
	backend, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	sess, code := backend.StartService(udid, label)
	return newClient("start service", udid, sess, code)
}

func newClient(op, udid string, sess Session, code Code) (*Client, error) {
	if code != Success {
		return nil, check(op, code)
	}
	if sess == nil {
		return nil, &Error{Op: op, Code: UnknownError, Description: "backend returned no session"}
	}
	c := &Client{session: sess, udid: udid}
	runtime.SetFinalizer(c, (*Client).finalize)
	return c, nil
}

func (c *Client) finalize() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	log.WithField("udid", c.udid).Warn("mobilesync: client was not closed, releasing session")
	if code := c.session.Free(); code != Success {
		log.WithField("udid", c.udid).Warnf("mobilesync: free: %s", code)
	}
}

// Close releases the native session. Only the first call has an effect.
func (c *Client) Close() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	runtime.SetFinalizer(c, nil)
	return check("free", c.session.Free())
}

func (c *Client) UDID() string {
	return c.udid
}

func (c *Client) do(op string, fn func(Session) Code) error {
	if c.released.Load() {
		return ErrClosed
	}
	code := fn(c.session)
	runtime.KeepAlive(c)
	return check(op, code)
}

func (c *Client) Send(msg any) error {
	if msg == nil {
		return &Error{Op: "send", Code: InvalidArg}
	}
	return c.do("send", func(s Session) Code {
		return s.Send(msg)
	})
}

// Receive blocks until a complete message has arrived.
func (c *Client) Receive() (any, error) {
	var msg any
	err := c.do("receive", func(s Session) (code Code) {
		msg, code = s.Receive()
		return
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Start asks the device to sync dataClass. Only the first anchor pair is
// handed to the device; with none the native layer decides the outcome.
// On failure the returned *Error carries the native description.
func (c *Client) Start(dataClass string, anchors []*Anchors, hostVersion uint64, mode SyncType) (*StartResult, error) {
	if c.released.Load() {
		return nil, ErrClosed
	}
	if mode > Reset {
		return nil, &Error{Op: "start", Code: InvalidArg}
	}
	var first *Anchors
	if len(anchors) > 0 {
		first = anchors[0]
	}
	res, desc, code := c.session.Start(dataClass, first, hostVersion, mode)
	runtime.KeepAlive(c)
	if code != Success {
		return nil, &Error{Op: "start", Code: code, Description: desc}
	}
	return &res, nil
}

// Cancel ends the running sync with reason. The Client stays usable.
func (c *Client) Cancel(reason string) error {
	return c.do("cancel", func(s Session) Code {
		return s.Cancel(reason)
	})
}

// Finish completes the running sync. The Client stays usable.
func (c *Client) Finish() error {
	return c.do("finish", func(s Session) Code {
		return s.Finish()
	})
}

// GetAllRecordsFromDevice requests every record and receives the first batch.
func (c *Client) GetAllRecordsFromDevice() (*Changes, error) {
	if err := c.do("get all records", func(s Session) Code {
		return s.GetAllRecordsFromDevice()
	}); err != nil {
		return nil, err
	}
	return c.ReceiveChanges()
}

// GetChangesFromDevice requests the records changed since the last sync and
// receives the first batch.
func (c *Client) GetChangesFromDevice() (*Changes, error) {
	if err := c.do("get changes", func(s Session) Code {
		return s.GetChangesFromDevice()
	}); err != nil {
		return nil, err
	}
	return c.ReceiveChanges()
}

func (c *Client) ReceiveChanges() (*Changes, error) {
	var (
		entities, actions map[string]any
		more              int
	)
	if err := c.do("receive changes", func(s Session) (code Code) {
		entities, more, actions, code = s.ReceiveChanges()
		return
	}); err != nil {
		return nil, err
	}
	return &Changes{
		Entities:    entities,
		MoreChanges: more != 0,
		Actions:     actions,
	}, nil
}

func (c *Client) ClearAllRecordsOnDevice() error {
	return c.do("clear all records", func(s Session) Code {
		return s.ClearAllRecordsOnDevice()
	})
}

func (c *Client) AcknowledgeChangesFromDevice() error {
	return c.do("acknowledge changes", func(s Session) Code {
		return s.AcknowledgeChangesFromDevice()
	})
}

func (c *Client) ReadyToSendChangesFromComputer() error {
	return c.do("ready to send changes", func(s Session) Code {
		return s.ReadyToSendChangesFromComputer()
	})
}

// SendChanges sends one batch of entities. actions may be nil.
func (c *Client) SendChanges(entities map[string]any, isLast bool, actions Actions) error {
	return c.do("send changes", func(s Session) Code {
		return s.SendChanges(entities, isLast, actions)
	})
}

// RemapIdentifiers accepts a sequence (any slice or array other than a byte
// slice) and returns the identifier remapping the device answered with.
func (c *Client) RemapIdentifiers(mapping any) (map[string]any, error) {
	seq, ok := sequence(mapping)
	if !ok {
		return nil, &Error{Op: "remap identifiers", Code: InvalidArg, Description: "mapping must be a sequence"}
	}
	var remapped map[string]any
	if err := c.do("remap identifiers", func(s Session) (code Code) {
		remapped, code = s.RemapIdentifiers(seq)
		return
	}); err != nil {
		return nil, err
	}
	return remapped, nil
}

func sequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil, []byte:
		return nil, false
	case []any:
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
