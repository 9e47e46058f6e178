package event

// Handler receives every event that passes a registration's filter together
// with the data value given at registration time.
type Handler func(evt Event, data any)

// Registration binds a Handler, its data and an optional UDID filter.
// A registration handed to Subscribe must not be reused until the
// Subscription is closed.
type Registration struct {
	handler  Handler
	data     any
	filter   string
	filtered bool
}

type Option func(*Registration)

// WithFilter only forwards events whose UDID equals udid.
func WithFilter(udid string) Option {
	return func(r *Registration) {
		r.filter = udid
		r.filtered = true
	}
}

func NewRegistration(handler Handler, data any, opts ...Option) *Registration {
	r := &Registration{
		handler: handler,
		data:    data,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Filter returns the UDID filter and whether one is set.
func (r *Registration) Filter() (string, bool) {
	return r.filter, r.filtered
}

func (r *Registration) Data() any {
	return r.data
}

// Invoke decodes raw and calls the handler on the calling goroutine.
// Events for other devices are dropped without error when a filter is set.
func (r *Registration) Invoke(raw *RawEvent) error {
	evt, err := Decode(raw)
	if err != nil {
		return err
	}
	if r.filtered && evt.UDID() != r.filter {
		return nil
	}
	if r.handler != nil {
		r.handler(evt, r.data)
	}
	return nil
}
