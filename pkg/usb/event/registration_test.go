package event

import (
	"testing"
)

func TestRegistration_Invoke_Filter(t *testing.T) {
	udids := []string{"aaa", "bbb", "aaa", "ccc"}

	tests := []struct {
		name   string
		opts   []Option
		expect []string
	}{
		{name: "no filter forwards everything", expect: []string{"aaa", "bbb", "aaa", "ccc"}},
		{name: "filter forwards matching udid", opts: []Option{WithFilter("aaa")}, expect: []string{"aaa", "aaa"}},
		{name: "filter with no match", opts: []Option{WithFilter("zzz")}},
		{name: "empty filter matches nothing valid", opts: []Option{WithFilter("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			r := NewRegistration(func(evt Event, data any) {
				got = append(got, evt.UDID())
			}, nil, tt.opts...)
			for _, udid := range udids {
				if err := r.Invoke(&RawEvent{Type: int32(Add), UDID: udid, ConnType: int32(USBMux)}); err != nil {
					t.Fatalf("Invoke(%s) error: %v", udid, err)
				}
			}
			if len(got) != len(tt.expect) {
				t.Fatalf("forwarded %v, want %v", got, tt.expect)
			}
			for i := range got {
				if got[i] != tt.expect[i] {
					t.Errorf("forwarded[%d] = %s, want %s", i, got[i], tt.expect[i])
				}
			}
		})
	}
}

func TestRegistration_Invoke_PassesData(t *testing.T) {
	type counter struct{ n int }
	c := &counter{}
	r := NewRegistration(func(evt Event, data any) {
		data.(*counter).n++
		if evt.Kind() != Paired {
			t.Errorf("kind = %s, want Paired", evt.Kind())
		}
	}, c)

	if err := r.Invoke(&RawEvent{Type: int32(Paired), UDID: "abc"}); err != nil {
		t.Fatal(err)
	}
	if c.n != 1 {
		t.Errorf("handler called %d times, want 1", c.n)
	}
	if r.Data() != c {
		t.Error("Data() did not return the registered value")
	}
}

func TestRegistration_Invoke_Malformed(t *testing.T) {
	called := false
	r := NewRegistration(func(Event, any) { called = true }, nil, WithFilter("abc"))

	if err := r.Invoke(nil); err == nil {
		t.Error("Invoke(nil) should fail")
	}
	if err := r.Invoke(&RawEvent{Type: int32(Add)}); err == nil {
		t.Error("Invoke() with empty udid should fail")
	}
	if called {
		t.Error("handler must not run for malformed events")
	}
}

func TestRegistration_Filter(t *testing.T) {
	r := NewRegistration(nil, nil)
	if _, ok := r.Filter(); ok {
		t.Error("Filter() reported a filter on an unfiltered registration")
	}
	r = NewRegistration(nil, nil, WithFilter("abc"))
	if f, ok := r.Filter(); !ok || f != "abc" {
		t.Errorf("Filter() = %q, %t", f, ok)
	}
	// nil handler is a no-op
	if err := r.Invoke(&RawEvent{Type: int32(Add), UDID: "abc"}); err != nil {
		t.Error(err)
	}
}
