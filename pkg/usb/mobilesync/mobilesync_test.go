package mobilesync

import (
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSession struct {
	mu    sync.Mutex
	calls map[string]int
	frees atomic.Int32

	code      Code
	startDesc string
	startRes  StartResult
	more      int
	remapped  map[string]any

	gotDataClass string
	gotAnchors   *Anchors
	gotVersion   uint64
	gotMode      SyncType
	gotMapping   []any
}

func newFakeSession() *fakeSession {
	return &fakeSession{calls: make(map[string]int)}
}

func (f *fakeSession) call(name string) Code {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.code
}

func (f *fakeSession) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSession) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.calls {
		n += v
	}
	return n
}

func (f *fakeSession) Send(msg any) Code { return f.call("send") }
func (f *fakeSession) Receive() (any, Code) {
	return []any{"DLMessagePing"}, f.call("receive")
}
func (f *fakeSession) Start(dataClass string, anchors *Anchors, hostVersion uint64, mode SyncType) (StartResult, string, Code) {
	f.gotDataClass, f.gotAnchors, f.gotVersion, f.gotMode = dataClass, anchors, hostVersion, mode
	code := f.call("start")
	if code != Success {
		return StartResult{}, f.startDesc, code
	}
	return f.startRes, "", code
}
func (f *fakeSession) Cancel(reason string) Code     { return f.call("cancel") }
func (f *fakeSession) Finish() Code                  { return f.call("finish") }
func (f *fakeSession) GetAllRecordsFromDevice() Code { return f.call("get all") }
func (f *fakeSession) GetChangesFromDevice() Code    { return f.call("get changes") }
func (f *fakeSession) ReceiveChanges() (map[string]any, int, map[string]any, Code) {
	return map[string]any{"com.apple.contacts.Contact": map[string]any{}}, f.more, nil, f.call("receive changes")
}
func (f *fakeSession) ClearAllRecordsOnDevice() Code        { return f.call("clear") }
func (f *fakeSession) AcknowledgeChangesFromDevice() Code   { return f.call("ack") }
func (f *fakeSession) ReadyToSendChangesFromComputer() Code { return f.call("ready") }
func (f *fakeSession) SendChanges(entities map[string]any, isLast bool, actions map[string]any) Code {
	return f.call("send changes")
}
func (f *fakeSession) RemapIdentifiers(mapping []any) (map[string]any, Code) {
	f.gotMapping = mapping
	return f.remapped, f.call("remap")
}
func (f *fakeSession) Free() Code {
	f.frees.Add(1)
	return Success
}

type fakeBackend struct {
	sess   *fakeSession
	code   Code
	opened int
	label  string
}

func (b *fakeBackend) NewSession(udid string, desc *ServiceDescriptor) (Session, Code) {
	b.opened++
	return b.sess, b.code
}

func (b *fakeBackend) StartService(udid, label string) (Session, Code) {
	b.opened++
	b.label = label
	return b.sess, b.code
}

func newTestClient(t *testing.T) (*Client, *fakeSession) {
	t.Helper()
	sess := newFakeSession()
	c, err := New("udid", &ServiceDescriptor{Port: 1234}, WithSessionBackend(&fakeBackend{sess: sess}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, sess
}

func TestNew_FailureHasNoTeardown(t *testing.T) {
	for _, code := range []Code{InvalidArg, MuxError, SSLError, BadVersion, UnknownError} {
		t.Run(code.String(), func(t *testing.T) {
			sess := newFakeSession()
			b := &fakeBackend{sess: sess, code: code}

			c, err := New("udid", &ServiceDescriptor{Port: 1}, WithSessionBackend(b))
			if c != nil {
				t.Fatal("New() returned a client on failure")
			}
			if !errors.Is(err, &Error{Code: code}) {
				t.Fatalf("New() error = %v, want code %s", err, code)
			}
			c, err = StartService("udid", "label", WithSessionBackend(b))
			if c != nil || err == nil {
				t.Fatalf("StartService() = %v, %v", c, err)
			}
			runtime.GC()
			if n := sess.frees.Load(); n != 0 {
				t.Errorf("teardown calls = %d, want 0", n)
			}
		})
	}
}

func TestNew_NilDescriptor(t *testing.T) {
	b := &fakeBackend{sess: newFakeSession()}
	if _, err := New("udid", nil, WithSessionBackend(b)); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("New(nil) error = %v, want ErrInvalidArg", err)
	}
	if b.opened != 0 {
		t.Errorf("backend opened %d sessions", b.opened)
	}
}

func TestStartService_EmptyLabel(t *testing.T) {
	b := &fakeBackend{sess: newFakeSession()}
	if _, err := StartService("udid", "", WithSessionBackend(b)); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("StartService(\"\") error = %v, want ErrInvalidArg", err)
	}
	if b.opened != 0 {
		t.Errorf("backend opened %d sessions", b.opened)
	}

	c, err := StartService("udid", "io.blacktop.idevice", WithSessionBackend(b))
	if err != nil {
		t.Fatalf("StartService() error = %v", err)
	}
	defer c.Close()
	if b.label != "io.blacktop.idevice" {
		t.Errorf("label = %q", b.label)
	}
}

func TestClient_CloseExactlyOnce(t *testing.T) {
	c, sess := newTestClient(t)

	for range 3 {
		if err := c.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}
	if n := sess.frees.Load(); n != 1 {
		t.Fatalf("teardown calls = %d, want 1", n)
	}

	before := sess.total()
	if err := c.Finish(); !errors.Is(err, ErrClosed) {
		t.Errorf("Finish() after Close = %v, want ErrClosed", err)
	}
	if _, err := c.Receive(); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive() after Close = %v, want ErrClosed", err)
	}
	if _, err := c.Start("com.test", nil, 1, Fast); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close = %v, want ErrClosed", err)
	}
	if _, err := c.RemapIdentifiers([]any{}); !errors.Is(err, ErrClosed) {
		t.Errorf("RemapIdentifiers() after Close = %v, want ErrClosed", err)
	}
	if after := sess.total(); after != before {
		t.Errorf("native calls after Close = %d", after-before)
	}
}

func TestClient_CloseOnErrorPath(t *testing.T) {
	sess := newFakeSession()
	sess.code = Cancelled

	run := func() error {
		c, err := New("udid", &ServiceDescriptor{}, WithSessionBackend(&fakeBackend{sess: sess}))
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.Finish(); err != nil {
			return err
		}
		return nil
	}

	if err := run(); !errors.Is(err, ErrCancelled) {
		t.Fatalf("run() error = %v, want ErrCancelled", err)
	}
	if n := sess.frees.Load(); n != 1 {
		t.Fatalf("teardown calls = %d, want 1", n)
	}
}

func TestClient_FinalizerReleases(t *testing.T) {
	sess := newFakeSession()
	func() {
		_, err := New("udid", &ServiceDescriptor{}, WithSessionBackend(&fakeBackend{sess: sess}))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for sess.frees.Load() == 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if n := sess.frees.Load(); n != 1 {
		t.Fatalf("teardown calls = %d, want 1", n)
	}
}

func TestClient_CancelAndFinishDoNotConsume(t *testing.T) {
	c, sess := newTestClient(t)

	if err := c.Cancel("first"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := c.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := c.Cancel("second"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if sess.count("cancel") != 2 || sess.count("finish") != 1 {
		t.Errorf("calls = %v", sess.calls)
	}
	if n := sess.frees.Load(); n != 0 {
		t.Errorf("teardown calls = %d, want 0", n)
	}
}

func TestClient_RemapIdentifiersRejectsNonSequence(t *testing.T) {
	tests := []struct {
		name    string
		mapping any
	}{
		{"nil", nil},
		{"dict", map[string]any{"a": "b"}},
		{"string", "a,b"},
		{"data", []byte{1, 2, 3}},
		{"integer", 42},
		{"bool", true},
		{"struct", struct{ A string }{"a"}},
		{"pointer to slice", &[]any{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sess := newTestClient(t)
			_, err := c.RemapIdentifiers(tt.mapping)
			var merr *Error
			if !errors.As(err, &merr) || merr.Code != InvalidArg {
				t.Fatalf("RemapIdentifiers(%v) error = %v, want InvalidArg", tt.mapping, err)
			}
			if n := sess.total(); n != 0 {
				t.Errorf("native calls = %d, want 0", n)
			}
		})
	}
}

func TestClient_RemapIdentifiersSequence(t *testing.T) {
	tests := []struct {
		name    string
		mapping any
		want    int
	}{
		{"any slice", []any{"a", "b"}, 2},
		{"empty", []any{}, 0},
		{"string slice", []string{"a", "b", "c"}, 3},
		{"array", [2]int{1, 2}, 2},
		{"nested", []map[string]any{{"a": "b"}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sess := newTestClient(t)
			sess.remapped = map[string]any{"local-1": "device-9"}

			got, err := c.RemapIdentifiers(tt.mapping)
			if err != nil {
				t.Fatalf("RemapIdentifiers() error = %v", err)
			}
			if sess.count("remap") != 1 {
				t.Fatalf("remap calls = %d, want 1", sess.count("remap"))
			}
			if len(sess.gotMapping) != tt.want {
				t.Errorf("forwarded %d items, want %d", len(sess.gotMapping), tt.want)
			}
			if got["local-1"] != "device-9" {
				t.Errorf("remapped = %v", got)
			}
		})
	}
}

func TestClient_ReceiveChangesMoreFlag(t *testing.T) {
	tests := []struct {
		flag int
		want bool
	}{
		{0, false},
		{1, true},
		{7, true},
		{-1, true},
	}
	for _, tt := range tests {
		c, sess := newTestClient(t)
		sess.more = tt.flag

		changes, err := c.ReceiveChanges()
		if err != nil {
			t.Fatalf("ReceiveChanges() error = %v", err)
		}
		if changes.MoreChanges != tt.want {
			t.Errorf("flag %d: MoreChanges = %t, want %t", tt.flag, changes.MoreChanges, tt.want)
		}

		changes, err = c.GetAllRecordsFromDevice()
		if err != nil {
			t.Fatalf("GetAllRecordsFromDevice() error = %v", err)
		}
		if changes.MoreChanges != tt.want {
			t.Errorf("flag %d: GetAllRecordsFromDevice MoreChanges = %t, want %t", tt.flag, changes.MoreChanges, tt.want)
		}
	}
}

func TestClient_StartResetFailure(t *testing.T) {
	c, sess := newTestClient(t)
	sess.code = SyncRefused
	sess.startDesc = "device refused to sync com.test"

	_, err := c.Start("com.test", nil, 1, Reset)
	var merr *Error
	if !errors.As(err, &merr) {
		t.Fatalf("Start() error = %v, want *Error", err)
	}
	if merr.Code != SyncRefused {
		t.Errorf("Code = %s, want %s", merr.Code, SyncRefused)
	}
	if merr.Description != sess.startDesc {
		t.Errorf("Description = %q, want %q", merr.Description, sess.startDesc)
	}
	if !strings.Contains(err.Error(), sess.startDesc) || !strings.Contains(err.Error(), SyncRefused.String()) {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, ErrSyncRefused) {
		t.Error("errors.Is(err, ErrSyncRefused) = false")
	}
	if sess.gotDataClass != "com.test" || sess.gotVersion != 1 || sess.gotMode != Reset || sess.gotAnchors != nil {
		t.Errorf("native got (%q, %v, %d, %s)", sess.gotDataClass, sess.gotAnchors, sess.gotVersion, sess.gotMode)
	}
}

func TestClient_StartSuccess(t *testing.T) {
	c, sess := newTestClient(t)
	sess.startRes = StartResult{Mode: Slow, DeviceDataClassVersion: 106}

	anchors := NewAnchors("dev", "host")
	res, err := c.Start("com.apple.Contacts", []*Anchors{anchors, NewAnchors("x", "y")}, 106, Fast)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if *res != sess.startRes {
		t.Errorf("Start() = %+v, want %+v", *res, sess.startRes)
	}
	if sess.gotAnchors != anchors {
		t.Errorf("first anchor pair not forwarded")
	}
	if _, err := c.Start("com.test", nil, 1, SyncType(9)); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("Start(invalid mode) error = %v", err)
	}
	if sess.count("start") != 1 {
		t.Errorf("start calls = %d, want 1", sess.count("start"))
	}
}

func TestAnchors(t *testing.T) {
	tests := []struct {
		device   string
		computer string
	}{
		{"", ""},
		{"---", "9C6A3A63-0D0B-4BB5-A5A1-6B6B3F0E4E7A"},
		{"device-anchor", "computer-anchor"},
		{"with\x00nul", "tail\x00"},
		{"ünïcødé", "日本"},
	}
	for _, tt := range tests {
		a := NewAnchors(tt.device, tt.computer)
		if a.DeviceAnchor() != tt.device {
			t.Errorf("DeviceAnchor() = %q, want %q", a.DeviceAnchor(), tt.device)
		}
		if a.ComputerAnchor() != tt.computer {
			t.Errorf("ComputerAnchor() = %q, want %q", a.ComputerAnchor(), tt.computer)
		}
	}
	if a, b := NewHostAnchor(), NewHostAnchor(); a == "" || a == b {
		t.Errorf("NewHostAnchor() = %q, %q", a, b)
	}
}

func TestParseSyncType(t *testing.T) {
	for in, want := range map[string]SyncType{"fast": Fast, "Slow": Slow, " RESET ": Reset} {
		got, err := ParseSyncType(in)
		if err != nil || got != want {
			t.Errorf("ParseSyncType(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ParseSyncType("incremental"); err == nil {
		t.Error("ParseSyncType(incremental) succeeded")
	}

	var st SyncType
	if err := st.UnmarshalText([]byte("reset")); err != nil || st != Reset {
		t.Errorf("UnmarshalText = %s, %v", st, err)
	}
	if b, err := Slow.MarshalText(); err != nil || string(b) != "slow" {
		t.Errorf("MarshalText = %s, %v", b, err)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		in   int
		want Code
	}{
		{0, Success},
		{-1, InvalidArg},
		{-7, SyncRefused},
		{-10, NotReady},
		{-11, UnknownError},
		{5, UnknownError},
		{-256, UnknownError},
	}
	for _, tt := range tests {
		if got := CodeOf(tt.in); got != tt.want {
			t.Errorf("CodeOf(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestActions(t *testing.T) {
	a := NewActions().EntityNames("com.apple.contacts.Contact").AllRecordsSent(true)
	names, ok := a[EntityNamesKey].([]any)
	if !ok || len(names) != 1 || names[0] != "com.apple.contacts.Contact" {
		t.Errorf("%s = %v", EntityNamesKey, a[EntityNamesKey])
	}
	if a[AllRecordsOfPulledEntityKey] != true {
		t.Errorf("%s = %v", AllRecordsOfPulledEntityKey, a[AllRecordsOfPulledEntityKey])
	}
}

func TestBackends(t *testing.T) {
	found := false
	for _, name := range Backends() {
		if name == DefaultBackend {
			found = true
		}
	}
	if !found {
		t.Errorf("Backends() = %v, missing %s", Backends(), DefaultBackend)
	}
	if _, err := New("udid", &ServiceDescriptor{}, WithBackend("nope")); err == nil {
		t.Error("New() with unknown backend succeeded")
	}
}
