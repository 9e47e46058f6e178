package mobilesync

import (
	"fmt"
	"sort"
	"sync"
)

// Backend opens native mobilesync sessions. A failed open returns a non
// Success Code and no Session.
type Backend interface {
	NewSession(udid string, desc *ServiceDescriptor) (Session, Code)
	StartService(udid, label string) (Session, Code)
}

// Session is one native mobilesync session. Every call reports the native
// status code; Client translates it. Free is called exactly once.
type Session interface {
	Send(msg any) Code
	Receive() (any, Code)
	// Start returns the native diagnostic text alongside a failing code.
	Start(dataClass string, anchors *Anchors, hostVersion uint64, mode SyncType) (StartResult, string, Code)
	Cancel(reason string) Code
	Finish() Code
	GetAllRecordsFromDevice() Code
	GetChangesFromDevice() Code
	// ReceiveChanges reports "more changes follow" as a native integer flag.
	ReceiveChanges() (entities map[string]any, more int, actions map[string]any, code Code)
	ClearAllRecordsOnDevice() Code
	AcknowledgeChangesFromDevice() Code
	ReadyToSendChangesFromComputer() Code
	SendChanges(entities map[string]any, isLast bool, actions map[string]any) Code
	RemapIdentifiers(mapping []any) (map[string]any, Code)
	Free() Code
}

// DefaultBackend is used when no WithBackend option is given.
const DefaultBackend = "devicelink"

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// RegisterBackend makes a backend available by name. It panics if called
// twice with the same name or with a nil backend.
func RegisterBackend(name string, b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if b == nil {
		panic("mobilesync: RegisterBackend backend is nil")
	}
	if _, dup := backends[name]; dup {
		panic("mobilesync: RegisterBackend called twice for backend " + name)
	}
	backends[name] = b
}

func lookupBackend(name string) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("mobilesync: unknown backend %q (available: %v)", name, backendNames())
	}
	return b, nil
}

// Backends returns the sorted names of the registered backends.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	return backendNames()
}

func backendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
