package mobilesync

//go:generate go tool stringer -type=SyncType -output sync_string.go

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	ServiceName = "com.apple.mobilesync"

	// DeviceLink protocol version spoken by the host.
	VersionMajor = 400
	VersionMinor = 100

	// Action keys understood by SendChanges.
	EntityNamesKey              = "SyncDeviceLinkEntityNamesKey"
	AllRecordsOfPulledEntityKey = "SyncDeviceLinkAllRecordsOfPulledEntityTypeSentKey"
)

// SyncType is the synchronization strategy of a session.
type SyncType uint32

const (
	Fast SyncType = iota
	Slow
	Reset
)

// ParseSyncType parses "fast", "slow" or "reset" (case insensitive).
func ParseSyncType(s string) (SyncType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast":
		return Fast, nil
	case "slow":
		return Slow, nil
	case "reset":
		return Reset, nil
	}
	return 0, fmt.Errorf("unknown sync type %q", s)
}

func (t *SyncType) UnmarshalText(text []byte) error {
	v, err := ParseSyncType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t SyncType) MarshalText() ([]byte, error) {
	if t > Reset {
		return nil, fmt.Errorf("invalid sync type %d", t)
	}
	return []byte(strings.ToLower(t.String())), nil
}

// Anchors holds the device and computer synchronization anchors of a data
// class. The zero value has neither anchor set.
type Anchors struct {
	device   string
	computer string
}

func NewAnchors(device, computer string) *Anchors {
	return &Anchors{device: device, computer: computer}
}

// NewHostAnchor returns a fresh computer anchor.
func NewHostAnchor() string {
	return uuid.NewString()
}

func (a *Anchors) DeviceAnchor() string {
	return a.device
}

func (a *Anchors) ComputerAnchor() string {
	return a.computer
}

func (a *Anchors) String() string {
	return fmt.Sprintf("device=%q computer=%q", a.device, a.computer)
}

// ServiceDescriptor is a service lockdownd has already started on the device.
type ServiceDescriptor struct {
	Port       uint16
	SSLEnabled bool
	Identifier string
}

// StartResult is what the device answered to Start.
type StartResult struct {
	// Mode is the sync type the device chose, which may differ from the
	// one that was asked for.
	Mode                   SyncType
	DeviceDataClassVersion uint64
}

// Changes is one batch of records received from the device.
type Changes struct {
	Entities    map[string]any
	MoreChanges bool
	Actions     map[string]any
}

// Actions are the optional instructions passed along with SendChanges.
type Actions map[string]any

func NewActions() Actions {
	return make(Actions)
}

// EntityNames limits the device reply to the named entity types.
func (a Actions) EntityNames(names ...string) Actions {
	v := make([]any, 0, len(names))
	for _, n := range names {
		v = append(v, n)
	}
	a[EntityNamesKey] = v
	return a
}

// AllRecordsSent marks that every record of the pulled entity type was sent.
func (a Actions) AllRecordsSent(sent bool) Actions {
	a[AllRecordsOfPulledEntityKey] = sent
	return a
}
