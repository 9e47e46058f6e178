package event

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		raw     *RawEvent
		want    Event
		wantErr error
	}{
		{
			name:    "nil",
			raw:     nil,
			wantErr: ErrNilEvent,
		},
		{
			name:    "missing udid",
			raw:     &RawEvent{Type: int32(Add), ConnType: int32(USBMux)},
			wantErr: ErrMissingUDID,
		},
		{
			name:    "unknown kind",
			raw:     &RawEvent{Type: 42, UDID: "abc"},
			wantErr: ErrUnknownKind,
		},
		{
			name:    "zero kind",
			raw:     &RawEvent{UDID: "abc"},
			wantErr: ErrUnknownKind,
		},
		{
			name: "attach over network",
			raw:  &RawEvent{Type: int32(Add), UDID: "abc", ConnType: int32(Network)},
			want: Event{kind: Add, udid: "abc", conn: Network},
		},
		{
			name: "paired without connection type",
			raw:  &RawEvent{Type: int32(Paired), UDID: "abc"},
			want: Event{kind: Paired, udid: "abc", conn: USBMux},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventString(t *testing.T) {
	evt := Event{kind: Remove, udid: "00008110-001", conn: USBMux}
	if got, want := evt.String(), "Remove 00008110-001 (USBMux)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := Kind(9).String(); got != "Kind(9)" {
		t.Errorf("Kind(9).String() = %q", got)
	}
}
