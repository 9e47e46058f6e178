package usb

import (
	"errors"
	"testing"
)

func TestClient_DeviceLinkVersionExchange(t *testing.T) {
	tests := []struct {
		name    string
		major   uint64
		minor   uint64
		wantErr error
	}{
		{name: "same version", major: 400, minor: 100},
		{name: "older device", major: 300, minor: 200},
		{name: "newer major", major: 500, minor: 0, wantErr: ErrBadVersion},
		{name: "newer minor", major: 400, minor: 101, wantErr: ErrBadVersion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, cli := newFakeService(t)
			done := make(chan struct{})
			go func() {
				defer close(done)
				if !dev.send([]any{"DLMessageVersionExchange", tt.major, tt.minor}) {
					return
				}
				if tt.wantErr != nil {
					return
				}
				var reply []any
				if !dev.recv(&reply) {
					return
				}
				if len(reply) != 3 || reply[1] != "DLVersionsOk" {
					t.Errorf("reply = %v", reply)
				}
				dev.send([]any{"DLMessageDeviceReady"})
			}()

			err := cli.DeviceLinkVersionExchange(400, 100)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("DeviceLinkVersionExchange() = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Errorf("DeviceLinkVersionExchange() = %v", err)
			}
			<-done
		})
	}
}

func TestClient_DeviceLinkVersionExchange_Malformed(t *testing.T) {
	dev, cli := newFakeService(t)
	go dev.send([]any{"DLMessageProcessMessage"})

	if err := cli.DeviceLinkVersionExchange(400, 100); !errors.Is(err, ErrMalformedPlist) {
		t.Errorf("DeviceLinkVersionExchange() = %v, want ErrMalformedPlist", err)
	}
}

func TestClient_DeviceLinkDisconnect(t *testing.T) {
	dev, cli := newFakeService(t)
	got := make(chan []any, 2)
	go func() {
		for range 2 {
			var msg []any
			if !dev.recv(&msg) {
				return
			}
			got <- msg
		}
	}()

	if err := cli.DeviceLinkDisconnect(""); err != nil {
		t.Fatal(err)
	}
	if err := cli.DeviceLinkPing("Preparing"); err != nil {
		t.Fatal(err)
	}
	if msg := <-got; msg[0] != "DLMessageDisconnect" || msg[1] != EmptyParameterString {
		t.Errorf("disconnect = %v", msg)
	}
	if msg := <-got; msg[0] != "DLMessagePing" || msg[1] != "Preparing" {
		t.Errorf("ping = %v", msg)
	}
}
