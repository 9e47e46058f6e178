package usb

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/blacktop/go-plist"
)

// fakeMux plays usbmuxd on the far side of a net.Pipe.
type fakeMux struct {
	t    *testing.T
	conn net.Conn
}

func newFakeMux(t *testing.T) (*fakeMux, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return &fakeMux{t: t, conn: server}, client
}

func (f *fakeMux) recv(v any) bool {
	var hdr Header
	if err := binary.Read(f.conn, binary.LittleEndian, &hdr); err != nil {
		f.t.Errorf("fake usbmuxd: read header: %v", err)
		return false
	}
	data := make([]byte, hdr.Length-HeaderSize)
	if _, err := io.ReadFull(f.conn, data); err != nil {
		f.t.Errorf("fake usbmuxd: read body: %v", err)
		return false
	}
	if _, err := plist.Unmarshal(data, v); err != nil {
		f.t.Errorf("fake usbmuxd: decode: %v", err)
		return false
	}
	return true
}

func (f *fakeMux) send(v any) bool {
	data, err := plist.Marshal(v, plist.XMLFormat)
	if err != nil {
		f.t.Errorf("fake usbmuxd: encode: %v", err)
		return false
	}
	hdr := Header{Length: uint32(len(data)) + HeaderSize, Version: 1, MessageType: plistMessageType}
	if err := binary.Write(f.conn, binary.LittleEndian, hdr); err != nil {
		return false
	}
	_, err = f.conn.Write(data)
	return err == nil
}

// fakeService plays a lockdown service (4 byte big endian length + plist).
type fakeService struct {
	t    *testing.T
	conn net.Conn
}

func newFakeService(t *testing.T) (*fakeService, *Client) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return &fakeService{t: t, conn: server}, NewClientWithConn(client, "test-udid", nil)
}

func (f *fakeService) recv(v any) bool {
	var size uint32
	if err := binary.Read(f.conn, binary.BigEndian, &size); err != nil {
		f.t.Errorf("fake service: read size: %v", err)
		return false
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(f.conn, data); err != nil {
		f.t.Errorf("fake service: read body: %v", err)
		return false
	}
	if _, err := plist.Unmarshal(data, v); err != nil {
		f.t.Errorf("fake service: decode: %v", err)
		return false
	}
	return true
}

func (f *fakeService) send(v any) bool {
	data, err := plist.Marshal(v, plist.XMLFormat)
	if err != nil {
		f.t.Errorf("fake service: encode: %v", err)
		return false
	}
	if err := binary.Write(f.conn, binary.BigEndian, uint32(len(data))); err != nil {
		return false
	}
	_, err = f.conn.Write(data)
	return err == nil
}
