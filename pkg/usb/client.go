package usb

import (
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/blacktop/go-plist"
	"github.com/spf13/cast"
)

const (
	// EmptyParameterString is the DeviceLink placeholder for an absent argument.
	EmptyParameterString = "___EmptyParameterString___"

	maxServiceMessageSize = 64 << 20
)

var (
	// ErrMalformedPlist wraps every decode failure of a message read off the wire.
	ErrMalformedPlist = errors.New("malformed plist message")
	// ErrBadVersion is returned when the device speaks a newer DeviceLink
	// protocol than the host asked for.
	ErrBadVersion = errors.New("unsupported device link version")
)

type Client struct {
	tlsConn    *tls.Conn
	conn       net.Conn
	udid       string
	pairRecord *PairRecord
}

func NewClient(udid string, port int) (*Client, error) {
	conn, err := NewConn()
	if err != nil {
		return nil, err
	}

	pairRecord, err := conn.ReadPairRecord(udid)
	if err != nil {
		conn.Close()
		return nil, err
	}

	devices, err := conn.ListDevices()
	if err != nil {
		conn.Close()
		return nil, err
	}

	deviceID := -1
	for _, device := range devices {
		if device.Identifier() == udid {
			deviceID = device.DeviceID
			break
		}
	}

	if deviceID < 0 {
		conn.Close()
		return nil, fmt.Errorf("unable to find device with udid: %v", udid)
	}

	if err := conn.Dial(deviceID, port); err != nil {
		conn.Close()
		return nil, err
	}

	return &Client{
		conn:       conn,
		pairRecord: pairRecord,
		udid:       udid,
	}, nil
}

// NewClientWithConn wraps an already connected service socket.
func NewClientWithConn(conn net.Conn, udid string, pairRecord *PairRecord) *Client {
	return &Client{
		conn:       conn,
		udid:       udid,
		pairRecord: pairRecord,
	}
}

func (c *Client) EnableSSL() error {
	if c.pairRecord == nil {
		return fmt.Errorf("no pair record for %s", c.udid)
	}
	cert, err := tls.X509KeyPair(c.pairRecord.HostCertificate, c.pairRecord.HostPrivateKey)
	if err != nil {
		return err
	}

	c.tlsConn = tls.Client(c.conn, &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true,
	})
	if err := c.tlsConn.Handshake(); err != nil {
		return err
	}

	return nil
}

func (c *Client) Request(req, resp any) error {
	if err := c.Send(req); err != nil {
		return err
	}

	return c.Recv(resp)
}

func (c *Client) Send(req any) error {
	data, err := plist.Marshal(req, plist.XMLFormat)
	if err != nil {
		return err
	}

	if err := binary.Write(c.Conn(), binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}

	return binary.Write(c.Conn(), binary.BigEndian, data)
}

func (c *Client) Recv(resp any) error {
	data, err := c.RecvBytes()
	if err != nil {
		return err
	}

	if _, err := plist.Unmarshal(data, resp); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPlist, err)
	}

	return nil
}

func (c *Client) RecvBytes() ([]byte, error) {
	size := uint32(0)
	if err := binary.Read(c.Conn(), binary.BigEndian, &size); err != nil {
		return nil, err
	}
	if size > maxServiceMessageSize {
		return nil, fmt.Errorf("%w: message of %d bytes", ErrMalformedPlist, size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(c.Conn(), data); err != nil {
		return nil, err
	}

	return data, nil
}

func (c *Client) Conn() net.Conn {
	if c.tlsConn != nil {
		return c.tlsConn
	}

	return c.conn
}

func (c *Client) PairRecord() *PairRecord {
	return c.pairRecord
}

func (c *Client) Close() error {
	return c.Conn().Close()
}

// DeviceLinkVersionExchange performs the DeviceLink handshake and fails with
// ErrBadVersion if the device announces a protocol newer than major.minor.
func (c *Client) DeviceLinkVersionExchange(major, minor uint64) error {
	msg, err := c.DeviceLinkRecvRaw()
	if err != nil {
		return err
	}
	if len(msg) < 3 || msg[0] != "DLMessageVersionExchange" {
		return fmt.Errorf("%w: expected DLMessageVersionExchange, got %v", ErrMalformedPlist, msg)
	}
	vmajor, err := cast.ToUint64E(msg[1])
	if err != nil {
		return fmt.Errorf("%w: major version: %v", ErrMalformedPlist, err)
	}
	vminor, err := cast.ToUint64E(msg[2])
	if err != nil {
		return fmt.Errorf("%w: minor version: %v", ErrMalformedPlist, err)
	}
	if vmajor > major || (vmajor == major && vminor > minor) {
		return fmt.Errorf("%w: device has %d.%d, host supports %d.%d", ErrBadVersion, vmajor, vminor, major, minor)
	}

	if err := c.Send([]any{"DLMessageVersionExchange", "DLVersionsOk", major}); err != nil {
		return err
	}

	ready, err := c.DeviceLinkRecvRaw()
	if err != nil {
		return err
	}
	if len(ready) == 0 || ready[0] != "DLMessageDeviceReady" {
		return fmt.Errorf("%w: expected DLMessageDeviceReady, got %v", ErrMalformedPlist, ready)
	}

	return nil
}

// DeviceLinkRecvRaw reads one DeviceLink message without unwrapping it.
func (c *Client) DeviceLinkRecvRaw() ([]any, error) {
	var msg []any
	if err := c.Recv(&msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Client) DeviceLinkPing(message string) error {
	return c.Send([]any{"DLMessagePing", message})
}

// DeviceLinkDisconnect tells the device the host is going away. An empty
// message is sent as the DeviceLink empty parameter.
func (c *Client) DeviceLinkDisconnect(message string) error {
	if message == "" {
		message = EmptyParameterString
	}
	return c.Send([]any{"DLMessageDisconnect", message})
}
