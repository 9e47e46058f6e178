package usb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"syscall"

	"github.com/blacktop/go-plist"
	"github.com/fatih/color"
)

const (
	ProgName            = "idevice"
	BundleID            = "io.blacktop.idevice"
	ClientVersionString = "idevice-usbmux-0.0.1"

	libUSBMuxVersion = 3
	plistMessageType = 8
	// usbmuxd replies are small dictionaries; anything bigger is a broken stream
	maxMessageSize = 16 << 20
)

var colorFaint = color.New(color.Faint, color.FgHiBlue).SprintFunc()
var colorBold = color.New(color.Bold).SprintFunc()

// ErrMalformedHeader is returned when usbmuxd sends a header whose length
// cannot describe a valid message.
var ErrMalformedHeader = errors.New("malformed usbmuxd header")

type Header struct {
	Length      uint32
	Version     uint32
	MessageType uint32
	Tag         uint32
}

var HeaderSize = uint32(binary.Size(Header{}))

type Conn struct {
	net.Conn
	tag uint32
}

func NewConn() (*Conn, error) {
	conn, err := usbmuxdDial()
	if err != nil {
		return nil, err
	}

	return &Conn{Conn: conn}, nil
}

type ResultValue int

const (
	ResultValueOK ResultValue = iota
	ResultValueBadCommand
	ResultValueBadDevice
	ResultValueConnectionRefused
	ResultValueConnectionUnknown1
	ResultValueConnectionUnknown2
	ResultValueBadVersion
)

func (r ResultValue) Error() string {
	switch r {
	case ResultValueOK:
		return "ok"
	case ResultValueBadCommand:
		return "bad command"
	case ResultValueBadDevice:
		return "bad device"
	case ResultValueConnectionRefused:
		return "connection refused"
	case ResultValueBadVersion:
		return "bad version"
	default:
		return fmt.Sprintf("usbmuxd result %d", int(r))
	}
}

type connectMessage struct {
	BundleID            string
	ClientVersionString string
	MessageType         string
	ProgName            string
	LibUSBMuxVersion    uint32 `plist:"kLibUSBMuxVersion"`
	DeviceID            uint32
	PortNumber          uint16
}

type resultResponse struct {
	MessageType string
	Number      ResultValue
}

func (c *Conn) Dial(deviceId, port int) error {
	req := &connectMessage{
		BundleID:            BundleID,
		ClientVersionString: ClientVersionString,
		MessageType:         "Connect",
		ProgName:            ProgName,
		LibUSBMuxVersion:    libUSBMuxVersion,
		DeviceID:            uint32(deviceId),
		PortNumber:          htons(uint16(port)),
	}
	var resp resultResponse
	if err := c.Request(req, &resp); err != nil {
		return err
	}

	switch resp.Number {
	case ResultValueOK:
		return nil
	case ResultValueConnectionRefused:
		return syscall.ECONNREFUSED
	default:
		return fmt.Errorf("failed to connect to device %d port %d: %w", deviceId, port, resp.Number)
	}
}

type listDevicesRequest struct {
	MessageType         string
	ProgName            string
	ClientVersionString string
}

type listDevicesResponse struct {
	DeviceList []*DeviceAttached
}

type DeviceAttached struct {
	MessageType string
	DeviceID    int
	Properties  *DeviceAttachment
}

type DeviceAttachment struct {
	ConnectionSpeed int
	ConnectionType  string
	DeviceID        int
	LocationID      int
	ProductID       int
	SerialNumber    string
	UDID            string
	USBSerialNumber string
}

// Identifier returns the UDID usbmuxd reported for the device. Older usbmuxd
// builds only fill SerialNumber.
func (d DeviceAttachment) Identifier() string {
	if d.UDID != "" {
		return d.UDID
	}
	return d.SerialNumber
}

func (d DeviceAttachment) String() string {
	return fmt.Sprintf(
		colorFaint("DeviceID: ")+colorBold("%d\n")+
			colorFaint("    ConnectionType:  ")+colorBold("%s\n")+
			colorFaint("    ConnectionSpeed: ")+colorBold("%d\n")+
			colorFaint("    ProductID:       ")+colorBold("%#x\n")+
			colorFaint("    LocationID:      ")+colorBold("%d\n")+
			colorFaint("    SerialNumber:    ")+colorBold("%s\n")+
			colorFaint("    UDID:            ")+colorBold("%s\n"),
		d.DeviceID,
		d.ConnectionType,
		d.ConnectionSpeed,
		d.ProductID,
		d.LocationID,
		d.SerialNumber,
		d.Identifier(),
	)
}

func (c *Conn) ListDevices() ([]*DeviceAttachment, error) {
	req := &listDevicesRequest{
		MessageType:         "ListDevices",
		ProgName:            ProgName,
		ClientVersionString: ClientVersionString,
	}
	var resp listDevicesResponse
	if err := c.Request(req, &resp); err != nil {
		return nil, err
	}

	devices := make([]*DeviceAttachment, 0, len(resp.DeviceList))
	for _, device := range resp.DeviceList {
		if device.Properties == nil {
			continue
		}
		devices = append(devices, device.Properties)
	}

	return devices, nil
}

type listenRequest struct {
	MessageType         string
	ProgName            string
	ClientVersionString string
	LibUSBMuxVersion    uint32 `plist:"kLibUSBMuxVersion"`
}

// Listen turns the connection into an event stream. After it returns nil
// every message read from c is an Attached, Detached or Paired notification.
func (c *Conn) Listen() error {
	req := &listenRequest{
		MessageType:         "Listen",
		ProgName:            ProgName,
		ClientVersionString: ClientVersionString,
		LibUSBMuxVersion:    libUSBMuxVersion,
	}
	var resp resultResponse
	if err := c.Request(req, &resp); err != nil {
		return err
	}
	if resp.Number != ResultValueOK {
		return fmt.Errorf("usbmuxd refused listen request: %w", resp.Number)
	}
	return nil
}

type PairRecord struct {
	DeviceCertificate []byte
	EscrowBag         []byte
	HostCertificate   []byte
	HostID            string
	HostPrivateKey    []byte
	RootCertificate   []byte
	RootPrivateKey    []byte
	SystemBUID        string
}

type readPairRecordRequest struct {
	BundleID            string
	ClientVersionString string
	ProgName            string
	MessageType         string
	PairRecordID        string `plist:"PairRecordID"`
	LibUSBMuxVersion    uint32 `plist:"kLibUSBMuxVersion"`
}

type readPairRecordResponse struct {
	Number         ResultValue
	PairRecordData []byte
}

func (c *Conn) ReadPairRecord(udid string) (*PairRecord, error) {
	req := &readPairRecordRequest{
		BundleID:            BundleID,
		MessageType:         "ReadPairRecord",
		ClientVersionString: ClientVersionString,
		ProgName:            ProgName,
		PairRecordID:        udid,
		LibUSBMuxVersion:    libUSBMuxVersion,
	}
	var resp readPairRecordResponse
	if err := c.Request(req, &resp); err != nil {
		return nil, err
	}
	if len(resp.PairRecordData) == 0 {
		return nil, fmt.Errorf("no pair record for %s: %w", udid, resp.Number)
	}

	var record PairRecord
	if _, err := plist.Unmarshal(resp.PairRecordData, &record); err != nil {
		return nil, fmt.Errorf("%w: pair record: %v", ErrMalformedPlist, err)
	}

	return &record, nil
}

func (c *Conn) Request(req, resp any) error {
	if err := c.Send(req); err != nil {
		return err
	}

	return c.Recv(resp)
}

func (c *Conn) Send(msg any) error {
	data, err := plist.Marshal(msg, plist.XMLFormat)
	if err != nil {
		return err
	}

	hdr := &Header{
		Length:      uint32(len(data)) + HeaderSize,
		Version:     1,
		MessageType: plistMessageType,
		Tag:         atomic.AddUint32(&c.tag, 1),
	}
	if err := binary.Write(c, binary.LittleEndian, hdr); err != nil {
		return err
	}

	return binary.Write(c, binary.LittleEndian, data)
}

func (c *Conn) Recv(msg any) error {
	var hdr Header
	if err := binary.Read(c, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	if hdr.Length < HeaderSize || hdr.Length-HeaderSize > maxMessageSize {
		return fmt.Errorf("%w: length %d", ErrMalformedHeader, hdr.Length)
	}

	data := make([]byte, hdr.Length-HeaderSize)
	if _, err := io.ReadFull(c, data); err != nil {
		return err
	}

	if _, err := plist.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPlist, err)
	}

	return nil
}

func htons(v uint16) uint16 {
	return (v << 8 & 0xFF00) | (v >> 8 & 0xFF)
}
