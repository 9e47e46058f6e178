package mobilesync

import (
	"crypto/tls"
	"os"

	"github.com/apex/log"
	"github.com/blacktop/go-idevice/pkg/usb"
	"github.com/blacktop/go-idevice/pkg/usb/lockdownd"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

const (
	msgSyncDataClassWithDevice   = "SDMessageSyncDataClassWithDevice"
	msgSyncDataClassWithComputer = "SDMessageSyncDataClassWithComputer"
	msgRefuseToSync              = "SDMessageRefuseToSyncDataClassWithComputer"
	msgCancelSession             = "SDMessageCancelSession"
	msgFinishSession             = "SDMessageFinishSessionOnDevice"
	msgDidFinishSession          = "SDMessageDidFinishSessionOnDevice"
	msgGetAllRecords             = "SDMessageGetAllRecordsFromDevice"
	msgGetChanges                = "SDMessageGetChangesFromDevice"
	msgAcknowledgeChanges        = "SDMessageAcknowledgeChangesFromDevice"
	msgReadyToReceiveChanges     = "SDMessageDeviceReadyToReceiveChanges"
	msgProcessChanges            = "SDMessageProcessChanges"
	msgRemapRecordIdentifiers    = "SDMessageRemapRecordIdentifiers"
	msgClearAllRecords           = "SDMessageClearAllRecordsOnDevice"
	msgWillClearAllRecords       = "SDMessageDeviceWillClearAllRecords"

	unknownDeviceAnchor = "---"
	pingMessage         = "Preparing to get changes for device"
	disconnectMessage   = "All done, thanks for the memories"
)

var syncTypes = map[string]SyncType{
	"SDSyncTypeFast":  Fast,
	"SDSyncTypeSlow":  Slow,
	"SDSyncTypeReset": Reset,
}

func init() {
	RegisterBackend(DefaultBackend, deviceLinkBackend{})
}

// deviceLinkBackend speaks the mobilesync DeviceLink protocol directly over
// usbmuxd.
type deviceLinkBackend struct{}

func (b deviceLinkBackend) NewSession(udid string, desc *ServiceDescriptor) (Session, Code) {
	cli, err := usb.NewClient(udid, int(desc.Port))
	if err != nil {
		log.WithError(err).Debugf("mobilesync: connect to %s port %d", udid, desc.Port)
		return nil, MuxError
	}
	if desc.SSLEnabled {
		if err := cli.EnableSSL(); err != nil {
			log.WithError(err).Debug("mobilesync: enable ssl")
			cli.Close()
			return nil, SSLError
		}
	}
	return newDeviceLinkSession(cli)
}

func (b deviceLinkBackend) StartService(udid, label string) (Session, Code) {
	svc, err := lockdownd.StartService(udid, ServiceName, label, false)
	if err != nil {
		return nil, startServiceCode(err)
	}
	return b.NewSession(udid, &ServiceDescriptor{
		Port:       uint16(svc.Port),
		SSLEnabled: svc.EnableServiceSSL,
		Identifier: ServiceName,
	})
}

// startServiceCode classifies a lockdownd.StartService failure: a request
// lockdownd refused is UnknownError, a broken transport keeps its own code.
func startServiceCode(err error) Code {
	log.WithError(err).Debug("mobilesync: lockdownd start service")
	switch cause := errors.Cause(err).(type) {
	case *lockdownd.Error:
		return UnknownError
	default:
		return codeFor("start service", cause)
	}
}

type direction int

const (
	deviceToComputer direction = iota + 1
	computerToDevice
)

type deviceLinkSession struct {
	cli       *usb.Client
	dataClass string
	direction direction
}

func newDeviceLinkSession(cli *usb.Client) (Session, Code) {
	if err := cli.DeviceLinkVersionExchange(VersionMajor, VersionMinor); err != nil {
		cli.Close()
		return nil, codeFor("version exchange", err)
	}
	return &deviceLinkSession{cli: cli}, Success
}

func codeFor(op string, err error) Code {
	if err == nil {
		return Success
	}
	log.WithError(errors.Wrap(err, op)).Debug("mobilesync: devicelink")
	var recErr tls.RecordHeaderError
	switch {
	case errors.Is(err, usb.ErrBadVersion):
		return BadVersion
	case errors.Is(err, usb.ErrMalformedPlist):
		return PlistError
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ReceiveTimeout
	case errors.As(err, &recErr):
		return SSLError
	default:
		return MuxError
	}
}

func stringAt(msg []any, i int) string {
	if i >= len(msg) {
		return ""
	}
	s, _ := msg[i].(string)
	return s
}

func dictAt(msg []any, i int) map[string]any {
	if i >= len(msg) {
		return nil
	}
	d, _ := msg[i].(map[string]any)
	return d
}

func (s *deviceLinkSession) recv(op string) ([]any, Code) {
	msg, err := s.cli.DeviceLinkRecvRaw()
	if err != nil {
		return nil, codeFor(op, err)
	}
	return s.inspect(msg)
}

// request sends req and reads the device's reply to it.
func (s *deviceLinkSession) request(op string, req []any) ([]any, Code) {
	var msg []any
	if err := s.cli.Request(req, &msg); err != nil {
		return nil, codeFor(op, err)
	}
	return s.inspect(msg)
}

// inspect resets the session when the device cancelled it.
func (s *deviceLinkSession) inspect(msg []any) ([]any, Code) {
	if len(msg) == 0 {
		return nil, PlistError
	}
	if stringAt(msg, 0) == msgCancelSession {
		log.Debugf("mobilesync: device cancelled session: %s", stringAt(msg, 2))
		s.reset()
		return msg, Cancelled
	}
	return msg, Success
}

func (s *deviceLinkSession) reset() {
	s.dataClass = ""
	s.direction = 0
}

func (s *deviceLinkSession) Send(msg any) Code {
	return codeFor("send", s.cli.Send(msg))
}

func (s *deviceLinkSession) Receive() (any, Code) {
	var msg any
	if err := s.cli.Recv(&msg); err != nil {
		return nil, codeFor("receive", err)
	}
	return msg, Success
}

func (s *deviceLinkSession) Start(dataClass string, anchors *Anchors, hostVersion uint64, mode SyncType) (StartResult, string, Code) {
	if s.dataClass != "" || dataClass == "" || anchors == nil || anchors.ComputerAnchor() == "" {
		return StartResult{}, "", InvalidArg
	}

	deviceAnchor := anchors.DeviceAnchor()
	if deviceAnchor == "" || mode != Fast {
		deviceAnchor = unknownDeviceAnchor
	}
	req := []any{
		msgSyncDataClassWithDevice,
		dataClass,
		deviceAnchor,
		anchors.ComputerAnchor(),
		hostVersion,
		usb.EmptyParameterString,
	}
	msg, code := s.request("start", req)
	switch code {
	case Success:
	case Cancelled:
		return StartResult{}, stringAt(msg, 2), Cancelled
	default:
		return StartResult{}, "", code
	}
	switch stringAt(msg, 0) {
	case msgSyncDataClassWithComputer:
	case msgRefuseToSync:
		return StartResult{}, stringAt(msg, 2), SyncRefused
	default:
		return StartResult{}, "", PlistError
	}

	res := StartResult{Mode: mode}
	if t, ok := syncTypes[stringAt(msg, 4)]; ok {
		res.Mode = t
	}
	if len(msg) > 5 {
		v, err := cast.ToUint64E(msg[5])
		if err != nil {
			return StartResult{}, "", PlistError
		}
		res.DeviceDataClassVersion = v
	}

	s.dataClass = dataClass
	s.direction = deviceToComputer
	return res, "", Success
}

func (s *deviceLinkSession) Cancel(reason string) Code {
	if s.dataClass == "" {
		return InvalidArg
	}
	code := codeFor("cancel", s.cli.Send([]any{msgCancelSession, s.dataClass, reason}))
	s.reset()
	return code
}

func (s *deviceLinkSession) Finish() Code {
	if s.dataClass == "" {
		return InvalidArg
	}
	defer s.reset()
	msg, code := s.request("finish", []any{msgFinishSession, s.dataClass})
	if code != Success {
		return code
	}
	if stringAt(msg, 0) != msgDidFinishSession {
		return PlistError
	}
	return Success
}

func (s *deviceLinkSession) GetAllRecordsFromDevice() Code {
	if s.dataClass == "" {
		return InvalidArg
	}
	return codeFor("get all records", s.cli.Send([]any{msgGetAllRecords, s.dataClass}))
}

func (s *deviceLinkSession) GetChangesFromDevice() Code {
	if s.dataClass == "" {
		return InvalidArg
	}
	return codeFor("get changes", s.cli.Send([]any{msgGetChanges, s.dataClass}))
}

func (s *deviceLinkSession) ReceiveChanges() (map[string]any, int, map[string]any, Code) {
	if s.dataClass == "" {
		return nil, 0, nil, InvalidArg
	}
	if s.direction != deviceToComputer {
		return nil, 0, nil, WrongDirection
	}
	msg, code := s.recv("receive changes")
	if code != Success {
		return nil, 0, nil, code
	}
	entities := dictAt(msg, 2)
	if entities == nil {
		return nil, 0, nil, PlistError
	}
	more := 0
	if len(msg) > 3 && cast.ToBool(msg[3]) {
		more = 1
	}
	return entities, more, dictAt(msg, 4), Success
}

func (s *deviceLinkSession) ClearAllRecordsOnDevice() Code {
	if s.dataClass == "" {
		return InvalidArg
	}
	msg, code := s.request("clear all records", []any{msgClearAllRecords, s.dataClass, usb.EmptyParameterString})
	if code != Success {
		return code
	}
	if stringAt(msg, 0) != msgWillClearAllRecords {
		return PlistError
	}
	return Success
}

func (s *deviceLinkSession) AcknowledgeChangesFromDevice() Code {
	if s.dataClass == "" {
		return InvalidArg
	}
	if s.direction != deviceToComputer {
		return WrongDirection
	}
	return codeFor("acknowledge changes", s.cli.Send([]any{msgAcknowledgeChanges, s.dataClass}))
}

func (s *deviceLinkSession) ReadyToSendChangesFromComputer() Code {
	if s.dataClass == "" {
		return InvalidArg
	}
	if s.direction != deviceToComputer {
		return WrongDirection
	}
	msg, code := s.recv("ready to send changes")
	if code != Success {
		return code
	}
	if stringAt(msg, 0) != msgReadyToReceiveChanges {
		return NotReady
	}
	if err := s.cli.DeviceLinkPing(pingMessage); err != nil {
		return codeFor("ready to send changes", err)
	}
	s.direction = computerToDevice
	return Success
}

func (s *deviceLinkSession) SendChanges(entities map[string]any, isLast bool, actions map[string]any) Code {
	if s.dataClass == "" || entities == nil {
		return InvalidArg
	}
	if s.direction != computerToDevice {
		return WrongDirection
	}
	var acts any = usb.EmptyParameterString
	if actions != nil {
		acts = actions
	}
	req := []any{msgProcessChanges, s.dataClass, entities, isLast, acts}
	return codeFor("send changes", s.cli.Send(req))
}

func (s *deviceLinkSession) RemapIdentifiers(mapping []any) (map[string]any, Code) {
	if s.dataClass == "" {
		return nil, InvalidArg
	}
	if s.direction != computerToDevice {
		return nil, WrongDirection
	}
	msg, code := s.recv("remap identifiers")
	if code != Success {
		return nil, code
	}
	if stringAt(msg, 0) != msgRemapRecordIdentifiers {
		return nil, PlistError
	}
	return dictAt(msg, 2), Success
}

func (s *deviceLinkSession) Free() Code {
	if err := s.cli.DeviceLinkDisconnect(disconnectMessage); err != nil {
		log.WithError(err).Debug("mobilesync: devicelink disconnect")
	}
	if err := s.cli.Close(); err != nil {
		return codeFor("free", err)
	}
	return Success
}
