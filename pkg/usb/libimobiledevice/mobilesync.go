//go:build cgo && libimobiledevice

package libimobiledevice

/*
#cgo pkg-config: libimobiledevice-1.0 libplist-2.0
#include <stdlib.h>
#include <libimobiledevice/libimobiledevice.h>
#include <libimobiledevice/lockdown.h>
#include <libimobiledevice/mobilesync.h>
#include <plist/plist.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/apex/log"
	"github.com/blacktop/go-idevice/pkg/usb/mobilesync"
	"github.com/blacktop/go-plist"
)

const backendName = "libimobiledevice"

func init() {
	mobilesync.RegisterBackend(backendName, backend{})
}

type backend struct{}

func openDevice(udid string) (C.idevice_t, mobilesync.Code) {
	var cudid *C.char
	if udid != "" {
		cudid = C.CString(udid)
		defer C.free(unsafe.Pointer(cudid))
	}
	var dev C.idevice_t
	if rc := C.idevice_new(&dev, cudid); rc != C.IDEVICE_E_SUCCESS {
		log.Debugf("libimobiledevice: idevice_new(%s): %d", udid, int(rc))
		return nil, mobilesync.MuxError
	}
	return dev, mobilesync.Success
}

func (backend) NewSession(udid string, desc *mobilesync.ServiceDescriptor) (mobilesync.Session, mobilesync.Code) {
	dev, code := openDevice(udid)
	if code != mobilesync.Success {
		return nil, code
	}

	cdesc := (*C.struct_lockdownd_service_descriptor)(C.calloc(1, C.sizeof_struct_lockdownd_service_descriptor))
	defer C.free(unsafe.Pointer(cdesc))
	cdesc.port = C.uint16_t(desc.Port)
	if desc.SSLEnabled {
		cdesc.ssl_enabled = 1
	}
	if desc.Identifier != "" {
		cdesc.identifier = C.CString(desc.Identifier)
		defer C.free(unsafe.Pointer(cdesc.identifier))
	}

	var client C.mobilesync_client_t
	if rc := C.mobilesync_client_new(dev, cdesc, &client); rc != C.MOBILESYNC_E_SUCCESS {
		C.idevice_free(dev)
		return nil, mobilesync.CodeOf(int(rc))
	}
	return &session{dev: dev, client: client}, mobilesync.Success
}

func (backend) StartService(udid, label string) (mobilesync.Session, mobilesync.Code) {
	dev, code := openDevice(udid)
	if code != mobilesync.Success {
		return nil, code
	}
	clabel := C.CString(label)
	defer C.free(unsafe.Pointer(clabel))

	var client C.mobilesync_client_t
	if rc := C.mobilesync_client_start_service(dev, &client, clabel); rc != C.MOBILESYNC_E_SUCCESS {
		C.idevice_free(dev)
		return nil, mobilesync.CodeOf(int(rc))
	}
	return &session{dev: dev, client: client}, mobilesync.Success
}

// toPlist converts v into a libplist node owned by the caller.
func toPlist(v any) (C.plist_t, error) {
	data, err := plist.Marshal(v, plist.BinaryFormat)
	if err != nil {
		return nil, err
	}
	cdata := C.CBytes(data)
	defer C.free(cdata)

	var node C.plist_t
	C.plist_from_bin((*C.char)(cdata), C.uint32_t(len(data)), &node)
	if node == nil {
		return nil, fmt.Errorf("libplist rejected %d bytes", len(data))
	}
	return node, nil
}

// fromPlist converts a libplist node into Go values. It does not free node.
func fromPlist(node C.plist_t) (any, error) {
	if node == nil {
		return nil, nil
	}
	var (
		buf *C.char
		n   C.uint32_t
	)
	C.plist_to_bin(node, &buf, &n)
	if buf == nil {
		return nil, fmt.Errorf("libplist failed to serialize node")
	}
	defer C.free(unsafe.Pointer(buf))

	var v any
	if _, err := plist.Unmarshal(C.GoBytes(unsafe.Pointer(buf), C.int(n)), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func freePlist(node C.plist_t) {
	if node != nil {
		C.plist_free(node)
	}
}

func dictFromPlist(node C.plist_t) (map[string]any, error) {
	v, err := fromPlist(node)
	if err != nil || v == nil {
		return nil, err
	}
	d, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected dictionary, got %T", v)
	}
	return d, nil
}

type session struct {
	dev    C.idevice_t
	client C.mobilesync_client_t
}

func code(rc C.mobilesync_error_t) mobilesync.Code {
	return mobilesync.CodeOf(int(rc))
}

func (s *session) Send(msg any) mobilesync.Code {
	node, err := toPlist(msg)
	if err != nil {
		log.WithError(err).Debug("libimobiledevice: send")
		return mobilesync.PlistError
	}
	defer C.plist_free(node)
	return code(C.mobilesync_send(s.client, node))
}

func (s *session) Receive() (any, mobilesync.Code) {
	var node C.plist_t
	if rc := C.mobilesync_receive(s.client, &node); rc != C.MOBILESYNC_E_SUCCESS {
		return nil, code(rc)
	}
	defer C.plist_free(node)
	v, err := fromPlist(node)
	if err != nil {
		log.WithError(err).Debug("libimobiledevice: receive")
		return nil, mobilesync.PlistError
	}
	return v, mobilesync.Success
}

func (s *session) Start(dataClass string, anchors *mobilesync.Anchors, hostVersion uint64, mode mobilesync.SyncType) (mobilesync.StartResult, string, mobilesync.Code) {
	cdc := C.CString(dataClass)
	defer C.free(unsafe.Pointer(cdc))

	var canchors C.mobilesync_anchors_t
	if anchors != nil {
		var dev, comp *C.char
		if a := anchors.DeviceAnchor(); a != "" {
			dev = C.CString(a)
			defer C.free(unsafe.Pointer(dev))
		}
		if a := anchors.ComputerAnchor(); a != "" {
			comp = C.CString(a)
			defer C.free(unsafe.Pointer(comp))
		}
		canchors = C.mobilesync_anchors_new(dev, comp)
		defer C.mobilesync_anchors_free(canchors)
	}

	var (
		syncType   = C.mobilesync_sync_type_t(mode)
		devVersion C.uint64_t
		cdesc      *C.char
	)
	rc := C.mobilesync_start(s.client, cdc, canchors, C.uint64_t(hostVersion), &syncType, &devVersion, &cdesc)

	var desc string
	if cdesc != nil {
		desc = C.GoString(cdesc)
		C.free(unsafe.Pointer(cdesc))
	}
	if rc != C.MOBILESYNC_E_SUCCESS {
		return mobilesync.StartResult{}, desc, code(rc)
	}
	return mobilesync.StartResult{
		Mode:                   mobilesync.SyncType(syncType),
		DeviceDataClassVersion: uint64(devVersion),
	}, desc, mobilesync.Success
}

func (s *session) Cancel(reason string) mobilesync.Code {
	creason := C.CString(reason)
	defer C.free(unsafe.Pointer(creason))
	return code(C.mobilesync_cancel(s.client, creason))
}

func (s *session) Finish() mobilesync.Code {
	return code(C.mobilesync_finish(s.client))
}

func (s *session) GetAllRecordsFromDevice() mobilesync.Code {
	return code(C.mobilesync_get_all_records_from_device(s.client))
}

func (s *session) GetChangesFromDevice() mobilesync.Code {
	return code(C.mobilesync_get_changes_from_device(s.client))
}

// ReceiveChanges reports libimobiledevice's is_last_record as the "more
// changes follow" flag.
func (s *session) ReceiveChanges() (map[string]any, int, map[string]any, mobilesync.Code) {
	var (
		entities, actions C.plist_t
		isLast            C.uint8_t
	)
	if rc := C.mobilesync_receive_changes(s.client, &entities, &isLast, &actions); rc != C.MOBILESYNC_E_SUCCESS {
		return nil, 0, nil, code(rc)
	}
	defer freePlist(entities)
	defer freePlist(actions)

	e, err := dictFromPlist(entities)
	if err != nil {
		log.WithError(err).Debug("libimobiledevice: receive changes entities")
		return nil, 0, nil, mobilesync.PlistError
	}
	a, err := dictFromPlist(actions)
	if err != nil {
		log.WithError(err).Debug("libimobiledevice: receive changes actions")
		a = nil
	}
	more := 1
	if isLast != 0 {
		more = 0
	}
	return e, more, a, mobilesync.Success
}

func (s *session) ClearAllRecordsOnDevice() mobilesync.Code {
	return code(C.mobilesync_clear_all_records_on_device(s.client))
}

func (s *session) AcknowledgeChangesFromDevice() mobilesync.Code {
	return code(C.mobilesync_acknowledge_changes_from_device(s.client))
}

func (s *session) ReadyToSendChangesFromComputer() mobilesync.Code {
	return code(C.mobilesync_ready_to_send_changes_from_computer(s.client))
}

func (s *session) SendChanges(entities map[string]any, isLast bool, actions map[string]any) mobilesync.Code {
	if entities == nil {
		return mobilesync.InvalidArg
	}
	e, err := toPlist(entities)
	if err != nil {
		log.WithError(err).Debug("libimobiledevice: send changes entities")
		return mobilesync.PlistError
	}
	defer C.plist_free(e)

	var a C.plist_t
	if actions != nil {
		if a, err = toPlist(actions); err != nil {
			log.WithError(err).Debug("libimobiledevice: send changes actions")
			return mobilesync.PlistError
		}
		defer C.plist_free(a)
	}

	var last C.uint8_t
	if isLast {
		last = 1
	}
	return code(C.mobilesync_send_changes(s.client, e, last, a))
}

// RemapIdentifiers hands mapping to libimobiledevice, which replaces the
// pointer with the device's remapping without freeing the input node.
func (s *session) RemapIdentifiers(mapping []any) (map[string]any, mobilesync.Code) {
	in, err := toPlist(mapping)
	if err != nil {
		log.WithError(err).Debug("libimobiledevice: remap identifiers")
		return nil, mobilesync.PlistError
	}
	defer C.plist_free(in)

	node := in
	rc := C.mobilesync_remap_identifiers(s.client, &node)
	if node != in {
		defer freePlist(node)
	}
	if rc != C.MOBILESYNC_E_SUCCESS {
		return nil, code(rc)
	}
	if node == in {
		return nil, mobilesync.Success
	}
	remapped, err := dictFromPlist(node)
	if err != nil {
		log.WithError(err).Debug("libimobiledevice: remap identifiers reply")
		return nil, mobilesync.PlistError
	}
	return remapped, mobilesync.Success
}

func (s *session) Free() mobilesync.Code {
	rc := C.mobilesync_client_free(s.client)
	C.idevice_free(s.dev)
	s.client, s.dev = nil, nil
	return code(rc)
}
