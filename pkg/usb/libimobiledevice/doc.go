// Package libimobiledevice binds the mobilesync client and the device event
// subscription of libimobiledevice.
//
// It is only compiled with cgo and the libimobiledevice build tag:
//
//	go build -tags libimobiledevice ./...
//
// Importing it registers the "libimobiledevice" mobilesync backend and event
// source.
package libimobiledevice
