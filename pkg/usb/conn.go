//go:build !windows

package usb

const defaultSocketAddress = "UNIX:/var/run/usbmuxd"
