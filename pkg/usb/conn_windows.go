//go:build windows

package usb

const defaultSocketAddress = "localhost:27015"
