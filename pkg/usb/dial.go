package usb

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/caarlos0/env/v8"
)

// SocketAddressEnv overrides the usbmuxd socket the same way libusbmuxd does.
const SocketAddressEnv = "USBMUXD_SOCKET_ADDRESS"

type environment struct {
	SocketAddress string `env:"USBMUXD_SOCKET_ADDRESS"`
}

// Dialer opens a raw connection to usbmuxd.
type Dialer func() (net.Conn, error)

var (
	dialMu        sync.RWMutex
	dialer        Dialer
	socketAddress string
)

// SetSocketAddress points every new usbmuxd connection at addr.
// addr is either "UNIX:/path/to/socket" or "host:port"; an empty addr
// restores the platform default.
func SetSocketAddress(addr string) error {
	if addr != "" {
		if _, _, err := ParseSocketAddress(addr); err != nil {
			return err
		}
	}
	dialMu.Lock()
	defer dialMu.Unlock()
	socketAddress = addr
	return nil
}

// SetDialer replaces the function used to reach usbmuxd. Passing nil restores
// the socket based dialer.
func SetDialer(d Dialer) {
	dialMu.Lock()
	defer dialMu.Unlock()
	dialer = d
}

// ParseSocketAddress splits a usbmuxd socket address into its network and address.
func ParseSocketAddress(addr string) (network, address string, err error) {
	if path, ok := strings.CutPrefix(addr, "UNIX:"); ok {
		if path == "" {
			return "", "", fmt.Errorf("invalid usbmuxd socket address %q: empty path", addr)
		}
		return "unix", path, nil
	}
	if strings.HasPrefix(addr, "/") {
		return "unix", addr, nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", "", fmt.Errorf("invalid usbmuxd socket address %q: %w", addr, err)
	}
	return "tcp", addr, nil
}

func usbmuxdDial() (net.Conn, error) {
	dialMu.RLock()
	d, addr := dialer, socketAddress
	dialMu.RUnlock()

	if d != nil {
		return d()
	}
	if addr == "" {
		var e environment
		if err := env.Parse(&e); err != nil {
			return nil, fmt.Errorf("failed to parse environment: %w", err)
		}
		addr = e.SocketAddress
	}
	if addr == "" {
		addr = defaultSocketAddress
	}
	network, address, err := ParseSocketAddress(addr)
	if err != nil {
		return nil, err
	}
	return net.Dial(network, address)
}
