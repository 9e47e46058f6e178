package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blacktop/go-idevice/pkg/usb"
	"github.com/blacktop/go-idevice/pkg/usb/lockdownd"
)

const (
	serviceName = "com.apple.mobile.notification_proxy"

	cmdPost     = "PostNotification"
	cmdObserve  = "ObserveNotification"
	cmdShutdown = "Shutdown"
	cmdRelay    = "RelayNotification"
	cmdDeath    = "ProxyDeath"
)

// ErrProxyDeath is returned by Listen when the device closes the proxy.
var ErrProxyDeath = errors.New("notification proxy closed by device")

type RequestBase struct {
	Command string `plist:"Command"`
}

type NotificationRequest struct {
	RequestBase
	Name string `plist:"Name"`
}

type NotificationEvent struct {
	Command string `plist:"Command"`
	Name    string `plist:"Name,omitempty"`
}

type Client struct {
	c *usb.Client
}

func NewClient(udid string) (*Client, error) {
	c, err := lockdownd.NewClientForService(serviceName, udid, false)
	if err != nil {
		return nil, err
	}
	return NewClientWithConn(c), nil
}

// NewClientWithConn uses an already connected notification proxy service.
func NewClientWithConn(c *usb.Client) *Client {
	return &Client{c: c}
}

func (c *Client) PostNotification(name string) error {
	return c.c.Send(&NotificationRequest{
		RequestBase: RequestBase{cmdPost},
		Name:        name,
	})
}

func (c *Client) ObserveNotification(names ...string) error {
	for _, name := range names {
		if err := c.c.Send(&NotificationRequest{
			RequestBase: RequestBase{cmdObserve},
			Name:        name,
		}); err != nil {
			return fmt.Errorf("failed to observe %s: %w", name, err)
		}
	}
	return nil
}

func (c *Client) ObserveAllNotifications() error {
	return c.ObserveNotification(DeviceNotifications...)
}

// Listen calls fn for every observed notification the device relays until
// ctx is done, fn fails or the device shuts the proxy down.
func (c *Client) Listen(ctx context.Context, fn func(name string) error) error {
	stop := context.AfterFunc(ctx, func() {
		c.c.Conn().SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		var ev NotificationEvent
		if err := c.c.Recv(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		switch ev.Command {
		case cmdRelay:
			if err := fn(ev.Name); err != nil {
				return err
			}
		case cmdDeath:
			return ErrProxyDeath
		}
	}
}

// Shutdown asks the device to close the proxy and waits for it to confirm.
func (c *Client) Shutdown() error {
	if err := c.c.Send(&RequestBase{cmdShutdown}); err != nil {
		return err
	}
	for {
		var ev NotificationEvent
		if err := c.c.Recv(&ev); err != nil {
			return err
		}
		if ev.Command == cmdDeath {
			return nil
		}
	}
}

func (c *Client) Close() error {
	return c.c.Close()
}
