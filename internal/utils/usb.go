package utils

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/apex/log"
	"github.com/blacktop/go-idevice/pkg/usb"
	"github.com/blacktop/go-idevice/pkg/usb/lockdownd"
)

// ErrNoDevices is returned when usbmuxd reports no attached device.
var ErrNoDevices = errors.New("no iDevices attached")

// ErrInterrupted is returned when the user aborts a device prompt.
var ErrInterrupted = errors.New("device selection interrupted")

// ListDevices returns the lockdownd values of every attached device that
// answered, keyed in the order usbmuxd reported them.
func ListDevices() ([]*lockdownd.DeviceValues, error) {
	conn, err := usb.NewConn()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	devices, err := conn.ListDevices()
	if err != nil {
		return nil, err
	}

	var deets []*lockdownd.DeviceValues
	for _, device := range devices {
		deet, err := deviceValues(device.Identifier())
		if err != nil {
			log.WithError(err).Warnf("failed to query %s", device.Identifier())
			continue
		}
		deets = append(deets, deet)
	}

	return deets, nil
}

func deviceValues(udid string) (*lockdownd.DeviceValues, error) {
	ldc, err := lockdownd.NewClient(udid)
	if err != nil {
		return nil, err
	}
	defer ldc.Close()

	return ldc.GetValues()
}

// PickDevice returns the only attached device, or asks the user to choose one.
func PickDevice() (*lockdownd.DeviceValues, error) {
	deets, err := ListDevices()
	if err != nil {
		return nil, err
	}

	switch len(deets) {
	case 0:
		return nil, ErrNoDevices
	case 1:
		return deets[0], nil
	}

	var choices []string
	for _, d := range deets {
		choices = append(choices, fmt.Sprintf("%s (%s %s) %s", d.DeviceName, d.ProductType, d.ProductVersion, d.UniqueDeviceID))
	}
	var selected int
	prompt := &survey.Select{
		Message: "Select iDevice:",
		Options: choices,
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return nil, ErrInterrupted
		}
		return nil, err
	}

	return deets[selected], nil
}
