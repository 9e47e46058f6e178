package lockdownd

import (
	"fmt"

	"github.com/blacktop/go-idevice/pkg/usb"
	"github.com/fatih/color"
	"github.com/pkg/errors"
)

const lockdownPort = 62078

var colorFaint = color.New(color.Faint, color.FgHiBlue).SprintFunc()
var colorBold = color.New(color.Bold).SprintFunc()

// Error is a request lockdownd answered with an Error field.
type Error struct {
	Request string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("lockdownd %s: %s", e.Request, e.Reason)
}

type Client struct {
	*usb.Client
	label string
}

type startSessionRequest struct {
	Label           string
	ProtocolVersion string
	Request         string
	HostID          string
	SystemBUID      string
}

type startSessionResponse struct {
	Request          string
	Result           string
	Error            string `plist:"Error,omitempty"`
	EnableSessionSSL bool
	SessionID        string
}

func NewClient(udid string) (*Client, error) {
	return NewClientWithLabel(udid, usb.BundleID)
}

// NewClientWithLabel starts a lockdownd session that identifies itself with label.
func NewClientWithLabel(udid, label string) (*Client, error) {
	cli, err := usb.NewClient(udid, lockdownPort)
	if err != nil {
		return nil, err
	}
	lc, err := newClient(cli, label)
	if err != nil {
		cli.Close()
		return nil, err
	}
	return lc, nil
}

func newClient(cli *usb.Client, label string) (*Client, error) {
	if label == "" {
		label = usb.BundleID
	}
	req := &startSessionRequest{
		Label:           label,
		ProtocolVersion: "2",
		Request:         "StartSession",
	}
	if pr := cli.PairRecord(); pr != nil {
		req.HostID = pr.HostID
		req.SystemBUID = pr.SystemBUID
	}
	var resp startSessionResponse
	if err := cli.Request(req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &Error{Request: "StartSession", Reason: resp.Error}
	}

	if resp.EnableSessionSSL {
		if err := cli.EnableSSL(); err != nil {
			return nil, errors.Wrap(err, "failed to enable SSL for lockdownd session")
		}
	}

	return &Client{Client: cli, label: label}, nil
}

func NewClientForService(serviceName, udid string, withEscrowBag bool) (*usb.Client, error) {
	svc, err := StartService(udid, serviceName, usb.BundleID, withEscrowBag)
	if err != nil {
		return nil, err
	}

	cli, err := usb.NewClient(udid, svc.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to create usbmux client for service %s on port %d: %v", serviceName, svc.Port, err)
	}

	if svc.EnableServiceSSL {
		if err := cli.EnableSSL(); err != nil {
			cli.Close()
			return nil, fmt.Errorf("failed to enable SSL for lockdown service %s: %v", serviceName, err)
		}
	}

	return cli, nil
}

// StartService opens a short lived lockdownd session, asks it to start
// serviceName and returns where the service listens.
func StartService(udid, serviceName, label string, withEscrowBag bool) (*StartServiceResponse, error) {
	lc, err := NewClientWithLabel(udid, label)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create lockdownd client for service %s", serviceName)
	}
	defer lc.Close()

	svc, err := lc.StartService(serviceName, withEscrowBag)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start service %s", serviceName)
	}
	return svc, nil
}

type startServiceRequest struct {
	Label     string
	Request   string `plist:"Request"`
	Service   string
	EscrowBag []byte `plist:"EscrowBag,omitempty"`
}

type StartServiceResponse struct {
	Request          string
	Result           string
	Error            string `plist:"Error,omitempty"`
	Service          string
	Port             int
	EnableServiceSSL bool
}

func (lc *Client) StartService(service string, withEscrowBag bool) (*StartServiceResponse, error) {
	req := &startServiceRequest{
		Label:   lc.label,
		Request: "StartService",
		Service: service,
	}
	if withEscrowBag {
		if pr := lc.PairRecord(); pr != nil {
			req.EscrowBag = pr.EscrowBag
		}
	}

	var resp StartServiceResponse
	if err := lc.Request(req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &Error{Request: "StartService", Reason: resp.Error}
	}
	if resp.Port <= 0 {
		return nil, fmt.Errorf("lockdownd: no port returned for %s", service)
	}

	return &resp, nil
}

type DeviceValues struct {
	ActivationState     string `plist:"ActivationState,omitempty" json:"activation_state,omitempty"`
	BuildVersion        string `plist:"BuildVersion,omitempty" json:"build_version,omitempty"`
	CPUArchitecture     string `plist:"CPUArchitecture,omitempty" json:"cpu_architecture,omitempty"`
	DeviceClass         string `plist:"DeviceClass,omitempty" json:"device_class,omitempty"`
	DeviceName          string `plist:"DeviceName,omitempty" json:"device_name,omitempty"`
	HardwareModel       string `plist:"HardwareModel,omitempty" json:"hardware_model,omitempty"`
	PasswordProtected   bool   `plist:"PasswordProtected,omitempty" json:"password_protected"`
	ProductName         string `plist:"ProductName,omitempty" json:"product_name,omitempty"`
	ProductType         string `plist:"ProductType,omitempty" json:"product_type,omitempty"`
	ProductVersion      string `plist:"ProductVersion,omitempty" json:"product_version,omitempty"`
	SerialNumber        string `plist:"SerialNumber,omitempty" json:"serial_number,omitempty"`
	TimeZone            string `plist:"TimeZone,omitempty" json:"time_zone,omitempty"`
	TrustedHostAttached bool   `plist:"TrustedHostAttached,omitempty" json:"trusted_host_attached"`
	UniqueDeviceID      string `plist:"UniqueDeviceID,omitempty" json:"unique_device_id,omitempty"`
}

func (dv DeviceValues) String() string {
	return fmt.Sprintf(
		colorFaint("Device Name:         ")+colorBold("%s\n")+
			colorFaint("Device Class:        ")+colorBold("%s\n")+
			colorFaint("Product Name:        ")+colorBold("%s\n")+
			colorFaint("Product Type:        ")+colorBold("%s\n")+
			colorFaint("HardwareModel:       ")+colorBold("%s\n")+
			colorFaint("BuildVersion:        ")+colorBold("%s\n")+
			colorFaint("Product Version:     ")+colorBold("%s\n")+
			colorFaint("UniqueDeviceID:      ")+colorBold("%s\n")+
			colorFaint("SerialNumber:        ")+colorBold("%s\n")+
			colorFaint("PasswordProtected:   ")+colorBold("%t\n")+
			colorFaint("TrustedHostAttached: ")+colorBold("%t\n")+
			colorFaint("ActivationState:     ")+colorBold("%s\n"),
		dv.DeviceName,
		dv.DeviceClass,
		dv.ProductName,
		dv.ProductType,
		dv.HardwareModel,
		dv.BuildVersion,
		dv.ProductVersion,
		dv.UniqueDeviceID,
		dv.SerialNumber,
		dv.PasswordProtected,
		dv.TrustedHostAttached,
		dv.ActivationState,
	)
}

type getValueRequest struct {
	Request string
	Label   string
	Domain  string `plist:"Domain,omitempty"`
	Key     string `plist:"Key,omitempty"`
}

type getValuesResponse struct {
	Domain  string `plist:"Domain,omitempty"`
	Error   string `plist:"Error,omitempty"`
	Key     string `plist:"Key,omitempty"`
	Request string `plist:"Request,omitempty"`
	Result  string `plist:"Result,omitempty"`
	Value   *DeviceValues
}

type getValueResponse struct {
	Domain  string `plist:"Domain,omitempty"`
	Error   string `plist:"Error,omitempty"`
	Key     string `plist:"Key,omitempty"`
	Request string `plist:"Request,omitempty"`
	Value   any    `plist:"Value,omitempty"`
}

func (lc *Client) GetValues() (*DeviceValues, error) {
	req := &getValueRequest{
		Request: "GetValue",
		Label:   lc.label,
	}
	var resp getValuesResponse
	if err := lc.Request(req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("failed to get value: %s", resp.Error)
	}
	if resp.Value == nil {
		return nil, fmt.Errorf("failed to get value: empty response")
	}
	return resp.Value, nil
}

func (lc *Client) GetValue(domain, key string) (any, error) {
	req := &getValueRequest{
		Request: "GetValue",
		Label:   lc.label,
		Domain:  domain,
		Key:     key,
	}
	var resp getValueResponse
	if err := lc.Request(req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("failed to get value: %s", resp.Error)
	}
	return resp.Value, nil
}

func (lc *Client) Close() error {
	return lc.Client.Close()
}
