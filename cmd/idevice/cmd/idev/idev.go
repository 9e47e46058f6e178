/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package idev

import (
	"fmt"

	"github.com/apex/log"
	"github.com/blacktop/go-idevice/internal/config"
	"github.com/blacktop/go-idevice/internal/utils"
	"github.com/blacktop/go-idevice/pkg/usb"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var conf *config.Config

func init() {
	IDevCmd.PersistentFlags().StringP("udid", "u", "", "Device UniqueDeviceID to connect to")
	IDevCmd.PersistentFlags().String("socket", "", "usbmuxd socket address (UNIX:/path or host:port)")
	viper.BindPFlag("usbmux.socket", IDevCmd.PersistentFlags().Lookup("socket"))
}

// IDevCmd represents the idev command
var IDevCmd = &cobra.Command{
	Use:     "idev",
	Aliases: []string{"i"},
	Short:   "USB connected device commands",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
		color.NoColor = viper.GetBool("no-color")

		c, err := config.LoadConfig()
		if err != nil {
			return err
		}
		if err := usb.SetSocketAddress(c.USBMux.Socket); err != nil {
			return err
		}
		conf = c
		return nil
	},
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// deviceUDID returns the --udid flag or lets the user pick a device.
func deviceUDID(cmd *cobra.Command) (string, error) {
	udid, _ := cmd.Flags().GetString("udid")
	if len(udid) > 0 {
		return udid, nil
	}
	dev, err := utils.PickDevice()
	if err != nil {
		return "", fmt.Errorf("failed to pick USB connected devices: %w", err)
	}
	return dev.UniqueDeviceID, nil
}
