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
	"github.com/blacktop/go-idevice/pkg/usb"
	"github.com/blacktop/go-idevice/pkg/usb/mobilesync"
	"github.com/blacktop/go-idevice/pkg/usb/notification"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	IDevCmd.AddCommand(SyncCmd)

	SyncCmd.PersistentFlags().StringP("data-class", "d", config.DefaultDataClass, "Data class to sync")
	SyncCmd.PersistentFlags().StringP("mode", "m", "slow", "Requested sync mode (fast, slow or reset)")
	SyncCmd.PersistentFlags().Uint64("host-version", config.DefaultHostVersion, "Host data class version")
	SyncCmd.PersistentFlags().StringP("label", "l", usb.BundleID, "Label the host identifies itself with")
	SyncCmd.PersistentFlags().StringP("backend", "b", mobilesync.DefaultBackend, "mobilesync backend")
	SyncCmd.PersistentFlags().String("device-anchor", "", "Device anchor of the last sync")
	SyncCmd.PersistentFlags().String("host-anchor", "", "Host anchor (default: a new random anchor)")
	SyncCmd.PersistentFlags().Bool("announce", false, "Post sync start/finish notifications on the device")
	viper.BindPFlag("sync.data_class", SyncCmd.PersistentFlags().Lookup("data-class"))
	viper.BindPFlag("sync.mode", SyncCmd.PersistentFlags().Lookup("mode"))
	viper.BindPFlag("sync.host_version", SyncCmd.PersistentFlags().Lookup("host-version"))
	viper.BindPFlag("sync.label", SyncCmd.PersistentFlags().Lookup("label"))
	viper.BindPFlag("sync.announce", SyncCmd.PersistentFlags().Lookup("announce"))
	viper.BindPFlag("backend", SyncCmd.PersistentFlags().Lookup("backend"))
}

// SyncCmd represents the sync command
var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "mobilesync commands",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// syncSession is a started mobilesync client plus the optional notification
// proxy used to announce the sync on the device.
type syncSession struct {
	client  *mobilesync.Client
	np      *notification.Client
	anchors *mobilesync.Anchors
}

func openSync(cmd *cobra.Command) (*syncSession, error) {
	udid, err := deviceUDID(cmd)
	if err != nil {
		return nil, err
	}

	deviceAnchor, _ := cmd.Flags().GetString("device-anchor")
	hostAnchor, _ := cmd.Flags().GetString("host-anchor")
	if hostAnchor == "" {
		hostAnchor = mobilesync.NewHostAnchor()
	}

	s := &syncSession{anchors: mobilesync.NewAnchors(deviceAnchor, hostAnchor)}

	if conf.Sync.Announce {
		np, err := notification.NewClient(udid)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to notification service: %w", err)
		}
		s.np = np
		s.post(notification.SyncWillStart)
	}

	log.WithFields(log.Fields{
		"udid":    udid,
		"backend": conf.Backend,
		"label":   conf.Sync.Label,
	}).Debug("Starting mobilesync service")

	s.client, err = mobilesync.StartService(udid, conf.Sync.Label, mobilesync.WithBackend(conf.Backend))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start mobilesync service: %w", err)
	}
	s.post(notification.SyncDidStart)

	return s, nil
}

func (s *syncSession) post(name string) {
	if s.np == nil {
		return
	}
	if err := s.np.PostNotification(name); err != nil {
		log.WithError(err).Warnf("failed to post %s", name)
	}
}

func (s *syncSession) Close() error {
	var err error
	if s.client != nil {
		err = s.client.Close()
		s.post(notification.SyncDidFinish)
	}
	if s.np != nil {
		s.np.Close()
	}
	return err
}
