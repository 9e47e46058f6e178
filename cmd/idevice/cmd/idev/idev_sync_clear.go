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

	"github.com/AlecAivazis/survey/v2"
	"github.com/apex/log"
	"github.com/blacktop/go-idevice/pkg/usb/mobilesync"
	"github.com/spf13/cobra"
)

func init() {
	SyncCmd.AddCommand(SyncClearCmd)

	SyncClearCmd.Flags().BoolP("force", "f", false, "Do not ask for confirmation")
}

// SyncClearCmd represents the sync clear command
var SyncClearCmd = &cobra.Command{
	Use:           "clear",
	Short:         "Clear every record of a data class on the device",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		force, _ := cmd.Flags().GetBool("force")

		if !force {
			confirm := false
			prompt := &survey.Confirm{
				Message: fmt.Sprintf("Delete ALL %s records on the device?", conf.Sync.DataClass),
			}
			if err := survey.AskOne(prompt, &confirm); err != nil || !confirm {
				log.Warn("Exiting...")
				return nil
			}
		}

		sess, err := openSync(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		res, err := sess.client.Start(conf.Sync.DataClass, []*mobilesync.Anchors{sess.anchors}, conf.Sync.HostVersion, conf.Sync.Mode)
		if err != nil {
			return fmt.Errorf("failed to start sync: %w", err)
		}
		log.WithField("mode", res.Mode).Debug("Sync started")

		if err := sess.client.ClearAllRecordsOnDevice(); err != nil {
			if cerr := sess.client.Cancel("Failed to clear records"); cerr != nil {
				log.WithError(cerr).Debug("failed to cancel sync")
			}
			return fmt.Errorf("failed to clear %s: %w", conf.Sync.DataClass, err)
		}
		if err := sess.client.Finish(); err != nil {
			return fmt.Errorf("failed to finish sync: %w", err)
		}

		log.Infof("Cleared all %s records", conf.Sync.DataClass)
		return nil
	},
}
