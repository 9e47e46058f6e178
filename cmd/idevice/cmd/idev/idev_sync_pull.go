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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/apex/log"
	"github.com/blacktop/go-idevice/pkg/usb/mobilesync"
	"github.com/briandowns/spinner"
	"github.com/caarlos0/ctrlc"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func init() {
	SyncCmd.AddCommand(SyncPullCmd)

	SyncPullCmd.Flags().BoolP("json", "j", false, "Output records as JSON")
	SyncPullCmd.Flags().BoolP("yaml", "y", false, "Output records as YAML")
	SyncPullCmd.Flags().StringP("output", "o", "", "Write records to file")
	SyncPullCmd.MarkFlagsMutuallyExclusive("json", "yaml")
}

// syncContext bounds a pull by timeout; zero means no deadline.
func syncContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.WithCancel(context.Background())
}

// setSuffix updates s while its own goroutine may be drawing it.
func setSuffix(s *spinner.Spinner, format string, args ...any) {
	s.Lock()
	defer s.Unlock()
	s.Suffix = fmt.Sprintf(format, args...)
}

// SyncPullCmd represents the sync pull command
var SyncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull the records of a data class from the device",
	Example: heredoc.Doc(`
		# Pull all contacts as JSON
		❯ idevice idev sync pull --json

		# Pull the calendar changes since the last sync
		❯ idevice idev sync pull -d com.apple.Calendars -m fast --device-anchor <ANCHOR> --host-anchor <ANCHOR>`),
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		asJSON, _ := cmd.Flags().GetBool("json")
		asYAML, _ := cmd.Flags().GetBool("yaml")
		output, _ := cmd.Flags().GetString("output")

		sess, err := openSync(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		ctx, cancel := syncContext(conf.Sync.Timeout)
		defer cancel()

		isTTY := term.IsTerminal(int(os.Stdout.Fd()))

		s := spinner.New(spinner.CharSets[38], 100*time.Millisecond)
		s.Prefix = color.BlueString("   • Pulling %s... ", conf.Sync.DataClass)
		if isTTY {
			s.Start()
		}

		records := make(map[string]any)
		batches := 0
		done := make(chan struct{})
		var res *mobilesync.StartResult

		err = ctrlc.Default.Run(ctx, func() error {
			defer close(done)
			var err error
			res, err = sess.client.PullRecords(ctx, mobilesync.PullRequest{
				DataClass:   conf.Sync.DataClass,
				Anchors:     sess.anchors,
				HostVersion: conf.Sync.HostVersion,
				Mode:        conf.Sync.Mode,
			}, func(ch *mobilesync.Changes) error {
				for id, rec := range ch.Entities {
					records[id] = rec
				}
				batches++
				setSuffix(s, " %s records", humanize.Comma(int64(len(records))))
				return nil
			})
			return err
		})
		if errors.As(err, &ctrlc.ErrorCtrlC{}) {
			// the session can only be closed once PullRecords has returned
			cancel()
			<-done
			s.Stop()
			log.Warn("Exiting...")
			return nil
		}
		s.Stop()
		if err != nil {
			return fmt.Errorf("failed to pull %s: %w", conf.Sync.DataClass, err)
		}

		log.WithFields(log.Fields{
			"mode":           res.Mode,
			"device_version": res.DeviceDataClassVersion,
			"host_anchor":    sess.anchors.ComputerAnchor(),
		}).Infof("Pulled %s records in %s batches", humanize.Comma(int64(len(records))), humanize.Comma(int64(batches)))

		if !asJSON && !asYAML && output == "" {
			return nil
		}

		var (
			data  []byte
			lexer = "json"
		)
		if asYAML {
			lexer = "yaml"
			data, err = yaml.Marshal(records)
		} else {
			data, err = json.MarshalIndent(records, "", "  ")
		}
		if err != nil {
			return fmt.Errorf("failed to marshal records: %w", err)
		}

		if output != "" {
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			log.Infof("Created %s", output)
			return nil
		}

		if isTTY && viper.GetBool("color") && !viper.GetBool("no-color") {
			return quick.Highlight(os.Stdout, string(data)+"\n", lexer, "terminal256", "nord")
		}
		fmt.Println(string(data))

		return nil
	},
}
