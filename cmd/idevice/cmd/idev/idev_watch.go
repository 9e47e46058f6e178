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
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/go-idevice/pkg/usb"
	"github.com/blacktop/go-idevice/pkg/usb/event"
	"github.com/caarlos0/ctrlc"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	colorAdd    = color.New(color.FgHiGreen, color.Bold).SprintFunc()
	colorRemove = color.New(color.FgHiRed, color.Bold).SprintFunc()
	colorPaired = color.New(color.FgHiMagenta, color.Bold).SprintFunc()
	colorTime   = color.New(color.Faint).SprintFunc()
)

func init() {
	IDevCmd.AddCommand(WatchCmd)

	WatchCmd.Flags().String("source", "", "event source (default from config: usbmuxd)")
}

func printEvent(ev event.Event, data any) {
	kind := ev.Kind().String()
	switch ev.Kind() {
	case event.Add:
		kind = colorAdd(kind)
	case event.Remove:
		kind = colorRemove(kind)
	case event.Paired:
		kind = colorPaired(kind)
	}
	fmt.Printf("%s %-6s %s (%s)\n", colorTime(time.Now().Format(time.TimeOnly)), kind, ev.UDID(), ev.ConnectionType())
	if seen, ok := data.(*atomic.Int64); ok {
		seen.Add(1)
	}
}

// WatchCmd represents the watch command
var WatchCmd = &cobra.Command{
	Use:           "watch",
	Short:         "Watch iDevices attach, detach and pair",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {

		udid, _ := cmd.Flags().GetString("udid")
		sourceName, _ := cmd.Flags().GetString("source")
		if sourceName == "" {
			sourceName = conf.Events.Source
		}

		var src event.Source
		if sourceName == "usbmuxd" {
			src = usb.NewListener(conf.Events.CacheSize)
		} else {
			s, err := event.NewSource(sourceName)
			if err != nil {
				return err
			}
			src = s
		}

		var opts []event.Option
		if len(udid) > 0 {
			opts = append(opts, event.WithFilter(udid))
		}
		seen := new(atomic.Int64)
		sub, err := event.Subscribe(src, event.NewRegistration(printEvent, seen, opts...))
		if err != nil {
			return err
		}
		defer func() {
			if err := sub.Close(); err != nil {
				log.WithError(err).Error("failed to stop watching")
			}
			log.Infof("Saw %s events", humanize.Comma(seen.Load()))
		}()

		if viper.ConfigFileUsed() != "" {
			viper.OnConfigChange(func(e fsnotify.Event) {
				if viper.GetBool("verbose") {
					log.SetLevel(log.DebugLevel)
				} else {
					log.SetLevel(log.InfoLevel)
				}
				log.WithField("file", e.Name).Debug("Config reloaded")
			})
			viper.WatchConfig()
		}

		log.WithField("source", sourceName).Info("Watching for iDevices (Ctrl-C to stop)")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// sources that can die on their own report it through Done/Err
		var stopped <-chan struct{}
		dying, canDie := src.(interface {
			Done() <-chan struct{}
			Err() error
		})
		if canDie {
			stopped = dying.Done()
		}

		if err := ctrlc.Default.Run(ctx, func() error {
			select {
			case <-ctx.Done():
				return nil
			case <-stopped:
				if err := dying.Err(); err != nil {
					return fmt.Errorf("%s stopped sending events: %w", sourceName, err)
				}
				return nil
			}
		}); err != nil {
			if errors.As(err, &ctrlc.ErrorCtrlC{}) {
				log.Warn("Exiting...")
			} else {
				return err
			}
		}

		return nil
	},
}
