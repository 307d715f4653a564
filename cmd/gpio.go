//go:build linux

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiagocoutinho/linuxgo/device"
	"github.com/tiagocoutinho/linuxgo/gpio"
)

// CreateGPIOCmd creates the gpio command with its subcommands.
func CreateGPIOCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gpio",
		Short: "Inspect and drive GPIO lines",
	}
	cmd.AddCommand(gpioInfoCmd(), gpioGetCmd(), gpioSetCmd(), gpioMonCmd())
	return cmd
}

func gpioInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [chip]",
		Short: "Print chip and line information",
		Args:  cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			c, err := gpio.OpenChip(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			defer c.Close()

			info := c.Info()
			fmt.Printf("%s [%s] (%d lines)\n", info.Name, info.Label, info.Lines)
			for off := uint32(0); off < info.Lines; off++ {
				li, err := c.LineInfo(off)
				if err != nil {
					continue
				}
				consumer := li.Consumer
				if consumer == "" {
					consumer = "unused"
				}
				fmt.Printf("  line %3d: %-24q %-16q flags=0x%x\n", off, li.Name, consumer, uint64(li.Flags))
			}
		},
	}
}

func gpioGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [chip] [offset]...",
		Short: "Read line values",
		Args:  cobra.MinimumNArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			c, offsets := openChipWithOffsets(args)
			defer c.Close()

			lines, err := c.Request(gpio.RequestConfig{Consumer: "linuxgo"}, offsets...)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			defer lines.Close()

			values, err := lines.Values()
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			for i, v := range values {
				bit := 0
				if v {
					bit = 1
				}
				fmt.Printf("line %d: %d\n", offsets[i], bit)
			}
		},
	}
}

func gpioSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [chip] [offset=value]...",
		Short: "Drive line values",
		Args:  cobra.MinimumNArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			c, err := gpio.OpenChip(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			defer c.Close()

			var offsets []uint32
			var values []bool
			for _, arg := range args[1:] {
				var off uint32
				var val int
				if _, err := fmt.Sscanf(arg, "%d=%d", &off, &val); err != nil {
					fmt.Fprintf(os.Stderr, "Bad assignment %q, want offset=value\n", arg)
					os.Exit(1)
				}
				offsets = append(offsets, off)
				values = append(values, val != 0)
			}

			lines, err := c.Request(gpio.RequestConfig{
				Consumer: "linuxgo",
				Flags:    gpio.LineFlagOutput,
			}, offsets...)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			defer lines.Close()

			if err := lines.SetValues(values...); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
		},
	}
}

func gpioMonCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "mon [chip] [offset]...",
		Short: "Watch lines for edge events",
		Args:  cobra.MinimumNArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			c, offsets := openChipWithOffsets(args)
			defer c.Close()

			lines, err := c.Request(gpio.RequestConfig{
				Consumer: "linuxgo",
				Flags:    gpio.LineFlagInput | gpio.LineFlagEdgeRising | gpio.LineFlagEdgeFalling,
			}, offsets...)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			defer lines.Close()

			for {
				ev, err := lines.ReadEvent(timeout)
				if errors.Is(err, device.ErrTimeout) {
					return
				}
				if err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
					os.Exit(1)
				}
				edge := "rising"
				if ev.ID == gpio.EventFallingEdge {
					edge = "falling"
				}
				fmt.Printf("line %d: %s edge at %d ns (seqno %d)\n",
					ev.Offset, edge, ev.TimestampNs, ev.Seqno)
			}
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Stop after this long without an event (0 waits forever)")

	return cmd
}

func openChipWithOffsets(args []string) (*gpio.Chip, []uint32) {
	c, err := gpio.OpenChip(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	var offsets []uint32
	for _, arg := range args[1:] {
		off, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Bad offset %q\n", arg)
			os.Exit(1)
		}
		offsets = append(offsets, uint32(off))
	}
	return c, offsets
}
