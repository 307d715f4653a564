//go:build linux

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tiagocoutinho/linuxgo/v4l2"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var devDir string
	var showFormats bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List video capture devices",
		Long:  `Scans for V4L2 device nodes and prints driver, card and capability information for each.`,
		Run: func(_ *cobra.Command, _ []string) {
			entries, err := os.ReadDir(devDir)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			for _, e := range entries {
				if !strings.HasPrefix(e.Name(), "video") {
					continue
				}
				path := filepath.Join(devDir, e.Name())
				d, err := v4l2.Open(path)
				if err != nil {
					continue
				}
				caps := d.Capability()
				fmt.Printf("%s: %s (%s, %s)\n", path, caps.Card, caps.Driver, caps.BusInfo)
				if showFormats {
					printFormats(d)
				}
				d.Close()
			}
		},
	}

	cmd.Flags().StringVar(&devDir, "dev-dir", "/dev", "Directory scanned for video nodes")
	cmd.Flags().BoolVar(&showFormats, "formats", false, "Also list supported formats and frame sizes")

	return cmd
}

func printFormats(d *v4l2.Device) {
	descs, err := d.EnumFormats(v4l2.BufTypeVideoCapture)
	if err != nil {
		return
	}
	for _, desc := range descs {
		var sizes []string
		if enum, err := d.EnumFrameSizes(desc.PixelFormat); err == nil {
			for _, sz := range enum {
				sizes = append(sizes, sz.String())
			}
		}
		fmt.Printf("  %s  %s  %s\n", desc.PixelFormat, desc.Description, strings.Join(sizes, " "))
	}
}
