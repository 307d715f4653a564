//go:build linux

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tiagocoutinho/linuxgo/input"
)

// CreateInputCmd creates the input command.
func CreateInputCmd() *cobra.Command {
	var dump bool
	var grab bool

	cmd := &cobra.Command{
		Use:   "input [device]",
		Short: "Inspect an input event device",
		Long: `Prints identity and capability information for an evdev node, ` +
			`optionally grabbing it and dumping its event stream.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			d, err := input.Open(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			defer d.Close()

			name, _ := d.Name()
			phys, _ := d.Phys()
			id, _ := d.ID()
			fmt.Printf("%s: %q (%s)\n", args[0], name, phys)
			fmt.Printf("  bus 0x%04x vendor 0x%04x product 0x%04x version 0x%04x\n",
				id.BusType, id.Vendor, id.Product, id.Version)

			types, err := d.SupportedEvents()
			if err == nil {
				fmt.Print("  events:")
				for _, t := range types {
					fmt.Printf(" %s", t)
				}
				fmt.Println()
			}

			if !dump {
				return
			}
			if grab {
				if err := d.Grab(); err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
					os.Exit(1)
				}
				defer d.Ungrab()
			}
			for ev, err := range d.Events() {
				if err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
					os.Exit(1)
				}
				fmt.Printf("%s %s code=%d value=%d\n",
					ev.Time().Format("15:04:05.000000"), ev.Type, ev.Code, ev.Value)
			}
		},
	}

	cmd.Flags().BoolVar(&dump, "dump", false, "Print the event stream until interrupted")
	cmd.Flags().BoolVar(&grab, "grab", false, "Grab the device exclusively while dumping")

	return cmd
}
