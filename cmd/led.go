//go:build linux

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tiagocoutinho/linuxgo/led"
)

// CreateLEDCmd creates the led command with its subcommands.
func CreateLEDCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "led",
		Short: "List and control sysfs LEDs",
	}
	cmd.PersistentFlags().StringVar(&root, "root", led.DefaultRoot, "LED class sysfs directory")

	list := &cobra.Command{
		Use:   "list",
		Short: "List LED class devices",
		Run: func(_ *cobra.Command, _ []string) {
			leds, err := led.Scan(root)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			for _, l := range leds {
				b, _ := l.Brightness()
				max, _ := l.MaxBrightness()
				current, _, _ := l.Trigger()
				fmt.Printf("%-30s %3d/%-3d trigger=%s\n", l.Name, b, max, current)
			}
		},
	}

	var brightness int
	var trigger string
	set := &cobra.Command{
		Use:   "set [name] [on|off]",
		Short: "Set LED brightness or trigger",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			l, err := led.Open(root, args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			if trigger != "" {
				err = l.SetTrigger(trigger)
			}
			if err == nil && cmd.Flags().Changed("brightness") {
				err = l.SetBrightness(brightness)
			}
			if err == nil && len(args) == 2 {
				switch strings.ToLower(args[1]) {
				case "on":
					err = l.On()
				case "off":
					err = l.Off()
				default:
					err = fmt.Errorf("unknown state %q, want on or off", args[1])
				}
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
		},
	}
	set.Flags().IntVar(&brightness, "brightness", 0, "Brightness value to write")
	set.Flags().StringVar(&trigger, "trigger", "", "Trigger to activate")

	cmd.AddCommand(list, set)
	return cmd
}
