//go:build linux

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tiagocoutinho/linuxgo/thermal"
)

// CreateThermalCmd creates the thermal command.
func CreateThermalCmd() *cobra.Command {
	var root string
	var showTrips bool

	cmd := &cobra.Command{
		Use:   "thermal",
		Short: "Show thermal zones and cooling devices",
		Run: func(_ *cobra.Command, _ []string) {
			zones, err := thermal.Zones(root)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			for _, z := range zones {
				c, err := z.Celsius()
				if err != nil {
					continue
				}
				fmt.Printf("%-16s %-24s %6.1f°C\n", z.Name, z.Type, c)
				if showTrips {
					trips, _ := z.Trips()
					for _, trip := range trips {
						fmt.Printf("    trip %d: %-10s %6.1f°C\n",
							trip.Index, trip.Type, float64(trip.Temp)/1000)
					}
				}
			}

			devices, err := thermal.CoolingDevices(root)
			if err != nil {
				return
			}
			for _, cd := range devices {
				cur, err1 := cd.CurState()
				max, err2 := cd.MaxState()
				if err1 != nil || err2 != nil {
					continue
				}
				fmt.Printf("%-16s %-24s state %d/%d\n", cd.Name, cd.Type, cur, max)
			}
		},
	}

	cmd.Flags().StringVar(&root, "root", thermal.DefaultRoot, "Thermal sysfs directory")
	cmd.Flags().BoolVar(&showTrips, "trips", false, "Also list trip points")

	return cmd
}
