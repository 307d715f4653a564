//go:build linux

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tiagocoutinho/linuxgo/midi"
)

// CreateMIDICmd creates the midi command.
func CreateMIDICmd() *cobra.Command {
	var path string
	var name string
	var dump bool

	cmd := &cobra.Command{
		Use:   "midi",
		Short: "Inspect the ALSA sequencer",
		Long: `Connects to the kernel sequencer as a client, optionally creating ` +
			`a readable port and dumping incoming events.`,
		Run: func(_ *cobra.Command, _ []string) {
			seq, err := midi.Open(path)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			defer seq.Close()

			if err := seq.SetName(name); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			fmt.Printf("client %d (%s), sequencer protocol %s\n",
				seq.ClientID(), name, seq.Version())

			if !dump {
				return
			}
			addr, err := seq.CreatePort("listen",
				midi.PortCapWrite|midi.PortCapSubsWrite,
				midi.PortTypeMidiGeneric|midi.PortTypeApplication)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			fmt.Printf("listening on %s\n", addr)

			for ev, err := range seq.Events() {
				if err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
					os.Exit(1)
				}
				switch ev.Type {
				case midi.EventNoteOn, midi.EventNoteOff:
					channel, note, velocity := ev.Note()
					fmt.Printf("%s %s ch=%d note=%d vel=%d\n",
						ev.Source, ev.Type, channel, note, velocity)
				case midi.EventController:
					channel, param, value := ev.Control()
					fmt.Printf("%s %s ch=%d param=%d value=%d\n",
						ev.Source, ev.Type, channel, param, value)
				default:
					fmt.Printf("%s %s\n", ev.Source, ev.Type)
				}
			}
		},
	}

	cmd.Flags().StringVar(&path, "path", midi.DefaultPath, "Sequencer device node")
	cmd.Flags().StringVar(&name, "name", "linuxgo", "Sequencer client name")
	cmd.Flags().BoolVar(&dump, "dump", false, "Create a port and print incoming events")

	return cmd
}
