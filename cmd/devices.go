// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"

	"rtio/internal/audio"
	"rtio/internal/server"
	"rtio/internal/tui"

	"github.com/spf13/cobra"
)

func newDevicesCmd(dial server.Dialer) *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"list"},
		Short:   "List the audio and MIDI ports the server exposes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return tui.Run(func() (audio.ServerInfo, audio.MidiServerInfo) {
					return audio.DiscoverAudio(dial), audio.DiscoverMidi(dial)
				})
			}
			printDevices(cmd.OutOrStdout(), audio.DiscoverAudio(dial), audio.DiscoverMidi(dial))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&interactive, "tui", "t", false, "Browse ports in an interactive terminal UI")
	return cmd
}

func printDevices(w io.Writer, a audio.ServerInfo, m audio.MidiServerInfo) {
	if !a.Available {
		fmt.Fprintf(w, "%s: unavailable\n", a.Name)
	}
	for _, dev := range a.Devices {
		fmt.Fprintf(w, "%s: %s\n", a.Name, dev.Name)
		fmt.Fprintf(w, "  Sample rate: %d Hz\n", dev.SampleRates[dev.DefaultSampleRateIndex])
		fmt.Fprintf(w, "  Buffer size: %d frames\n", dev.DefaultBufferSize)

		fmt.Fprintln(w, "  Capture:")
		for i, p := range dev.InPorts {
			fmt.Fprintf(w, "    %s%s\n", p, marker(i == dev.DefaultInPort, "default"))
		}
		fmt.Fprintln(w, "  Playback:")
		for i, p := range dev.OutPorts {
			var role string
			switch {
			case i == dev.DefaultOutPortLeft && i == dev.DefaultOutPortRight:
				role = "default"
			case i == dev.DefaultOutPortLeft:
				role = "default left"
			case i == dev.DefaultOutPortRight:
				role = "default right"
			}
			fmt.Fprintf(w, "    %s%s\n", p, marker(role != "", role))
		}
	}

	if !m.Available {
		fmt.Fprintf(w, "%s MIDI: unavailable\n", m.Name)
		return
	}
	fmt.Fprintf(w, "%s MIDI:\n", m.Name)
	fmt.Fprintln(w, "  Capture:")
	for i, d := range m.InDevices {
		fmt.Fprintf(w, "    %s%s\n", d.Name, marker(i == m.DefaultInPort, "default"))
	}
	fmt.Fprintln(w, "  Playback:")
	for _, d := range m.OutDevices {
		fmt.Fprintf(w, "    %s\n", d.Name)
	}
}

func marker(ok bool, label string) string {
	if !ok {
		return ""
	}
	return " (" + label + ")"
}
