// SPDX-License-Identifier: MIT
// Package cmd is the rtio command line.
package cmd

import (
	"fmt"
	"io"

	applog "rtio/internal/log"
	"rtio/internal/server"
	"rtio/pkg/build"

	"github.com/spf13/cobra"
)

var cliLog = applog.Named("cli")

// NewRootCmd builds the command tree. Every command that talks to the
// audio server goes through dial.
func NewRootCmd(dial server.Dialer) *cobra.Command {
	buildInfo := build.GetBuildFlags()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.AddCommand(
		newDevicesCmd(dial),
		newRunCmd(dial),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.GetBuildFlags())
		},
	}
}

// Execute runs the command line with args.
func Execute(dial server.Dialer, args []string, out io.Writer) error {
	rootCmd := NewRootCmd(dial)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	return rootCmd.Execute()
}
