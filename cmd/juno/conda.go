package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/juno/internal/jupyter"
)

func newCondaCmd(opts *launchOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conda ENV",
		Short: "Print the launch command for a conda environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			command, err := jupyter.CondaCommand(cmd.Context(), args[0], cfg.Server.DefaultCommand)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), command)
			return err
		},
	}
}
