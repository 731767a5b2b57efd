package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/juno/internal/picker"
	"pkt.systems/juno/internal/settings"
	"pkt.systems/pslog"
)

func newPickCmd(opts *launchOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pick",
		Short: "Choose a recent notebook in the terminal and open it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := readSources(opts)
			if err != nil {
				return err
			}
			choice, err := picker.Choose(sources)
			if errors.Is(err, picker.ErrCancelled) {
				pslog.Ctx(cmd.Context()).Debug("pick cancelled")
				return nil
			}
			if err != nil {
				return fmt.Errorf("pick: %w", err)
			}
			return runApp(cmd.Context(), *opts, choice)
		},
	}
}

func newSourcesCmd(opts *launchOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List recently opened notebooks, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := readSources(opts)
			if err != nil {
				return err
			}
			for _, source := range sources {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), source); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func readSources(opts *launchOptions) ([]string, error) {
	cfg, err := opts.load()
	if err != nil {
		return nil, err
	}
	store, err := settings.Open(settings.Options{Dir: cfg.StateDir})
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()
	return store.Sources(), nil
}
