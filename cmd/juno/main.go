package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("juno command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var opts launchOptions
	root := &cobra.Command{
		Use:   "juno [notebook-dir | notebook-file | url]",
		Short: "Desktop shell for Jupyter notebook servers",
		Long: "Juno opens a notebook directory, file or server URL in its own window,\n" +
			"starting and supervising a local Jupyter server when needed.\n" +
			"Without an argument it shows the connect dialog.",
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			resource := ""
			if len(args) == 1 {
				resource = args[0]
			}
			return runApp(cmd.Context(), opts, resource)
		},
	}
	opts.bind(root)

	root.AddCommand(newPickCmd(&opts))
	root.AddCommand(newSourcesCmd(&opts))
	root.AddCommand(newCondaCmd(&opts))
	root.AddCommand(newInitCmd(&opts))
	root.AddCommand(newVersionCmd())

	return root
}
