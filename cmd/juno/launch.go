package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/juno"
	"pkt.systems/juno/core"
	"pkt.systems/juno/httpapi"
	"pkt.systems/juno/internal/appconfig"
	"pkt.systems/pslog"
)

// launchOptions are the persistent flags shared by every subcommand.
type launchOptions struct {
	configPath string
	stateDir   string
	chrome     string
	listen     string
	headless   bool
}

func (o *launchOptions) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "path to config file")
	flags.StringVar(&o.stateDir, "state-dir", "", "directory holding settings (overrides config)")
	flags.StringVar(&o.chrome, "chrome", "", "path to the Chrome/Chromium binary (overrides config)")
	flags.StringVar(&o.listen, "listen", "", "front-end listen address (overrides config)")
	flags.BoolVar(&o.headless, "headless", false, "run the browser headless")
}

// load reads the config file and applies flag overrides.
func (o *launchOptions) load() (appconfig.Config, error) {
	cfg, err := appconfig.Load(o.configPath)
	if err != nil {
		return appconfig.Config{}, err
	}
	if v := strings.TrimSpace(o.stateDir); v != "" {
		cfg.StateDir = v
	}
	if v := strings.TrimSpace(o.chrome); v != "" {
		cfg.Browser.ExecPath = v
	}
	if v := strings.TrimSpace(o.listen); v != "" {
		cfg.HTTP.Addr = v
	}
	if o.headless {
		cfg.Browser.Headless = true
	}
	return cfg, nil
}

func toAppConfig(cfg appconfig.Config) juno.AppConfig {
	return juno.AppConfig{
		Shell:    cfg.ShellConfig(),
		StateDir: cfg.StateDir,
		HTTP:     httpapi.Config{Addr: cfg.HTTP.Addr},
		Browser: juno.BrowserConfig{
			ExecPath:    cfg.Browser.ExecPath,
			UserDataDir: cfg.Browser.UserDataDir,
			Headless:    cfg.Browser.Headless,
			Flags:       cfg.Browser.FlagMap(),
		},
	}
}

// runApp starts the shell, opens resource (or the connect dialog) and
// blocks until the last window closes or a signal arrives.
func runApp(ctx context.Context, opts launchOptions, resource string) error {
	logger := pslog.Ctx(ctx)
	// Fail before the browser starts when the resource cannot be opened.
	if strings.TrimSpace(resource) != "" {
		if _, err := core.ResolveResource(resource); err != nil {
			return err
		}
	}
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	app, err := juno.New(toAppConfig(cfg), juno.AppDeps{Logger: logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := app.Start(ctx); err != nil {
		return err
	}
	stopTimeout := cfg.ShellConfig().TerminateGrace + 5*time.Second
	if err := app.Open(ctx, resource); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if stopErr := app.Stop(stopCtx); stopErr != nil {
			logger.Warn("app stop failed", "err", stopErr)
		}
		return err
	}
	return app.Wait()
}
