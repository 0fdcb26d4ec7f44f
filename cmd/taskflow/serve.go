package main

import (
	"errors"

	"github.com/nomis52/taskflow/buildinfo"
	"github.com/nomis52/taskflow/server"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	listen string
	cron   string
}

func newServeCmd(global *globalFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured workflows over HTTP",
		Long: `Serve starts an HTTP server that runs the workflows listed in the config on
request and on a cron schedule. Only one run is in progress at a time.

The config file can be reloaded with POST /reload.`,
		Example: `  taskflow serve -c /etc/taskflow/config.yaml
  taskflow serve -c config.yaml --listen :9090 --cron "etl:0 2 * * *"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if global.configPath == "" {
				return errors.New("--config is required")
			}
			cfg, err := loadConfig(global.configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(&cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			props := buildinfo.Get()
			logger.Info("taskflow server starting",
				"version", props.Version,
				"build_time", props.BuildTime,
				"git_commit", props.GitCommit,
			)

			opts := []server.Option{server.WithLogger(logger.Logger)}
			if flags.listen != "" {
				opts = append(opts, server.WithListenAddr(flags.listen))
			}
			if flags.cron != "" {
				opts = append(opts, server.WithCron(flags.cron))
			}

			srv, err := server.New(global.configPath, opts...)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&flags.listen, "listen", "", "listen address, overrides server.listen_addr")
	cmd.Flags().StringVar(&flags.cron, "cron", "", `cron triggers, e.g. "etl,report:0 2 * * *", overrides server.cron`)
	return cmd
}
