package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rockbears/log"
	"github.com/spf13/cobra"

	"github.com/hostops/hops/engine/api"
	"github.com/hostops/hops/engine/service"
)

var flagStartConfigFile string

func init() {
	startCmd.Flags().StringVar(&flagStartConfigFile, "config", "", "config file")
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start hops",
	Long: `
Start hops API

The API serves the job endpoints and runs the orchestrator loop, the event
dispatcher and the scheduler. Several instances may share the database and
the redis cache.

You have to specify where the toml configuration is:

	$ engine start --config hops.toml

You can also override the toml file with environment variables.

See $ engine config command for more details.
`,
	Run: func(cmd *cobra.Command, args []string) {
		conf := configImport(flagStartConfigFile, false)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// gracefully shutdown all
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-c
			signal.Stop(c)
			cancel()
		}()

		initLog(ctx, conf)

		s := api.New()
		if err := s.ApplyConfiguration(*conf.API); err != nil {
			log.Error(ctx, "unable to init api: %v", err)
			os.Exit(1)
		}

		if err := serve(ctx, s); err != nil {
			log.Error(ctx, "api has been stopped: %+v", err)
			os.Exit(1)
		}
	},
}

func serve(ctx context.Context, s service.Service) error {
	if err := s.Serve(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		log.Info(ctx, "Service exiting (%v)", ctx.Err())
	}
	return nil
}
