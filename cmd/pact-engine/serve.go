package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/form3tech-oss/pact-engine/internal/app/configuration"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and stub providers from contract files",
		Long: `Run the admin API. Every contract file matched by --pact is served by its own
mock server, on consecutive ports from --port. More can be started with POST /mocks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(config)
		},
	}

	cmd.Flags().Int("admin-port", 0, "Port of the admin API (default 8080)")
	cmd.Flags().String("host", "", "Host mock servers listen on (default 127.0.0.1)")
	cmd.Flags().Int("port", 0, "First port of the mock servers, 0 picks free ports")
	cmd.Flags().String("path-matching", "", "How literal request paths are matched (strict, typed-id)")
	return cmd
}

func serve(config configuration.Config) error {
	options := config.MockOptions()

	if len(config.Pacts) > 0 {
		files, err := configuration.FindContracts(config.Pacts)
		if err != nil {
			return err
		}
		if _, err := configuration.StartMocks(files, config.MockHost, config.MockPort, options...); err != nil {
			configuration.ShutdownAllServers(context.Background())
			return err
		}
	}

	adminServer := configuration.ServeAdminAPI(config.AdminPort, options...)
	log.WithField("port", config.AdminPort).Info("admin API started")

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := adminServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("admin API did not shut down cleanly")
	}
	configuration.ShutdownAllServers(ctx)
	return nil
}
