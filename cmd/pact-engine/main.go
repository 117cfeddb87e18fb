package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/form3tech-oss/pact-engine/internal/app/configuration"
)

const rootLongDesc string = `pact-engine serves and verifies consumer driven contracts.

  pact-engine serve     Run the admin API and stub providers from contract files
  pact-engine verify    Replay contract files against a running provider`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pact-engine",
		Short:         "Consumer driven contract testing",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringSlice("pact", nil, "Contract file globs, e.g. pacts/**/*.json")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVerifyCmd())
	return cmd
}

// loadConfig reads the config file and the environment, then applies the flags the
// user set on the command line.
func loadConfig(cmd *cobra.Command) (configuration.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return configuration.Config{}, err
	}
	config, err := configuration.Load(cmd.Context(), path)
	if err != nil {
		return config, err
	}

	flags := cmd.Flags()
	if flags.Changed("pact") {
		config.Pacts, _ = flags.GetStringSlice("pact")
	}
	if flags.Changed("log-level") {
		config.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("path-matching") {
		config.PathMatching, _ = flags.GetString("path-matching")
	}
	if flags.Changed("host") {
		config.MockHost, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		config.MockPort, _ = flags.GetInt("port")
	}
	if flags.Changed("admin-port") {
		config.AdminPort, _ = flags.GetInt("admin-port")
	}
	if flags.Changed("provider-base-url") {
		config.ProviderBaseURL, _ = flags.GetString("provider-base-url")
	}
	if flags.Changed("state-change-url") {
		config.StateChangeURL, _ = flags.GetString("state-change-url")
	}
	if flags.Changed("workers") {
		config.VerifyWorkers, _ = flags.GetInt("workers")
	}
	if flags.Changed("attempts") {
		config.VerifyAttempts, _ = flags.GetInt("attempts")
	}
	if flags.Changed("retry-delay") {
		config.VerifyRetryDelay, _ = flags.GetDuration("retry-delay")
	}

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, config.ConfigureLogging()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
