package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/form3tech-oss/pact-engine/internal/app/configuration"
	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/verifier"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Replay contract files against a running provider",
		Long: `Replay every interaction of the contract files matched by --pact (every JSON file
below PACT_DIR by default) against the
provider at --provider-base-url. Exits non-zero when any interaction failed. An
interrupt stops the run, interactions not yet replayed are reported skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return verify(ctx, config, cmd)
		},
	}

	cmd.Flags().String("provider-base-url", "", "Base URL of the provider under test")
	cmd.Flags().String("state-change-url", "", "URL provider states are set up through")
	cmd.Flags().Int("workers", 0, "Interactions replayed at the same time (default 1)")
	cmd.Flags().Int("attempts", 0, "Attempts for requests failing with network errors (default 3)")
	cmd.Flags().Duration("retry-delay", 0, "Base of the linear backoff between attempts (default 200ms)")
	return cmd
}

func verify(ctx context.Context, config configuration.Config, cmd *cobra.Command) error {
	files, err := configuration.FindContracts(config.ContractPatterns())
	if err != nil {
		return err
	}

	v, err := verifier.New(config.ProviderBaseURL, config.VerifierOptions()...)
	if err != nil {
		return err
	}

	failed, verified, skipped := 0, 0, 0
	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		artifact, err := contract.ReadFile(file)
		if err != nil {
			return err
		}

		report := v.Verify(ctx, artifact)
		report.Source = file
		if err := report.Write(cmd.OutOrStdout()); err != nil {
			return err
		}
		verified++
		skipped += report.Count(verifier.StatusSkipped)
		if report.Failed() {
			failed++
		}
	}

	if ctx.Err() != nil {
		for _, file := range files[verified:] {
			fmt.Fprintf(cmd.OutOrStdout(), "Not verified: %s\n", file)
		}
		return errors.Errorf("verification interrupted: %d interactions skipped, %d of %d contracts not verified, %d failed",
			skipped, len(files)-verified, len(files), failed)
	}
	if failed > 0 {
		return errors.Errorf("%d of %d contracts failed verification", failed, len(files))
	}
	return nil
}
