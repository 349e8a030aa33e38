package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/condoflow/ms-go-reconciliation/config"
)

var (
	workerMode bool
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Run webhook retry related commands",
}

var retryProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Process webhook events that are due for a retry attempt",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"retry_process",
			func(cfg *config.Config) time.Duration { return cfg.Retry.PollInterval },
			func(deps *serverDeps, ctx context.Context) error {
				return deps.reconciliationService.ProcessRetryBatch(ctx)
			},
		)
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Run chart-of-accounts related commands",
}

var accountsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that every condominium has its role accounts provisioned",
	Run: func(_ *cobra.Command, _ []string) {
		_, deps, cleanup := mustCreateServices()
		defer cleanup()

		runJob("accounts_validate", func() error {
			return deps.ledgerService.ValidateRoleAccounts(context.Background())
		})
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(accountsCmd)
	retryCmd.AddCommand(retryProcessCmd)
	accountsCmd.AddCommand(accountsValidateCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(deps *serverDeps, ctx context.Context) error,
) {
	cfg, deps, cleanup := mustCreateServices()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), deps, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(deps, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	deps *serverDeps,
	fn func(deps *serverDeps, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(deps, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(deps, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
