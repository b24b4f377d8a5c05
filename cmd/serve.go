package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/tee-validator-signer/internal/attestation"
	"github.com/ethpandaops/tee-validator-signer/internal/httpapi"
	"github.com/ethpandaops/tee-validator-signer/internal/keylock"
	"github.com/ethpandaops/tee-validator-signer/internal/keystore"
	"github.com/ethpandaops/tee-validator-signer/internal/signingpipeline"
	"github.com/ethpandaops/tee-validator-signer/internal/slashdb"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the signer",
	Long: `Starts the signer service: opens the sealed key store and
slashing-protection database, and begins serving the remote signing API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if cfg.DataDir == "" {
			return fmt.Errorf("--data-dir is required")
		}

		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		// 1. Open the sealed key store.
		logger.WithField("data_dir", cfg.DataDir).Info("Opening key store...")

		keys, err := keystore.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open key store: %w", err)
		}
		defer keys.Close() //nolint:errcheck // cleanup

		logger.WithField("bls_keys", len(keys.ListBLS())).Info("Key store loaded")

		if _, ok := keys.AnyETHKeyPair(); !ok {
			logger.Info("No secp256k1 identity key found, generating one for remote key import...")

			pubkeyHex, genErr := keys.GenerateETH()
			if genErr != nil {
				return fmt.Errorf("failed to generate secp256k1 identity key: %w", genErr)
			}

			logger.WithField("eth_pub_hex", pubkeyHex).Info("Generated secp256k1 identity key")
		}

		// 2. Open the slashing-protection database.
		logger.Info("Opening slashing-protection database...")

		protection, err := slashdb.Open(cfg.DataDir, cfg.ReplayPolicy)
		if err != nil {
			return fmt.Errorf("failed to open slashing-protection database: %w", err)
		}
		defer protection.Close() //nolint:errcheck // cleanup

		// 3. Wire the signing pipeline.
		locks := keylock.NewRegistry()
		pipeline := signingpipeline.New(keys, protection, locks)

		// 4. Start the HTTP API.
		srv := httpapi.NewServer(httpapi.Options{
			Keys:               keys,
			Pipeline:           pipeline,
			Protection:         protection,
			Oracle:             attestation.NewStub(),
			Log:                logger,
			MetricsEnabled:     cfg.MetricsEnabled,
			AttestationEnabled: cfg.AttestationEnabled,
		})

		logger.WithField("addr", cfg.ListenAddr).Info("Starting signer HTTP server...")

		if err := srv.Start(cfg.ListenAddr); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		defer srv.Stop() //nolint:errcheck // cleanup

		logger.Info("Signer is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Info("Received shutdown signal")
		case <-ctx.Done():
			logger.Info("Context cancelled")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
