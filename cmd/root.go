// Package cmd implements the CLI commands for the signer.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ethpandaops/tee-validator-signer/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logrus.Logger
	v       *viper.Viper
)

var rootCmd = &cobra.Command{
	Use:   "tee-validator-signer",
	Short: "Remote BLS signer for Ethereum consensus validators",
	Long: `tee-validator-signer is a remote signing enclave for Ethereum
consensus validator keys: it holds BLS12-381 signing keys, enforces
slashing-protection invariants on every signature it produces, and
exposes a Web3Signer-compatible HTTP API for beacon nodes and validator
clients.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initLogger()

		return initConfig()
	},
}

func init() {
	v = viper.New()
	cobra.OnInitialize(loadConfigFile)

	defaults := config.DefaultConfig()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().String("listen-addr", defaults.ListenAddr, "HTTP API listen address")
	rootCmd.PersistentFlags().String("data-dir", defaults.DataDir, "Sealed-storage directory for keys and slashing-protection history")
	rootCmd.PersistentFlags().String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", defaults.Debug, "Enable verbose request/response logging")
	rootCmd.PersistentFlags().Bool("metrics", defaults.MetricsEnabled, "Expose a Prometheus /metrics endpoint")
	rootCmd.PersistentFlags().Bool("attestation", defaults.AttestationEnabled, "Expose the remote-attestation endpoint")
	rootCmd.PersistentFlags().String("replay-policy", string(defaults.ReplayPolicy), "Exact re-sign policy: return_cached or reject")

	if err := v.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		logger.WithError(err).Fatal("Failed to bind flags")
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initLogger() {
	logger = logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level, err := logrus.ParseLevel(v.GetString("log-level"))
	if err != nil {
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
}

func loadConfigFile() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("signer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tee-validator-signer")
	}

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if logger != nil {
				logger.WithError(err).Warn("Error reading config file")
			}
		}
	}
}

func initConfig() error {
	loader := config.NewLoader(logger)
	cfg = loader.LoadConfigFromFlags(v)

	return config.ValidateConfig(cfg)
}

// GetConfig returns the current configuration.
func GetConfig() *config.Config {
	return cfg
}

// GetLogger returns the application logger.
func GetLogger() *logrus.Logger {
	return logger
}
