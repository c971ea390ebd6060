package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jmehdipour/agency-crm/cmd/worker"
	"github.com/jmehdipour/agency-crm/internal/config"
	"github.com/jmehdipour/agency-crm/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	cfg     config.Config
	rootCmd = &cobra.Command{
		Use:           "agency-crm",
		Short:         "Agency CRM CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional; real environment wins over it
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}

			c, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = c
			logger.Init(cfg.Log.Level, cfg.Log.Encoding)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd(func() config.Config { return cfg }))
}
