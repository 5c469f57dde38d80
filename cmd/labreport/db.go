package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
	"github.com/joseph-ayodele/labreport-extractor/internal/repository"
	"github.com/joseph-ayodele/labreport-extractor/internal/server"
)

var dbTimeout time.Duration

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Extraction history database commands",
}

var dbPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect to the configured store, migrate it and ping it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		repo, err := connectStore(cmd, cfg, logger)
		if err != nil {
			return err
		}
		defer server.CloseStore(repo, logger)

		start := time.Now()
		if err := server.PingStore(cmd.Context(), repo, logger, dbTimeout); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok (%s)\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	dbPingCmd.Flags().DurationVar(&dbTimeout, "timeout", 3*time.Second, "ping timeout")
	dbCmd.AddCommand(dbPingCmd)
}

func connectStore(cmd *cobra.Command, cfg *common.Config, logger *slog.Logger) (repository.ExtractionRepository, error) {
	return server.ConnectStore(cmd.Context(), cfg.Store, logger)
}
