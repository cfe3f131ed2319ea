package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"skywarden/internal/config"
	"skywarden/internal/storage"
	"skywarden/internal/storage/sqlite"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retention sweep and exit",
	Long: `Deletes detection images older than the image retention window and
event records older than the log retention window. Safe to re-run;
an already swept store is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		db, err := sqlite.New(cfg.Storage.DatabasePath)
		if err != nil {
			return err
		}
		repo := sqlite.NewEventRepository(db)
		defer repo.Close()

		images, err := storage.NewImageStore(cfg.Storage.ImageDirectory, cfg.Storage.MaxImageBytes())
		if err != nil {
			return err
		}

		stats, err := storage.NewSweeper(repo, images, cfg.Storage).Sweep(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("swept %d events, %d images\n", stats.EventsDeleted, stats.ImagesDeleted)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
