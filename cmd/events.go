package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"skywarden/internal/config"
	"skywarden/internal/models"
	"skywarden/internal/storage/sqlite"
)

var (
	eventsSince string
	eventsClass string
	eventsLimit int
	eventsPage  int
	eventsJSON  bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Query the detection event history",
	Example: `  skywarden events --since 24h
  skywarden events --since 168h --class hawk --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		since, err := time.ParseDuration(eventsSince)
		if err != nil {
			return fmt.Errorf("invalid --since duration: %w", err)
		}

		db, err := sqlite.New(cfg.Storage.DatabasePath)
		if err != nil {
			return err
		}
		repo := sqlite.NewEventRepository(db)
		defer repo.Close()

		filter := models.EventFilter{
			From:   time.Now().Add(-since),
			Class:  eventsClass,
			Limit:  eventsLimit,
			Offset: (eventsPage - 1) * eventsLimit,
		}

		events, err := repo.Query(filter)
		if err != nil {
			return err
		}
		total, err := repo.Count(filter)
		if err != nil {
			return err
		}

		if eventsJSON {
			return json.NewEncoder(os.Stdout).Encode(events)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tCLASS\tCONFIDENCE\tALERTED\tCHANNELS\tIMAGE")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%v\t%s\t%s\n",
				ev.Timestamp.Local().Format("2006-01-02 15:04:05"),
				ev.Class,
				ev.Confidence,
				ev.AlertFired,
				strings.Join(ev.ChannelsNotified, ","),
				ev.ImagePath,
			)
		}
		w.Flush()
		fmt.Printf("\n%d of %d events (page %d)\n", len(events), total, eventsPage)
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsSince, "since", "24h", "how far back to query")
	eventsCmd.Flags().StringVar(&eventsClass, "class", "", "filter by detection class")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "events per page")
	eventsCmd.Flags().IntVar(&eventsPage, "page", 1, "page number")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(eventsCmd)
}
