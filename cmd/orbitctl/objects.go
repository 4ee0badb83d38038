package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/conjunction-engine/internal/catalog"
)

var (
	objectsSearch   string
	objectsCountry  string
	objectsPriority string
	objectsLimit    int
)

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "List tracked catalog objects",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		objects, err := store.Objects(cmd.Context(), catalog.ObjectQuery{
			Search:   objectsSearch,
			Country:  strings.ToUpper(objectsCountry),
			Priority: strings.ToUpper(objectsPriority),
			Limit:    objectsLimit,
		})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "NORAD\tNAME\tCOUNTRY\tPRIORITY\tMISSION\tUPDATED\n")
		for _, o := range objects {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				o.NoradID, o.Name, o.Country, o.Priority, o.Mission,
				o.UpdatedAt.UTC().Format(time.RFC3339))
		}
		tw.Flush()
		fmt.Printf("%d objects\n", len(objects))
		return nil
	},
}

func init() {
	objectsCmd.Flags().StringVar(&objectsSearch, "search", "", "Substring match on object name")
	objectsCmd.Flags().StringVar(&objectsCountry, "country", "", "Filter by country code")
	objectsCmd.Flags().StringVar(&objectsPriority, "priority", "", "Filter by priority (PRIMARY or SECONDARY)")
	objectsCmd.Flags().IntVar(&objectsLimit, "limit", 0, "Maximum rows to list; 0 lists everything")
}
