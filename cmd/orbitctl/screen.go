package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/conjunction-engine/internal/catalog"
	"github.com/signalsfoundry/conjunction-engine/internal/screening"
)

var (
	screenAt          string
	screenWindowHours float64
	screenRadiusKm    float64
	screenWorkers     int
	screenShowEvents  int
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Run one conjunction screening pass",
	Long:  "screen snapshots the catalog at the reference epoch, hunts close approaches inside the analysis window, and appends the batch to the event log.",
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

		workers := cfg.Screening.Workers
		if screenWorkers > 0 {
			workers = screenWorkers
		}
		radius := cfg.Screening.PruneRadiusKm
		if screenRadiusKm > 0 {
			radius = screenRadiusKm
		}
		svc := screening.NewService(store, cliLogger(),
			screening.WithPruneRadius(radius),
			screening.WithSaveThreshold(cfg.Screening.SaveThresholdKm),
			screening.WithAnalysisWindow(time.Duration(cfg.Screening.WindowHours*float64(time.Hour))),
			screening.WithWorkers(workers),
		)

		var req screening.Request
		if screenAt != "" {
			t, err := time.Parse(time.RFC3339, screenAt)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			req.ReferenceTime = t
		}
		if screenWindowHours > 0 {
			req.WindowSec = screenWindowHours * 3600
		}

		res, err := svc.Run(cmd.Context(), req)
		if err != nil {
			return err
		}

		fmt.Printf("batch %s: %s\n", res.BatchID, res.Status)
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Reference epoch:\t%s\n", res.ReferenceTime.Format(time.RFC3339))
		fmt.Fprintf(tw, "Window:\t%.0f s\n", res.WindowSeconds)
		fmt.Fprintf(tw, "Objects usable:\t%d of %d\n", res.ObjectsUsable, res.ObjectsTotal)
		fmt.Fprintf(tw, "Candidate pairs:\t%d\n", res.CandidatePairs)
		fmt.Fprintf(tw, "Saved events:\t%d\n", res.SavedEvents)
		fmt.Fprintf(tw, "Refine failures:\t%d\n", res.RefineFailures)
		tw.Flush()

		if res.SavedEvents == 0 || screenShowEvents <= 0 {
			return nil
		}
		events, err := store.Events(cmd.Context(), catalog.EventQuery{Limit: screenShowEvents})
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		fmt.Println()
		tw = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "TYPE\tSCORE\tMISS KM\tREL KM/S\tTCA\tPAIR\n")
		for _, ev := range events {
			fmt.Fprintf(tw, "%s\t%.2f\t%.3f\t%.3f\t%s\t%s (%d) / %s (%d)\n",
				ev.EventType, ev.RiskScore, ev.MissKm, ev.RelVelocityKmS,
				ev.TCA.UTC().Format(time.RFC3339),
				ev.Object1Name, ev.Object1ID, ev.Object2Name, ev.Object2ID)
		}
		tw.Flush()
		return nil
	},
}

func init() {
	screenCmd.Flags().StringVar(&screenAt, "at", "", "Reference epoch (RFC 3339); defaults to now")
	screenCmd.Flags().Float64Var(&screenWindowHours, "window-hours", 0, "Analysis window around the epoch; defaults to the configured window")
	screenCmd.Flags().Float64Var(&screenRadiusKm, "radius-km", 0, "Broad-phase proximity radius; defaults to the configured radius")
	screenCmd.Flags().IntVar(&screenWorkers, "workers", 0, "Refinement workers; 0 uses the configured value")
	screenCmd.Flags().IntVar(&screenShowEvents, "show", 10, "Print up to this many saved events; 0 suppresses the table")
}
