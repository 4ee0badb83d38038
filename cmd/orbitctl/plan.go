package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/conjunction-engine/internal/maneuver"
)

var (
	planObjectID int
	planThreatID int
	planTCA      string
	planMargin   float64
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan an avoidance burn for a catalog pair",
	Long:  "plan searches for the smallest delta-v burn that opens the target miss distance at the given time of closest approach.",
	RunE: func(cmd *cobra.Command, args []string) error {
		tca, err := time.Parse(time.RFC3339, planTCA)
		if err != nil {
			return fmt.Errorf("--tca: %w", err)
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		svc := maneuver.NewService(store, cliLogger(),
			maneuver.WithTargetMiss(cfg.Maneuver.TargetMissKm),
			maneuver.WithDvBound(cfg.Maneuver.DvBoundKmS),
			maneuver.WithPenaltyWeight(cfg.Maneuver.PenaltyWeight),
			maneuver.WithLeadTime(cfg.Maneuver.LeadTime),
			maneuver.WithHomeCountry(cfg.Screening.HomeCountry),
		)

		res, err := svc.Plan(cmd.Context(), maneuver.Request{
			ObjectID:       planObjectID,
			ThreatID:       planThreatID,
			TCA:            tca,
			TargetMarginKm: planMargin,
		})
		if err != nil {
			return err
		}

		if res.Success {
			fmt.Printf("maneuver found for %d vs %d\n", res.ObjectID, res.ThreatID)
		} else {
			fmt.Printf("no acceptable maneuver for %d vs %d: %s\n", res.ObjectID, res.ThreatID, res.Message)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Burn time:\t%s\n", res.BurnTime.Format(time.RFC3339))
		fmt.Fprintf(tw, "Predicted TCA:\t%s\n", res.PredictedTCA.Format(time.RFC3339))
		fmt.Fprintf(tw, "Predicted miss:\t%.3f km\n", res.PredictedMissKm)
		fmt.Fprintf(tw, "Relative speed:\t%.3f km/s\n", res.PredictedRelVelKmS)
		fmt.Fprintf(tw, "Delta-v:\t[%.2f %.2f %.2f] m/s\n",
			res.DeltaV.X*1000, res.DeltaV.Y*1000, res.DeltaV.Z*1000)
		fmt.Fprintf(tw, "Delta-v magnitude:\t%.2f m/s\n", res.DeltaVMagKmS*1000)
		fmt.Fprintf(tw, "Target margin:\t%.3f km (%s)\n", res.TargetMarginKm, res.MarginRule)
		tw.Flush()
		return nil
	},
}

func init() {
	planCmd.Flags().IntVar(&planObjectID, "object", 0, "NORAD id of the maneuverable object")
	planCmd.Flags().IntVar(&planThreatID, "threat", 0, "NORAD id of the threat object")
	planCmd.Flags().StringVar(&planTCA, "tca", "", "Time of closest approach (RFC 3339)")
	planCmd.Flags().Float64Var(&planMargin, "margin-km", 0, "Target miss distance; defaults to the configured target")
	planCmd.MarkFlagRequired("object")
	planCmd.MarkFlagRequired("threat")
	planCmd.MarkFlagRequired("tca")
}
