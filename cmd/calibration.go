package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/billscan/internal/calibrate"
)

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Inspect confidence calibration",
}

var calibrationStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show calibration quality per vendor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		vendor, _ := cmd.Flags().GetString("vendor")

		points, err := st.LoadCalibrationPoints(ctx, calibrate.NormalizeVendorID(vendor))
		if err != nil {
			return eris.Wrap(err, "load calibration points")
		}

		calibrator := calibrate.New(cfg.Calibration)
		calibrator.Restore(points)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Samples:\t%d\n", calibrator.SampleCount(vendor))
		fmt.Fprintf(w, "Calibration error:\t%.2f\n", calibrator.CalibrationError(vendor))
		fmt.Fprintf(w, "Needs recalibration:\t%t\n", calibrator.NeedsRecalibration(vendor))
		return w.Flush()
	},
}

func init() {
	calibrationStatsCmd.Flags().String("vendor", "", "vendor name; empty for global stats")
	calibrationCmd.AddCommand(calibrationStatsCmd)
	rootCmd.AddCommand(calibrationCmd)
}
