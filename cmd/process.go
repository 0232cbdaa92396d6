package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/billscan/internal/calibrate"
	"github.com/sells-group/billscan/internal/ocr"
	"github.com/sells-group/billscan/internal/pipeline"
	"github.com/sells-group/billscan/internal/review"
	"github.com/sells-group/billscan/internal/shield"
)

var processVendor string

var processCmd = &cobra.Command{
	Use:   "process <page.png> [page2.png ...]",
	Short: "Run a scanned document through the extraction pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		engine, err := ocr.NewEngine(cfg.OCR)
		if err != nil {
			return eris.Wrap(err, "init ocr engine")
		}

		shieldEngine := shield.NewEngine()

		calibrator := calibrate.New(cfg.Calibration)
		points, err := st.LoadCalibrationPoints(ctx, "")
		if err != nil {
			return eris.Wrap(err, "load calibration history")
		}
		calibrator.Restore(points)

		cases := review.NewCaseService()
		proc := pipeline.New(cfg, engine, shieldEngine, calibrator, cases)

		// Seed known vendor shields after the processor has installed the
		// critical zones, so seeded shields go through the zone rules too.
		if processVendor != "" {
			known, err := st.GetShields(ctx, calibrate.NormalizeVendorID(processVendor))
			if err != nil {
				return eris.Wrap(err, "load shields")
			}
			if err := shieldEngine.Seed(known); err != nil {
				return eris.Wrap(err, "seed shields")
			}
		}

		result, err := proc.ProcessDocument(ctx, args)
		if err != nil {
			return eris.Wrap(err, "process document")
		}

		if err := st.SaveCase(ctx, result.Case, nil); err != nil {
			return eris.Wrap(err, "save case")
		}
		if result.VendorID != "" {
			if err := st.SaveShields(ctx, result.VendorID, shieldEngine.Shields()); err != nil {
				zap.L().Warn("save shields failed", zap.Error(err))
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	processCmd.Flags().StringVar(&processVendor, "vendor", "", "vendor name, enables vendor-specific shields")
	rootCmd.AddCommand(processCmd)
}
