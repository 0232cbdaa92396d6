package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/billscan/internal/export"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data to XLSX workbooks",
}

var exportQueueCmd = &cobra.Command{
	Use:   "queue <out.xlsx>",
	Short: "Export the review queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		state, _ := cmd.Flags().GetString("state")
		cases, err := st.ListCases(ctx, store.CaseFilter{State: model.ReviewState(state), Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "list cases")
		}

		if err := export.WriteCasesXLSX(args[0], cases); err != nil {
			return err
		}
		fmt.Printf("wrote %d cases to %s\n", len(cases), args[0])
		return nil
	},
}

var exportCalibrationCmd = &cobra.Command{
	Use:   "calibration <out.xlsx>",
	Short: "Export calibration history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		points, err := st.LoadCalibrationPoints(ctx, "")
		if err != nil {
			return eris.Wrap(err, "load calibration points")
		}

		if err := export.WriteCalibrationXLSX(args[0], points); err != nil {
			return err
		}
		fmt.Printf("wrote %d samples to %s\n", len(points), args[0])
		return nil
	},
}

func init() {
	exportQueueCmd.Flags().String("state", "", "filter by state")
	exportCmd.AddCommand(exportQueueCmd)
	exportCmd.AddCommand(exportCalibrationCmd)
	rootCmd.AddCommand(exportCmd)
}
