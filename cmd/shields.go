package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/billscan/internal/calibrate"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/shield"
)

var shieldsVendor string

var shieldsCmd = &cobra.Command{
	Use:   "shields",
	Short: "Manage cleanup shields",
}

var shieldsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List shields for a vendor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		shields, err := st.GetShields(ctx, calibrate.NormalizeVendorID(shieldsVendor))
		if err != nil {
			return eris.Wrap(err, "load shields")
		}
		if len(shields) == 0 {
			fmt.Fprintln(os.Stderr, "No shields found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tMODE\tRISK\tCONF\tWHY")
		for _, s := range shields {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
				s.ID, s.Type, s.ApplyMode, s.RiskLevel, s.Confidence, s.WhyDetected)
		}
		return w.Flush()
	},
}

var shieldsSetModeCmd = &cobra.Command{
	Use:   "set-mode <shield-id> <applied|suggested|disabled>",
	Short: "Change a shield's apply mode",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		vendorID := calibrate.NormalizeVendorID(shieldsVendor)
		shields, err := st.GetShields(ctx, vendorID)
		if err != nil {
			return eris.Wrap(err, "load shields")
		}

		engine := shield.NewEngine()
		if err := engine.Seed(shields); err != nil {
			return eris.Wrap(err, "seed shields")
		}
		if err := engine.SetApplyMode(args[0], model.ApplyMode(args[1])); err != nil {
			return err
		}
		if err := st.SaveShields(ctx, vendorID, engine.Shields()); err != nil {
			return eris.Wrap(err, "save shields")
		}

		fmt.Printf("%s -> %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	shieldsCmd.PersistentFlags().StringVar(&shieldsVendor, "vendor", "", "vendor name scoping the shields")
	shieldsCmd.AddCommand(shieldsListCmd)
	shieldsCmd.AddCommand(shieldsSetModeCmd)
	rootCmd.AddCommand(shieldsCmd)
}
