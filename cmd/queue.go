package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/review"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the review queue",
	Long:  "Commands for listing, viewing, and summarizing review cases.",
}

// -- queue list --

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review cases",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cases, err := loadCases(ctx, st)
		if err != nil {
			return err
		}

		state, _ := cmd.Flags().GetString("state")
		vendor, _ := cmd.Flags().GetString("vendor")
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		sortBy, _ := cmd.Flags().GetString("sort")
		order, _ := cmd.Flags().GetString("order")
		page, _ := cmd.Flags().GetInt("page")
		perPage, _ := cmd.Flags().GetInt("per-page")

		filter := review.QueueFilter{VendorID: vendor}
		if state != "" {
			filter.States = []model.ReviewState{model.ReviewState(state)}
		}
		if cmd.Flags().Changed("min-confidence") {
			filter.MinConfidence = &minConf
		}

		queue := review.NewQueueService(cases)
		result := queue.Query(filter, review.SortField(sortBy), review.SortOrder(order), page, perPage)

		if result.Total == 0 {
			fmt.Fprintln(os.Stderr, "No cases found.")
			return nil
		}

		formatQueueList(os.Stdout, result)
		return nil
	},
}

// -- queue show --

var queueShowCmd = &cobra.Command{
	Use:   "show <case-id>",
	Short: "Show full details of a case, including its audit log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		c, audit, err := st.GetCase(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "queue show")
		}

		out := struct {
			Case  *model.ReviewCase       `json:"case"`
			Audit []model.StateTransition `json:"audit"`
		}{c, audit}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// -- queue stats --

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate queue statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cases, err := loadCases(ctx, st)
		if err != nil {
			return err
		}

		stats := review.NewQueueService(cases).Stats()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Total cases:\t%d\n", stats.Total)
		for _, state := range []model.ReviewState{
			model.StatePending, model.StateInReview, model.StateApproved,
			model.StateRejected, model.StateArchived,
		} {
			fmt.Fprintf(w, "  %s:\t%d\n", state, stats.ByState[state])
		}
		fmt.Fprintf(w, "Avg confidence:\t%.1f\n", stats.AvgConfidence)
		if stats.OldestPendingAge > 0 {
			fmt.Fprintf(w, "Oldest pending:\t%s\n", stats.OldestPendingAge.Round(time.Second))
		}
		return w.Flush()
	},
}

func formatQueueList(out io.Writer, result review.QueueResult) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CASE ID\tSTATE\tVENDOR\tCONF\tFLAGS\tCREATED")
	for _, c := range result.Cases {
		flags := ""
		if c.Validation != nil {
			flags = fmt.Sprintf("%dH/%dS", len(c.Validation.HardFlags), len(c.Validation.SoftFlags))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\t%s\n",
			c.CaseID, c.State, c.VendorName, c.Confidence, flags,
			c.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush() //nolint:errcheck
	fmt.Fprintf(out, "\nPage %d/%d (%d cases)\n", result.Page, result.TotalPages, result.Total)
}

func init() {
	queueListCmd.Flags().String("state", "", "filter by state")
	queueListCmd.Flags().String("vendor", "", "filter by normalized vendor ID")
	queueListCmd.Flags().Float64("min-confidence", 0, "filter by minimum confidence")
	queueListCmd.Flags().String("sort", string(review.SortPriority), "sort field: created_at, updated_at, confidence, priority, vendor_name")
	queueListCmd.Flags().String("order", string(review.OrderAsc), "sort order: asc or desc")
	queueListCmd.Flags().Int("page", 1, "page number")
	queueListCmd.Flags().Int("per-page", 20, "cases per page")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueShowCmd)
	queueCmd.AddCommand(queueStatsCmd)
	rootCmd.AddCommand(queueCmd)
}
