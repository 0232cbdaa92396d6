package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/review"
	"github.com/sells-group/billscan/internal/store"
)

var (
	reviewUser   string
	reviewReason string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Move cases through the review workflow",
}

// transitionCase loads a case, applies the transition, and persists the
// result with its updated audit log.
func transitionCase(cmd *cobra.Command, caseID string, to model.ReviewState) error {
	ctx := cmd.Context()

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	c, audit, err := st.GetCase(ctx, caseID)
	if err != nil {
		return err
	}

	svc := review.NewCaseService()
	svc.Restore(*c, audit)

	updated, err := svc.Transition(caseID, to, reviewUser, reviewReason)
	if err != nil {
		return err
	}
	newAudit, err := svc.AuditLog(caseID)
	if err != nil {
		return err
	}
	if err := st.SaveCase(ctx, updated, newAudit); err != nil {
		return eris.Wrap(err, "save case")
	}

	// Approval and rejection are ground truth for calibration.
	if to == model.StateApproved || to == model.StateRejected {
		if err := recordOutcome(cmd, st, updated, to == model.StateApproved); err != nil {
			return err
		}
	}

	fmt.Printf("%s -> %s\n", caseID, to)
	return nil
}

func recordOutcome(cmd *cobra.Command, st store.Store, c model.ReviewCase, approved bool) error {
	points := make([]model.CalibrationDataPoint, 0, len(c.Fields))
	for _, f := range c.Fields {
		points = append(points, model.CalibrationDataPoint{
			PredictedConfidence: f.Confidence,
			ActualCorrect:       approved,
			FieldName:           f.Name,
			VendorID:            c.VendorID,
		})
	}
	return eris.Wrap(st.AppendCalibrationPoints(cmd.Context(), points), "record outcome")
}

var reviewClaimCmd = &cobra.Command{
	Use:   "claim <case-id>",
	Short: "Move a case into review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionCase(cmd, args[0], model.StateInReview)
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <case-id>",
	Short: "Approve a case under review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionCase(cmd, args[0], model.StateApproved)
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <case-id>",
	Short: "Reject a case under review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionCase(cmd, args[0], model.StateRejected)
	},
}

var reviewArchiveCmd = &cobra.Command{
	Use:   "archive <case-id>",
	Short: "Archive a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transitionCase(cmd, args[0], model.StateArchived)
	},
}

var reviewUndoCmd = &cobra.Command{
	Use:   "undo <case-id>",
	Short: "Undo the most recent state transition",
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
			return err
		}

		svc := review.NewCaseService()
		svc.Restore(*c, audit)

		updated, err := svc.UndoLastTransition(args[0])
		if err != nil {
			return err
		}
		newAudit, err := svc.AuditLog(args[0])
		if err != nil {
			return err
		}
		if err := st.SaveCase(ctx, updated, newAudit); err != nil {
			return eris.Wrap(err, "save case")
		}

		fmt.Printf("%s restored to %s\n", args[0], updated.State)
		return nil
	},
}

func init() {
	reviewCmd.PersistentFlags().StringVar(&reviewUser, "user", "", "reviewer user ID")
	reviewCmd.PersistentFlags().StringVar(&reviewReason, "reason", "", "reason for the transition")

	reviewCmd.AddCommand(reviewClaimCmd)
	reviewCmd.AddCommand(reviewApproveCmd)
	reviewCmd.AddCommand(reviewRejectCmd)
	reviewCmd.AddCommand(reviewArchiveCmd)
	reviewCmd.AddCommand(reviewUndoCmd)
	rootCmd.AddCommand(reviewCmd)
}
