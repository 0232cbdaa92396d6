package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/billscan/internal/review"
	"github.com/sells-group/billscan/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage reviewer work sessions",
}

func sessionService() *review.SessionService {
	return review.NewSessionService(time.Duration(cfg.Review.SessionTimeoutMins) * time.Minute)
}

func restoreSessions(cmd *cobra.Command, st store.Store, svc *review.SessionService) error {
	sessions, err := st.ListSessions(cmd.Context())
	if err != nil {
		return eris.Wrap(err, "load sessions")
	}
	for _, s := range sessions {
		svc.RestoreSession(s)
	}
	return nil
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <user-id>",
	Short: "Start a review session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := sessionService()
		session := svc.StartSession(args[0])
		if err := st.SaveSession(ctx, session); err != nil {
			return eris.Wrap(err, "save session")
		}

		fmt.Println(session.SessionID)
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a session and print its stats",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := sessionService()
		if err := restoreSessions(cmd, st, svc); err != nil {
			return err
		}

		stats, err := svc.EndSession(args[0])
		if err != nil {
			return err
		}
		session, err := svc.GetSession(args[0])
		if err != nil {
			return err
		}
		if err := st.SaveSession(ctx, session); err != nil {
			return eris.Wrap(err, "save session")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var (
	sessionRecordApproved bool
	sessionRecordTimeMS   int64
)

var sessionRecordCmd = &cobra.Command{
	Use:   "record <session-id> <case-id>",
	Short: "Record a reviewed case against a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := sessionService()
		if err := restoreSessions(cmd, st, svc); err != nil {
			return err
		}

		if err := svc.RecordReview(args[0], args[1], sessionRecordApproved, sessionRecordTimeMS); err != nil {
			return err
		}
		session, err := svc.GetSession(args[0])
		if err != nil {
			return err
		}
		if err := st.SaveSession(ctx, session); err != nil {
			return eris.Wrap(err, "save session")
		}

		fmt.Printf("recorded case %s (%d reviewed this session)\n", args[1], len(session.CasesReviewed))
		return nil
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Reactivate an ended session that has not yet expired",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := sessionService()
		if err := restoreSessions(cmd, st, svc); err != nil {
			return err
		}

		session, err := svc.ResumeSession(args[0])
		if err != nil {
			return err
		}
		if err := st.SaveSession(ctx, session); err != nil {
			return eris.Wrap(err, "save session")
		}

		fmt.Printf("session %s resumed, expires %s\n", session.SessionID, session.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DeleteExpiredSessions(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired sessions\n", n)
		return nil
	},
}

func init() {
	sessionRecordCmd.Flags().BoolVar(&sessionRecordApproved, "approved", false, "the case was approved")
	sessionRecordCmd.Flags().Int64Var(&sessionRecordTimeMS, "time-ms", 0, "time spent reviewing, in milliseconds")

	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionRecordCmd)
	sessionCmd.AddCommand(sessionResumeCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)
	rootCmd.AddCommand(sessionCmd)
}
