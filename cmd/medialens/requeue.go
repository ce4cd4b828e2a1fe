package main

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/medialens/internal/store"
	"github.com/spf13/cobra"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue <subject-id>...",
	Short: "Return failed jobs to the queue with a fresh attempt budget",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, cleanup, err := setup()
		if err != nil {
			return err
		}
		defer cleanup()

		pool, s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		var failed int
		for _, subjectID := range args {
			job, err := s.RequeueJob(cmd.Context(), subjectID)
			switch {
			case errors.Is(err, store.ErrNotFound):
				logger.Warn("no job for subject", "subject_id", subjectID)
				failed++
			case err != nil:
				logger.Warn("requeue failed", "subject_id", subjectID, "error", err)
				failed++
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", job.SubjectID, job.ID, job.Status)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d jobs not requeued", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(requeueCmd)
}
