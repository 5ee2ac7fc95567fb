package commands

import (
	"github.com/spf13/cobra"
)

const flagJobID = "id"

func newJobsCmd() *cobra.Command {
	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and maintain generation jobs",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show a job's current state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString(flagJobID)
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			view, err := rt.Engine.GetStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
	status.Flags().StringP(flagJobID, "i", "", "Job id")
	_ = status.MarkFlagRequired(flagJobID)

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Fail jobs stuck in pending past the stale age",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			n, err := rt.Engine.SweepStale(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"reclaimed": n})
		},
	}

	jobs.AddCommand(status)
	jobs.AddCommand(sweep)
	return jobs
}
