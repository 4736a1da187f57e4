package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockrush/blockrush/internal/app/jobs"
	"github.com/blockrush/blockrush/internal/daemon"
)

func init() {
	jobsCmd.AddCommand(jobsListCmd, jobsRunCmd)
	rootCmd.AddCommand(jobsCmd)
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and run scheduled jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs and their intervals",
	RunE: func(cmd *cobra.Command, args []string) error {
		intervals := map[string]string{
			jobs.NameChallengeDaily:   cfg.Scheduler.DailyRotation,
			jobs.NameChallengeWeekly:  cfg.Scheduler.WeeklyRotation,
			jobs.NameSeasonTransition: cfg.Scheduler.SeasonTransition,
			jobs.NameStreakNotify:     cfg.Scheduler.StreakNotify,
		}
		d, err := daemon.New(cfg, log)
		if err != nil {
			return err
		}
		defer d.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tINTERVAL")
		for _, name := range d.Jobs.Names() {
			every := intervals[name]
			if every == "" || every == "0" {
				every = "disabled"
			}
			fmt.Fprintf(w, "%s\t%s\n", name, every)
		}
		return w.Flush()
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run one job now and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New(cfg, log)
		if err != nil {
			return err
		}
		defer d.Close()

		start := time.Now()
		if err := d.RunJob(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s finished in %s\n", args[0], time.Since(start).Round(time.Millisecond))
		return nil
	},
}
