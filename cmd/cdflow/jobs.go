package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/peteski22/cdflow/internal/jobs"
)

// errNotRunnable is returned if a manager built for reading jobs is ever asked to run one.
var errNotRunnable = errors.New("jobs are only run by import and serve")

func newJobsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and abort import jobs",
	}

	var userID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJobManager(root, cmd, func(out io.Writer, m *jobs.Manager) error {
				found, err := m.List(userID)
				if err != nil {
					return err
				}
				printJobTable(out, found)
				return nil
			})
		},
	}
	list.Flags().StringVar(&userID, "user", "", "only list jobs created by this user")

	status := &cobra.Command{
		Use:   "status <job id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobManager(root, cmd, func(out io.Writer, m *jobs.Manager) error {
				job, err := m.Status(args[0])
				if err != nil {
					return err
				}
				printJobSummary(out, job)
				return nil
			})
		},
	}

	abort := &cobra.Command{
		Use:   "abort <job id>",
		Short: "Abort a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobManager(root, cmd, func(out io.Writer, m *jobs.Manager) error {
				aborted, err := m.Abort(args[0])
				if err != nil {
					return err
				}
				if !aborted {
					return fmt.Errorf("job %s already finished", args[0])
				}
				_, _ = fmt.Fprintf(out, "Job %s aborted\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, status, abort)
	return cmd
}

// withJobManager calls fn with a manager over the job files. Its worker is never started.
func withJobManager(root *rootOptions, cmd *cobra.Command, fn func(out io.Writer, m *jobs.Manager) error) error {
	a, err := newApp(root, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()

	store, err := jobs.NewStore(a.settings.Paths.Jobs)
	if err != nil {
		return err
	}
	m, err := jobs.NewManager(jobs.Config{
		Logger: a.logger.Logger,
		Run: func(context.Context, *jobs.Job, func(int), func() bool) (*jobs.Result, error) {
			return nil, errNotRunnable
		},
		Store: store,
	})
	if err != nil {
		return err
	}

	return fn(a.out, m)
}

func printJobTable(out io.Writer, list []*jobs.Job) {
	if len(list) == 0 {
		_, _ = fmt.Fprintln(out, "No jobs found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tTYPE\tFILE\tCREATED")
	for _, job := range list {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d%%\t%s\t%s\t%s\n",
			job.ID, job.Status, job.Progress, job.ImportType, job.FileName, job.CreatedAt.Local().Format(time.DateTime))
	}
	_ = w.Flush()
}
