package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peteski22/cdflow/internal/jobs"
)

func TestImportOptions_Resolve(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opts        importOptions
		defaultType string
		defaultFile string
		wantType    string
		wantFile    string
		wantErr     string
	}{
		"flags win": {
			opts:        importOptions{importType: "paypal", file: "paypal.csv"},
			defaultType: "CanadaHelps",
			defaultFile: "ch.csv",
			wantType:    "PayPal",
			wantFile:    "paypal.csv",
		},
		"config defaults": {
			defaultType: "Generic",
			defaultFile: "generic.csv",
			wantType:    "Generic",
			wantFile:    "generic.csv",
		},
		"no file anywhere": {
			defaultType: "CanadaHelps",
			wantErr:     "no input file",
		},
		"unknown type": {
			opts:    importOptions{importType: "Stripe", file: "stripe.csv"},
			wantErr: `unknown import type "Stripe"`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			adapter, file, err := tc.opts.resolve(tc.defaultType, tc.defaultFile)

			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantType, adapter.Name())
			require.Equal(t, tc.wantFile, file)
		})
	}
}

// scriptedJobs returns the next job state on each Status call and repeats the last one.
type scriptedJobs struct {
	mu     sync.Mutex
	err    error
	states []*jobs.Job
}

func (s *scriptedJobs) Status(string) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	job := s.states[0]
	if len(s.states) > 1 {
		s.states = s.states[1:]
	}
	return job, nil
}

func TestWaitForJob(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		reader     *scriptedJobs
		wantErr    error
		wantStatus jobs.Status
	}{
		"runs to completion": {
			reader: &scriptedJobs{states: []*jobs.Job{
				{ID: "1", Status: jobs.StatusPending},
				{ID: "1", Status: jobs.StatusRunning, Progress: 10},
				{ID: "1", Status: jobs.StatusRunning, Progress: 60},
				{ID: "1", Status: jobs.StatusCompleted, Progress: 100},
			}},
			wantStatus: jobs.StatusCompleted,
		},
		"already failed": {
			reader:     &scriptedJobs{states: []*jobs.Job{{ID: "1", Status: jobs.StatusFailed}}},
			wantStatus: jobs.StatusFailed,
		},
		"job disappears": {
			reader:  &scriptedJobs{err: jobs.ErrJobNotFound},
			wantErr: jobs.ErrJobNotFound,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			job, err := waitForJob(context.Background(), tc.reader, "1", time.Millisecond, slog.New(slog.DiscardHandler))

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantStatus, job.Status)
		})
	}
}

func TestWaitForJob_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	reader := &scriptedJobs{states: []*jobs.Job{{ID: "1", Status: jobs.StatusRunning}}}
	_, err := waitForJob(ctx, reader, "1", time.Millisecond, slog.New(slog.DiscardHandler))

	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPrintJobSummary(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		job  *jobs.Job
		want string
	}{
		"completed": {
			job: &jobs.Job{
				ID:     "20240601-1",
				Status: jobs.StatusCompleted,
				Result: &jobs.Result{
					Failed:      1,
					FailFile:    "/out/fail.csv",
					LogFile:     "/logs/import.log",
					Skipped:     2,
					Succeeded:   7,
					SuccessFile: "/out/success.csv",
					Total:       10,
				},
			},
			want: "Job 20240601-1 completed\n" +
				"  Rows: 10 total, 7 succeeded, 1 failed, 2 skipped\n" +
				"  Success file: /out/success.csv\n" +
				"  Fail file: /out/fail.csv\n" +
				"  Log file: /logs/import.log\n",
		},
		"dry run without fail file": {
			job: &jobs.Job{
				DryRun: true,
				ID:     "2",
				Status: jobs.StatusCompleted,
				Result: &jobs.Result{SuccessFile: "/out/success.csv", Succeeded: 3, Total: 3},
			},
			want: "Job 2 completed\n" +
				"  Dry run: nothing was written to NationBuilder\n" +
				"  Rows: 3 total, 3 succeeded, 0 failed, 0 skipped\n" +
				"  Success file: /out/success.csv\n",
		},
		"aborted before running": {
			job: &jobs.Job{
				Error:  "Job aborted by user",
				ID:     "3",
				Status: jobs.StatusFailed,
			},
			want: "Job 3 failed\n" +
				"  Error: Job aborted by user\n",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			printJobSummary(&out, tc.job)
			require.Equal(t, tc.want, out.String())
		})
	}
}

func TestImportCmd_TypeRequiresFile(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"import", "--type", "PayPal"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())

	require.Error(t, err)
	require.Contains(t, err.Error(), "must all be set")
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	require.NotEmpty(t, currentUser())
}
