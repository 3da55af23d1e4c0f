package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peteski22/cdflow/internal/config"
	"github.com/peteski22/cdflow/internal/jobs"
)

func TestPrintJobTable(t *testing.T) {
	t.Parallel()

	t.Run("no jobs", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		printJobTable(&out, nil)
		require.Equal(t, "No jobs found\n", out.String())
	})

	t.Run("jobs", func(t *testing.T) {
		t.Parallel()

		created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
		var out bytes.Buffer
		printJobTable(&out, []*jobs.Job{
			{CreatedAt: created, FileName: "ch.csv", ID: "20240601-1", ImportType: "CanadaHelps", Progress: 40, Status: jobs.StatusRunning},
			{CreatedAt: created, FileName: "pp.csv", ID: "2", ImportType: "PayPal", Status: jobs.StatusPending},
		})

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 3)
		require.Equal(t, []string{"ID", "STATUS", "PROGRESS", "TYPE", "FILE", "CREATED"}, strings.Fields(lines[0]))
		require.Equal(t, []string{"20240601-1", "running", "40%", "CanadaHelps", "ch.csv", "2024-06-01", "12:00:00"}, strings.Fields(lines[1]))
		require.Equal(t, []string{"2", "pending", "0%", "PayPal", "pp.csv", "2024-06-01", "12:00:00"}, strings.Fields(lines[2]))
	})
}

// writeTestConfig writes a config whose paths all live under a temp directory.
func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()

	root := t.TempDir()
	jobsDir := filepath.Join(root, "jobs")
	content := "nationbuilder:\n" +
		"  slug: mynation\n" +
		"  client_id: id\n" +
		"  client_secret: secret\n" +
		"paths:\n" +
		"  jobs: " + jobsDir + "\n" +
		"  logs: " + filepath.Join(root, "logs") + "\n" +
		"  output: " + filepath.Join(root, "output") + "\n" +
		"  token: " + filepath.Join(root, "token") + "\n" +
		"logging:\n" +
		"  console_level: error\n"

	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path, jobsDir
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestJobsCmd(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv().
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvNationBuilderSlug, "")
	t.Setenv(config.EnvNationBuilderClientID, "")
	t.Setenv(config.EnvNationBuilderClientSecret, "")

	configPath, jobsDir := writeTestConfig(t)

	out, err := executeRoot(t, "jobs", "list", "--config", configPath)
	require.NoError(t, err)
	require.Equal(t, "No jobs found\n", out)

	store, err := jobs.NewStore(jobsDir)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, store.Put(&jobs.Job{
		CreatedAt:  now,
		FileName:   "export.csv",
		FilePath:   "/in/export.csv",
		ID:         "42",
		ImportType: "CanadaHelps",
		NationSlug: "mynation",
		Status:     jobs.StatusPending,
		UpdatedAt:  now,
		UserID:     "alex",
	}))

	out, err = executeRoot(t, "jobs", "list", "--config", configPath, "--user", "alex")
	require.NoError(t, err)
	require.Contains(t, out, "export.csv")

	out, err = executeRoot(t, "jobs", "list", "--config", configPath, "--user", "sam")
	require.NoError(t, err)
	require.Equal(t, "No jobs found\n", out)

	out, err = executeRoot(t, "jobs", "status", "42", "--config", configPath)
	require.NoError(t, err)
	require.Equal(t, "Job 42 pending\n", out)

	out, err = executeRoot(t, "jobs", "abort", "42", "--config", configPath)
	require.NoError(t, err)
	require.Equal(t, "Job 42 aborted\n", out)

	_, err = executeRoot(t, "jobs", "abort", "42", "--config", configPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "job 42 already finished")

	out, err = executeRoot(t, "jobs", "status", "42", "--config", configPath)
	require.NoError(t, err)
	require.Equal(t, "Job 42 failed\n  Error: Job aborted by user\n", out)

	_, err = executeRoot(t, "jobs", "status", "missing", "--config", configPath)
	require.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestJobsCmd_InvalidLogLevel(t *testing.T) {
	// Cannot use t.Parallel() with t.Setenv().
	t.Setenv("HOME", t.TempDir())
	configPath, _ := writeTestConfig(t)

	_, err := executeRoot(t, "jobs", "list", "--config", configPath, "--log-level", "loud")

	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid --log-level")
}
