package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peteski22/cdflow/internal/nationbuilder"
)

func newTestManager(t *testing.T, run RunFunc) *Manager {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	m, err := NewManager(Config{Run: run, Store: store})
	require.NoError(t, err)
	return m
}

func startManager(t *testing.T, m *Manager) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		m.Wait()
	})
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) *Job {
	t.Helper()

	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Status(id)
		return err == nil && job.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

func TestNewManager(t *testing.T) {
	t.Parallel()

	_, err := NewManager(Config{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "run function is required")
	require.Contains(t, err.Error(), "store is required")
}

func TestManager_Lifecycle(t *testing.T) {
	t.Parallel()

	started := make(chan string, 2)
	release := make(chan struct{})
	m := newTestManager(t, func(_ context.Context, job *Job, progress func(int), _ func() bool) (*Result, error) {
		started <- job.ID
		<-release
		progress(50)
		return &Result{Succeeded: 1, Total: 1}, nil
	})

	first, err := m.Create(NewJob{FilePath: "/in/12345_donations.csv", ImportType: "CanadaHelps", UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, "12345", first.ID)
	require.Equal(t, StatusPending, first.Status)
	require.Equal(t, 1, first.QueuePosition)

	second, err := m.Create(NewJob{FilePath: "/in/other.csv", ImportType: "PayPal", UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, second.ID, 8)
	require.Equal(t, 2, second.QueuePosition)

	startManager(t, m)
	require.Equal(t, first.ID, <-started)

	running := waitForStatus(t, m, first.ID, StatusRunning)
	require.NotNil(t, running.StartedAt)

	pending, err := m.Status(second.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, pending.Status)
	require.Equal(t, 1, pending.QueuePosition)

	aborted, err := m.Abort(second.ID)
	require.NoError(t, err)
	require.True(t, aborted)

	close(release)

	done := waitForStatus(t, m, first.ID, StatusCompleted)
	require.Equal(t, 100, done.Progress)
	require.Equal(t, &Result{Succeeded: 1, Total: 1}, done.Result)
	require.NotNil(t, done.CompletedAt)

	cancelled, err := m.Status(second.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, cancelled.Status)
	require.Equal(t, "Job aborted by user", cancelled.Error)

	aborted, err = m.Abort(first.ID)
	require.NoError(t, err)
	require.False(t, aborted)

	again, err := m.Status(first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, again.Status)
	require.Len(t, started, 0)
}

func TestManager_AbortRunning(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	m := newTestManager(t, func(ctx context.Context, _ *Job, progress func(int), aborted func() bool) (*Result, error) {
		close(started)
		rows := 0
		for !aborted() {
			rows++
			progress(10)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Millisecond):
			}
		}
		return &Result{Succeeded: rows, Total: 1000}, nil
	})

	job, err := m.Create(NewJob{FilePath: "in.csv", ImportType: "Generic"})
	require.NoError(t, err)
	startManager(t, m)
	<-started

	ok, err := m.Abort(job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got := waitForStatus(t, m, job.ID, StatusFailed)
	require.Equal(t, "Job aborted by user", got.Error)
	require.Eventually(t, func() bool {
		j, err := m.Status(job.ID)
		return err == nil && j.Result != nil && j.Result.Total == 1000
	}, 5*time.Second, 10*time.Millisecond)
}

func TestManager_WorkerSurvivesFailures(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, func(_ context.Context, job *Job, _ func(int), _ func() bool) (*Result, error) {
		switch job.ImportType {
		case "error":
			return nil, errors.New("file vanished")
		case "panic":
			panic("unexpected")
		default:
			return &Result{}, nil
		}
	})

	failing, err := m.Create(NewJob{FilePath: "a.csv", ImportType: "error"})
	require.NoError(t, err)
	panicking, err := m.Create(NewJob{FilePath: "b.csv", ImportType: "panic"})
	require.NoError(t, err)
	healthy, err := m.Create(NewJob{FilePath: "c.csv", ImportType: "Generic"})
	require.NoError(t, err)

	startManager(t, m)

	require.Equal(t, "file vanished", waitForStatus(t, m, failing.ID, StatusFailed).Error)
	require.Contains(t, waitForStatus(t, m, panicking.ID, StatusFailed).Error, "job panicked")
	waitForStatus(t, m, healthy.ID, StatusCompleted)
}

func TestManager_TokenIsPassedButNotStored(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	gotToken := make(chan string, 1)
	m, err := NewManager(Config{
		Store: store,
		Run: func(_ context.Context, job *Job, _ func(int), _ func() bool) (*Result, error) {
			gotToken <- job.Token.AccessToken
			return &Result{}, nil
		},
	})
	require.NoError(t, err)

	job, err := m.Create(NewJob{
		FilePath:   "in.csv",
		ImportType: "Generic",
		Token:      &nationbuilder.Token{AccessToken: "secret-access", RefreshToken: "secret-refresh"},
	})
	require.NoError(t, err)
	require.Nil(t, job.Token)

	startManager(t, m)
	require.Equal(t, "secret-access", <-gotToken)
	waitForStatus(t, m, job.ID, StatusCompleted)

	data, err := os.ReadFile(filepath.Join(dir, job.ID+".json"))
	require.NoError(t, err)
	require.NotContains(t, string(data), "secret")
}

func TestManager_StatusUnknownJob(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, func(context.Context, *Job, func(int), func() bool) (*Result, error) {
		return nil, nil
	})

	_, err := m.Status("missing")
	require.ErrorIs(t, err, ErrJobNotFound)

	_, err = m.Abort("missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestManager_DuplicatePrefixGetsRandomID(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, func(context.Context, *Job, func(int), func() bool) (*Result, error) {
		return nil, nil
	})

	first, err := m.Create(NewJob{FilePath: "777_a.csv", ImportType: "Generic"})
	require.NoError(t, err)
	second, err := m.Create(NewJob{FilePath: "777_b.csv", ImportType: "Generic"})
	require.NoError(t, err)

	require.Equal(t, "777", first.ID)
	require.NotEqual(t, "777", second.ID)
	require.Len(t, second.ID, 8)
}

func TestIDFromFileName(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fileName string
		want     string
	}{
		"numeric prefix":      {fileName: "12345_test.csv", want: "12345"},
		"cli prefix":          {fileName: "12345_cli_test.csv", want: "12345_cli"},
		"cli as whole suffix": {fileName: "12345_cli", want: "12345"},
		"no prefix":           {fileName: "donations.csv", want: ""},
		"non numeric prefix":  {fileName: "abc_test.csv", want: ""},
		"empty prefix":        {fileName: "_test.csv", want: ""},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, idFromFileName(tc.fileName))
		})
	}
}
