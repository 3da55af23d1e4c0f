package jobs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	t.Parallel()

	_, err := NewStore("")
	require.EqualError(t, err, "jobs directory is required")

	dir := filepath.Join(t.TempDir(), "nested", "jobs")
	_, err = NewStore(dir)
	require.NoError(t, err)
	require.DirExists(t, dir)
}

func TestStore_PutGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	created := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Put(&Job{ID: "42", CreatedAt: created, Status: StatusPending, UserID: "u1"}))
	require.FileExists(t, filepath.Join(dir, "42.json"))

	got, err := store.Get("42")
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)

	// Mutating the copy leaves the stored job alone.
	got.Status = StatusFailed
	again, err := store.Get("42")
	require.NoError(t, err)
	require.Equal(t, StatusPending, again.Status)

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	fromDisk, err := reopened.Get("42")
	require.NoError(t, err)
	require.Equal(t, "u1", fromDisk.UserID)
	require.True(t, created.Equal(fromDisk.CreatedAt))

	_, err = store.Get("missing")
	require.ErrorIs(t, err, ErrJobNotFound)

	_, err = store.Get("../42")
	require.ErrorIs(t, err, ErrJobNotFound)

	require.Error(t, store.Put(&Job{}))
}

func TestStore_Update(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Put(&Job{ID: "1", Status: StatusPending}))

	updated, err := store.Update("1", func(job *Job) error {
		job.Status = StatusRunning
		job.Progress = 40
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, StatusRunning, updated.Status)

	_, err = store.Update("1", func(*Job) error { return errors.New("refused") })
	require.EqualError(t, err, "refused")

	got, err := store.Get("1")
	require.NoError(t, err)
	require.Equal(t, 40, got.Progress)

	_, err = store.Update("missing", func(*Job) error { return nil })
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestStore_UpdateLeavesJobUnchangedOnFailure(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		breakDisk bool
		fnErr     error
		wantErr   string
	}{
		"fn refuses after mutating": {
			fnErr:   errors.New("refused"),
			wantErr: "refused",
		},
		"job file cannot be written": {
			breakDisk: true,
			wantErr:   "creating job file",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(t.TempDir(), "jobs")
			store, err := NewStore(dir)
			require.NoError(t, err)
			require.NoError(t, store.Put(&Job{ID: "7", Status: StatusRunning, Progress: 10}))
			if tc.breakDisk {
				require.NoError(t, os.RemoveAll(dir))
			}

			_, err = store.Update("7", func(job *Job) error {
				job.Status = StatusFailed
				job.Error = "Job aborted by user"
				return tc.fnErr
			})
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)

			got, err := store.Get("7")
			require.NoError(t, err)
			require.Equal(t, StatusRunning, got.Status)
			require.Empty(t, got.Error)
			require.Equal(t, 10, got.Progress)
		})
	}
}

func TestStore_ListByUser(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	earlier, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, earlier.Put(&Job{ID: "old", CreatedAt: base, UserID: "u1"}))

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(&Job{ID: "new", CreatedAt: base.Add(time.Hour), UserID: "u1"}))
	require.NoError(t, store.Put(&Job{ID: "other", CreatedAt: base.Add(2 * time.Hour), UserID: "u2"}))

	// Stray files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600))

	tests := map[string]struct {
		userID string
		want   []string
	}{
		"single user": {userID: "u1", want: []string{"new", "old"}},
		"other user":  {userID: "u2", want: []string{"other"}},
		"all users":   {userID: "", want: []string{"other", "new", "old"}},
		"no jobs":     {userID: "u3", want: nil},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			jobs, err := store.ListByUser(tc.userID)
			require.NoError(t, err)

			var ids []string
			for _, job := range jobs {
				ids = append(ids, job.ID)
			}
			require.Equal(t, tc.want, ids)
		})
	}
}
