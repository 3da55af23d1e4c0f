package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestServer serves a manager whose worker is never started, so jobs stay pending.
func newTestServer(t *testing.T) (*httptest.Server, *Manager) {
	t.Helper()

	m := newTestManager(t, func(context.Context, *Job, func(int), func() bool) (*Result, error) {
		return &Result{}, nil
	})
	srv := httptest.NewServer(NewHandler(m, "mynation", nil).Routes())
	t.Cleanup(srv.Close)
	return srv, m
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHandler_Health(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	var body map[string]string
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/health", "", &body))
	require.Equal(t, "ok", body["status"])
}

func TestHandler_Create(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body       string
		wantStatus int
		wantError  string
	}{
		"valid": {
			body:       `{"file_path":"/uploads/555_donations.csv","import_type":"CanadaHelps","user_id":"u1","dry_run":true}`,
			wantStatus: http.StatusAccepted,
		},
		"malformed body": {
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		"missing import type": {
			body:       `{"file_path":"/uploads/a.csv"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "import type is required",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv, _ := newTestServer(t)

			var body map[string]any
			require.Equal(t, tc.wantStatus, doJSON(t, http.MethodPost, srv.URL+"/jobs", tc.body, &body))
			if tc.wantError != "" {
				require.Equal(t, tc.wantError, body["error"])
				return
			}
			require.Equal(t, "555", body["id"])
			require.Equal(t, "pending", body["status"])
			require.Equal(t, "mynation", body["nation_slug"])
			require.Equal(t, true, body["dry_run"])
			require.EqualValues(t, 1, body["queue_position"])
		})
	}
}

func TestHandler_StatusAndList(t *testing.T) {
	t.Parallel()

	srv, m := newTestServer(t)

	first, err := m.Create(NewJob{FilePath: "1_a.csv", ImportType: "PayPal", UserID: "u1"})
	require.NoError(t, err)
	_, err = m.Create(NewJob{FilePath: "2_b.csv", ImportType: "PayPal", UserID: "u2"})
	require.NoError(t, err)

	var job Job
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/jobs/"+first.ID, "", &job))
	require.Equal(t, StatusPending, job.Status)
	require.Equal(t, 1, job.QueuePosition)

	var missing errorResponse
	require.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, srv.URL+"/jobs/nope", "", &missing))
	require.Equal(t, ErrJobNotFound.Error(), missing.Error)

	var list struct {
		Jobs []*Job `json:"jobs"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/jobs?user_id=u1", "", &list))
	require.Len(t, list.Jobs, 1)
	require.Equal(t, first.ID, list.Jobs[0].ID)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/jobs?user_id=nobody", "", &list))
	require.Empty(t, list.Jobs)
}

func TestHandler_Abort(t *testing.T) {
	t.Parallel()

	srv, m := newTestServer(t)

	job, err := m.Create(NewJob{FilePath: "9_a.csv", ImportType: "Generic"})
	require.NoError(t, err)

	var resp abortResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/jobs/"+job.ID+"/abort", "", &resp))
	require.True(t, resp.Aborted)
	require.Equal(t, StatusFailed, resp.Job.Status)
	require.Equal(t, "Job aborted by user", resp.Job.Error)

	resp = abortResponse{}
	require.Equal(t, http.StatusConflict, doJSON(t, http.MethodPost, srv.URL+"/jobs/"+job.ID+"/abort", "", &resp))
	require.False(t, resp.Aborted)

	var missing errorResponse
	require.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, srv.URL+"/jobs/nope/abort", "", &missing))
}
