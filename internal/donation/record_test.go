package donation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecord_JSON(t *testing.T) {
	t.Parallel()

	check := "CH-789"
	tests := map[string]struct {
		record  *Record
		wantJob map[string]any
	}{
		"with job context": {
			record: &Record{
				AmountInCents: 2500,
				CheckNumber:   &check,
				City:          "Toronto",
				Email:         "john@example.com",
				FirstName:     "John",
				JobContext:    &JobContext{JobID: "job-9", MachineInfo: "host (linux/amd64)"},
				SucceededAt:   "2024-01-15T14:30:00Z",
			},
			wantJob: map[string]any{"job_id": "job-9", "machine_info": "host (linux/amd64)"},
		},
		"without job context": {
			record: &Record{AmountInCents: 100, Email: "a@example.com", SucceededAt: "2024-01-15T00:00:00Z"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			data, err := tc.record.JSON()
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, json.Unmarshal(data, &got))

			donation := got["donation"].(map[string]any)
			require.InDelta(t, float64(tc.record.AmountInCents), donation["amount_in_cents"], 0)
			require.Equal(t, tc.record.SucceededAt, donation["succeeded_at"])
			require.NotContains(t, donation, "donor_id")

			person := got["person"].(map[string]any)
			require.Equal(t, tc.record.Email, person["email"])
			require.Equal(t, false, person["email_opt_in"])

			if tc.wantJob == nil {
				require.NotContains(t, got, "job")
				return
			}
			require.Equal(t, tc.wantJob, got["job"])
			require.Equal(t, "CH-789", donation["check_number"])
			require.Equal(t, "Toronto", person["primary_address"].(map[string]any)["city"])
		})
	}
}
