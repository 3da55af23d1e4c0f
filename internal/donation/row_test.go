package donation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRow(t *testing.T) {
	t.Parallel()

	row := NewRow([]string{"\ufeffDONOR FIRST NAME", "AMOUNT", "NOTE"}, []string{" John ", "25.00"})

	v, ok := row.Value("donor first name")
	require.True(t, ok)
	require.Equal(t, " John ", v)
	require.Equal(t, "John", row.Get("DONOR FIRST NAME"))

	v, ok = row.Value("NOTE")
	require.True(t, ok)
	require.Empty(t, v)

	_, ok = row.Value("MISSING")
	require.False(t, ok)
	require.Empty(t, row.Get("MISSING"))
	require.True(t, row.Has("amount"))
	require.False(t, row.Has("missing"))
}

func TestRowFromMap(t *testing.T) {
	t.Parallel()

	row := RowFromMap(map[string]string{
		"b":     "2",
		"a":     "1",
		"_skip": "true",
		"z":     "26",
	}, "z", "a", "absent")

	require.Equal(t, []string{"z", "a", "_skip", "b"}, row.Headers())
	require.Equal(t, "26", row.Get("Z"))
}

func TestRow_MapIsCopy(t *testing.T) {
	t.Parallel()

	row := NewRow([]string{"a"}, []string{"1"})

	m := row.Map()
	m["a"] = "changed"

	require.Equal(t, "1", row.Get("a"))
}

func TestIsControlField(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		name string
		want bool
	}{
		"control field":            {name: "_skip_row", want: true},
		"control field after bom":  {name: "\ufeff_note", want: true},
		"data field":               {name: "AMOUNT", want: false},
		"underscore inside a name": {name: "first_name", want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, IsControlField(tc.name))
		})
	}
}
