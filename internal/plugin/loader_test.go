package plugin

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// mockPeople implements PeopleDirectory for testing.
type mockPeople struct {
	byEmailFunc      func(ctx context.Context, email string) (string, error)
	byExternalIDFunc func(ctx context.Context, externalID string) (string, string, error)
}

// PersonIDByEmail returns the configured email match.
func (m *mockPeople) PersonIDByEmail(ctx context.Context, email string) (string, error) {
	if m.byEmailFunc != nil {
		return m.byEmailFunc(ctx, email)
	}
	return "", errors.New("not found")
}

// PersonIDByExternalID returns the configured external id match.
func (m *mockPeople) PersonIDByExternalID(ctx context.Context, externalID string) (string, string, error) {
	if m.byExternalIDFunc != nil {
		return m.byExternalIDFunc(ctx, externalID)
	}
	return "", "", errors.New("No records found")
}

func writePlugin(t *testing.T, dir string, name string, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
}

func newTestLoader(t *testing.T) (*Loader, *Registry, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	registry := NewRegistry()
	loader, err := NewLoader(LoaderConfig{
		Logger:   slog.New(slog.NewTextHandler(&buf, nil)),
		Registry: registry,
	})
	require.NoError(t, err)
	t.Cleanup(loader.Close)

	return loader, registry, &buf
}

func TestNewLoader(t *testing.T) {
	t.Parallel()

	_, err := NewLoader(LoaderConfig{})

	require.Error(t, err)
	require.Contains(t, err.Error(), "registry is required")
}

func TestLoaderLoadMissingDirectory(t *testing.T) {
	t.Parallel()

	loader, _, _ := newTestLoader(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir.lua")
	require.NoError(t, os.WriteFile(file, []byte(""), 0o600))

	require.Equal(t, 0, loader.Load("canadahelps", filepath.Join(dir, "missing")))
	require.Equal(t, 0, loader.Load("canadahelps", file))
}

func TestLoaderLoad(t *testing.T) {
	t.Parallel()

	loader, registry, logs := newTestLoader(t)
	dir := t.TempDir()

	writePlugin(t, dir, "02_second.lua", `
register_plugin("canadahelps", "row_transformer", function(row, signals)
  row["order"] = (row["order"] or "") .. "b"
  return row
end, "second")
`)
	writePlugin(t, dir, "01_first.lua", `
register_plugin("canadahelps", "row_transformer", function(row, signals)
  row["order"] = (row["order"] or "") .. "a"
  return row
end, "first")
`)
	writePlugin(t, dir, "_disabled.lua", `
register_plugin("canadahelps", "row_transformer", function(row) return row end, "disabled")
`)
	writePlugin(t, dir, "03_broken.lua", `this is not lua`)
	writePlugin(t, dir, "04_empty.lua", `local x = 1`)
	writePlugin(t, dir, "README.md", `ignored`)

	loaded := loader.Load("canadahelps", dir)

	require.Equal(t, 3, loaded)
	require.Contains(t, logs.String(), "Error loading plugin")
	require.Contains(t, logs.String(), "03_broken.lua")

	plugins := registry.Get("canadahelps", TypeRowTransformer)
	require.Len(t, plugins, 2)
	require.Equal(t, "first", plugins[0].Name)
	require.Equal(t, "second", plugins[1].Name)

	row := map[string]string{}
	for _, p := range plugins {
		var err error
		row, err = p.RowTransformer(row, &Signals{})
		require.NoError(t, err)
	}
	require.Equal(t, "ab", row["order"])
}

func TestLoaderFailedFileRegistersNothing(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"runtime error after registering": `
register_plugin("paypal", "row_transformer", function(row) return row end)
error("boom")
`,
		"blank adapter after a valid registration": `
register_plugin("paypal", "row_transformer", function(row) return row end, "good")
register_plugin("  ", "row_transformer", function(row) return row end, "bad")
`,
		"unknown type after a valid registration": `
register_plugin("paypal", "field_processor", function(f, v) return v end)
register_plugin("paypal", "post_processor", function(row) return row end)
`,
	}

	for name, source := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			loader, registry, _ := newTestLoader(t)
			dir := t.TempDir()
			writePlugin(t, dir, "partial.lua", source)

			require.Equal(t, 0, loader.Load("paypal", dir))
			require.Empty(t, registry.Get("paypal", ""))
		})
	}
}

func TestLuaRowTransformerSignals(t *testing.T) {
	t.Parallel()

	loader, registry, _ := newTestLoader(t)
	dir := t.TempDir()
	writePlugin(t, dir, "signals.lua", `
register_plugin("paypal", "row_transformer", function(row, signals)
  if row["Type"] ~= "Donation Payment" then
    signals.skip("not a donation")
  end
  signals.set_check_number("PP_" .. row["Transaction ID"])
  signals.set_payment_type("PayPal")
  signals.set_tracking_code("paypal_donation")
  signals.set_membership("Supporter", 12)
  row["Note"] = "seen"
end)
`)
	require.Equal(t, 1, loader.Load("paypal", dir))

	plugins := registry.Get("paypal", TypeRowTransformer)
	require.Len(t, plugins, 1)

	signals := &Signals{}
	row, err := plugins[0].RowTransformer(map[string]string{
		"Type":           "Subscription Payment",
		"Transaction ID": "TX1",
	}, signals)

	require.NoError(t, err)
	require.Equal(t, "seen", row["Note"])
	skipped, reason := signals.Skipped()
	require.True(t, skipped)
	require.Equal(t, "not a donation", reason)
	checkNumber, _ := signals.CheckNumber()
	require.Equal(t, "PP_TX1", checkNumber)
	paymentType, _ := signals.PaymentType()
	require.Equal(t, "PayPal", paymentType)
	trackingCode, _ := signals.TrackingCode()
	require.Equal(t, "paypal_donation", trackingCode)
	require.Equal(t, &Membership{Months: 12, Name: "Supporter"}, signals.Membership())
}

func TestLuaRowTransformerRuntimeError(t *testing.T) {
	t.Parallel()

	loader, registry, _ := newTestLoader(t)
	dir := t.TempDir()
	writePlugin(t, dir, "fails.lua", `
register_plugin("generic", "row_transformer", function(row, signals)
  error("cannot transform")
end)
`)
	require.Equal(t, 1, loader.Load("generic", dir))

	_, err := registry.Get("generic", TypeRowTransformer)[0].RowTransformer(map[string]string{}, &Signals{})

	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot transform")
}

func TestLuaFieldProcessor(t *testing.T) {
	t.Parallel()

	loader, registry, _ := newTestLoader(t)
	dir := t.TempDir()
	writePlugin(t, dir, "upper.lua", `
register_plugin("generic", "field_processor", function(field, value, row)
  if field == "city" then
    return string.upper(value)
  end
  return nil
end)
`)
	require.Equal(t, 1, loader.Load("generic", dir))

	proc := registry.Get("generic", TypeFieldProcessor)[0].FieldProcessor

	got, err := proc("city", "toronto", map[string]string{})
	require.NoError(t, err)
	require.Equal(t, "TORONTO", got)

	got, err = proc("state", "ON", map[string]string{})
	require.NoError(t, err)
	require.Equal(t, "ON", got)
}

func TestLuaPersonLookup(t *testing.T) {
	t.Parallel()

	loader, registry, _ := newTestLoader(t)
	dir := t.TempDir()
	writePlugin(t, dir, "lookup.lua", `
register_plugin("paypal", "person_lookup", function(query, people, fallback)
  if query.email == "" then
    local id, email, msg = people.by_external_id(query.fields["Name"])
    if id ~= nil then
      query.email = email
      return id, true, msg
    end
    return nil, false, msg
  end
  return fallback()
end)
`)
	require.Equal(t, 1, loader.Load("paypal", dir))
	lookup := registry.Get("paypal", TypePersonLookup)[0].PersonLookup

	people := &mockPeople{
		byExternalIDFunc: func(_ context.Context, externalID string) (string, string, error) {
			require.Equal(t, "ACME Corp", externalID)
			return "77", "acme@example.com", nil
		},
	}
	fallback := func(_ context.Context, q *PersonQuery) (string, bool, string) {
		return "42", true, "Success via " + q.Email
	}

	t.Run("external id path updates email", func(t *testing.T) {
		query := &PersonQuery{Fields: map[string]string{"Name": "ACME Corp"}}

		id, found, _ := lookup(context.Background(), query, people, fallback)

		require.Equal(t, "77", id)
		require.True(t, found)
		require.Equal(t, "acme@example.com", query.Email)
	})

	t.Run("fallback path", func(t *testing.T) {
		query := &PersonQuery{Email: "jane@example.com", Fields: map[string]string{}}

		id, found, msg := lookup(context.Background(), query, people, fallback)

		require.Equal(t, "42", id)
		require.True(t, found)
		require.Equal(t, "Success via jane@example.com", msg)
	})
}
