package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/peteski22/cdflow/internal/config"
)

const configTemplate = `# cdflow configuration
# Environment variables CDFLOW_NB_SLUG, CDFLOW_NB_CLIENT_ID and CDFLOW_NB_CLIENT_SECRET
# override the nationbuilder values below. A .env file in the working directory is read too.

nationbuilder:
  # The nation's subdomain: <slug>.nationbuilder.com.
  slug: ""
  # From NationBuilder -> Settings -> Developer -> Your apps.
  client_id: ""
  client_secret: ""
  # Register http://localhost:<port>/callback as the app's redirect URI.
  callback_port: 8080
  # Optional: read client_id and client_secret from SSM Parameter Store instead.
  # ssm_parameter_prefix: "/cdflow/nationbuilder"

import:
  # CanadaHelps, PayPal or Generic.
  type: "CanadaHelps"
  # Default input file, used when import runs without --type and --file.
  file: ""
  # IANA time zone for export times without one. Empty uses the local zone.
  timezone: ""
  batch_size: 10
  requests_per_second: 2
  # Search NationBuilder for an existing donation with the same check number first.
  check_duplicates: false

paths:
  # Defaults live under ~/.cdflow.
  # jobs: "~/.cdflow/jobs"
  # logs: "~/.cdflow/logs"
  # output: "~/.cdflow/output"
  # plugins: "~/.cdflow/plugins"
  # token: "~/.cdflow/token"

logging:
  console_level: "info"
  file_level: "debug"
  # Import log extraction window.
  buffer_after_seconds: 10
  max_window_minutes: 30

# Optional AWS storage.
storage:
  # Keep the refresh token in Secrets Manager instead of the local token file.
  token_secret_id: ""
  # DynamoDB table that records imported check numbers.
  ledger_table: ""
  # Upload success, fail and log files of each job.
  s3_bucket: ""
  archive_prefix: "imports"

# Lines copied from the application log into each import's log.
# import_log_patterns:
#   component: ["component=importer", "component=mapper", "component=plugin"]
#   content: ["[DRY-RUN]", "FALLBACK"]
#   job: ["job_id={job_id}"]
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a sample configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout())
		},
	}
}

// runInit creates a sample configuration file.
func runInit(out io.Writer) error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	configPath, err := config.ConfigFilePath()
	if err != nil {
		return fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	_, _ = fmt.Fprintln(out, "Created config file:", configPath)
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintln(out, "Next steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the config file with your nation and app credentials")
	_, _ = fmt.Fprintln(out, "  2. Run 'cdflow auth' to authorize with NationBuilder")
	_, _ = fmt.Fprintln(out, "  3. Run 'cdflow import --dry-run --type CanadaHelps --file export.csv' to test")

	return nil
}
