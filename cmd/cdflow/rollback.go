package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peteski22/cdflow/internal/csvio"
	"github.com/peteski22/cdflow/internal/rollback"
)

// errRollbackCancelled is returned when the user declines the confirmation prompt.
var errRollbackCancelled = errors.New("rollback cancelled")

type rollbackOptions struct {
	dryRun bool
	file   string
	yes    bool
}

func newRollbackCmd(root *rootOptions) *cobra.Command {
	opts := &rollbackOptions{}

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Delete the donations and people an import created",
		Long: "Reads an import's success file and deletes its rows from NationBuilder in reverse order. " +
			"People are only deleted when the import created them. Without --file the newest success " +
			"file in the output directory is used.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			return runRollback(cmd.Context(), a, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log what would be deleted without deleting it")
	cmd.Flags().StringVar(&opts.file, "file", "", "success CSV to roll back (default: newest in the output directory)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runRollback(ctx context.Context, a *app, opts *rollbackOptions) error {
	file, err := selectSuccessFile(opts.file, a.settings.Paths.Output)
	if err != nil {
		return err
	}

	table, err := csvio.ReadFile(file)
	if err != nil {
		return err
	}
	importType := rollback.DetectImportType(table.Headers, a.settings.Import.Type)

	if !opts.yes {
		ok, err := confirmRollback(a.in, a.out, importType, file, a.settings.NationBuilder.Slug)
		if err != nil {
			return err
		}
		if !ok {
			return errRollbackCancelled
		}
	}

	client, err := a.nationBuilder(ctx)
	if err != nil {
		return err
	}

	var deleterOpts []rollback.DeleterOption
	ledger, err := a.ledger(ctx)
	if err != nil {
		return err
	}
	if ledger != nil {
		deleterOpts = append(deleterOpts, rollback.WithLedger(ledger))
	}

	svc, err := rollback.New(rollback.Config{
		ImportType:        importType,
		Logger:            a.logger.Logger,
		OutputDir:         a.settings.Paths.Output,
		Processor:         rollback.NewDeleter(client, opts.dryRun, a.logger.Logger, deleterOpts...),
		RequestsPerSecond: a.settings.Import.RequestsPerSecond,
	})
	if err != nil {
		return err
	}

	result, err := svc.Run(ctx, file)
	if err != nil {
		return err
	}

	printRollbackSummary(a.out, result, opts.dryRun)
	return nil
}

// selectSuccessFile returns file, or the newest success file in dir when file is empty.
func selectSuccessFile(file string, dir string) (string, error) {
	if file != "" {
		return file, nil
	}
	latest, err := rollback.LatestSuccessFile(dir)
	if err != nil {
		return "", fmt.Errorf("no file selected: %w", err)
	}
	return latest, nil
}

// confirmRollback asks the user to confirm the deletion. Only y or yes confirms.
func confirmRollback(in io.Reader, out io.Writer, importType, file, slug string) (bool, error) {
	_, _ = fmt.Fprintf(out, "DANGER: Donations from %s import will be DELETED\n", importType)
	_, _ = fmt.Fprintf(out, "Processing file: %s\n", filepath.Base(file))
	_, _ = fmt.Fprintf(out, "NationBuilder environment: %s\n", slug)
	_, _ = fmt.Fprint(out, "Continue? [y/N]: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return false, fmt.Errorf("reading confirmation: %w", err)
		}
		return false, nil
	}

	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func printRollbackSummary(out io.Writer, result *rollback.Result, dryRun bool) {
	_, _ = fmt.Fprintf(out, "Rollback of %s import finished\n", result.ImportType)
	if dryRun {
		_, _ = fmt.Fprintln(out, "  Dry run: nothing was deleted")
	}
	_, _ = fmt.Fprintf(out, "  Rows: %d total, %d succeeded, %d failed\n", result.Total, result.Succeeded, result.Failed)
	_, _ = fmt.Fprintf(out, "  Output file: %s\n", result.OutputFile)
}
