package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/peteski22/cdflow/internal/donation"
	"github.com/peteski22/cdflow/internal/importer"
	"github.com/peteski22/cdflow/internal/jobs"
	"github.com/peteski22/cdflow/internal/logging"
	"github.com/peteski22/cdflow/internal/plugin"
)

const jobPollInterval = 250 * time.Millisecond

type importOptions struct {
	dryRun     bool
	file       string
	importType string
}

func newImportCmd(root *rootOptions) *cobra.Command {
	opts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a donation export into NationBuilder",
		Long: "Imports a CanadaHelps, PayPal or Generic CSV export. Without --type and --file the " +
			"import.type and import.file config values are used. Rows that fail are written to a fail " +
			"file and do not stop the import.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			return runImport(cmd.Context(), a, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "look up people but do not write to NationBuilder")
	cmd.Flags().StringVar(&opts.file, "file", "", "CSV file to import (requires --type)")
	cmd.Flags().StringVar(&opts.importType, "type", "", "import type: CanadaHelps, PayPal or Generic (requires --file)")
	cmd.MarkFlagsRequiredTogether("type", "file")

	return cmd
}

// resolve returns the import type and file, falling back to the configured defaults.
func (o *importOptions) resolve(defaultType, defaultFile string) (donation.Adapter, string, error) {
	importType, file := o.importType, o.file
	if importType == "" && file == "" {
		importType, file = defaultType, defaultFile
	}
	if file == "" {
		return nil, "", errors.New("no input file: pass --type and --file, or set import.file in the config")
	}

	adapter, err := donation.AdapterFor(importType)
	if err != nil {
		return nil, "", err
	}
	return adapter, file, nil
}

func runImport(ctx context.Context, a *app, opts *importOptions) error {
	adapter, file, err := opts.resolve(a.settings.Import.Type, a.settings.Import.File)
	if err != nil {
		return err
	}

	stack, err := a.jobStack(ctx, adapter)
	if err != nil {
		return err
	}
	defer stack.close()

	workerCtx, stopWorker := context.WithCancel(context.Background())
	stack.manager.Start(workerCtx)
	defer func() {
		stopWorker()
		stack.manager.Wait()
	}()

	job, err := stack.manager.Create(jobs.NewJob{
		DryRun:     opts.dryRun,
		FilePath:   file,
		ImportType: adapter.Name(),
		NationSlug: a.settings.NationBuilder.Slug,
		UserID:     currentUser(),
	})
	if err != nil {
		return fmt.Errorf("creating import job: %w", err)
	}
	a.logger.Info("import queued", "job_id", job.ID, "file", file, "import_type", adapter.Name(), "dry_run", opts.dryRun)

	// Interrupting the command aborts the job before its next row.
	go func() {
		select {
		case <-ctx.Done():
			if aborted, err := stack.manager.Abort(job.ID); err == nil && aborted {
				a.logger.Warn("import interrupted", "job_id", job.ID)
			}
		case <-workerCtx.Done():
		}
	}()

	if _, err := waitForJob(workerCtx, stack.manager, job.ID, jobPollInterval, a.logger.Logger); err != nil {
		return err
	}

	// The worker records the result after an abort, so stop it before the final read.
	stopWorker()
	stack.manager.Wait()

	final, err := stack.manager.Status(job.ID)
	if err != nil {
		return err
	}
	printJobSummary(a.out, final)

	if final.Status == jobs.StatusFailed {
		return fmt.Errorf("import job %s failed: %s", final.ID, final.Error)
	}
	return nil
}

// jobStack is a job manager wired to the import pipeline.
type jobStack struct {
	loader  *plugin.Loader
	manager *jobs.Manager
}

func (s *jobStack) close() {
	s.loader.Close()
}

// jobStack builds a job manager whose jobs import with the given adapters' plugins.
func (a *app) jobStack(ctx context.Context, adapters ...donation.Adapter) (*jobStack, error) {
	client, err := a.nationBuilder(ctx)
	if err != nil {
		return nil, err
	}

	loc, err := a.settings.Import.Location()
	if err != nil {
		return nil, err
	}

	registry, loader, err := a.loadPlugins(adapters...)
	if err != nil {
		return nil, err
	}

	base := importer.Config{
		BatchSize:         a.settings.Import.BatchSize,
		CheckDuplicates:   a.settings.Import.CheckDuplicates,
		Location:          loc,
		Logger:            a.logger.Logger,
		NationBuilder:     client,
		OutputDir:         a.settings.Paths.Output,
		Registry:          registry,
		RequestsPerSecond: a.settings.Import.RequestsPerSecond,
	}

	ledger, err := a.ledger(ctx)
	if err != nil {
		loader.Close()
		return nil, err
	}
	if ledger != nil {
		base.Ledger = ledger
	}

	runner := &jobRunner{
		logger:      a.logger.Logger,
		machineInfo: machineInfo(),
		newService: func(dryRun bool) (importService, error) {
			cfg := base
			cfg.DryRun = dryRun
			svc, err := importer.New(cfg)
			if err != nil {
				return nil, err
			}
			return svc, nil
		},
		now: time.Now,
	}

	archive, err := a.archive(ctx)
	if err != nil {
		loader.Close()
		return nil, err
	}
	if archive != nil {
		runner.archive = archive
	}

	if appLog := a.logger.FilePath(); appLog != "" {
		extractor, err := logging.NewExtractor(logging.ExtractorConfig{
			BufferAfter: a.settings.Logging.BufferAfter(),
			Logger:      a.logger.Logger,
			MaxWindow:   a.settings.Logging.MaxWindow(),
			OutputDir:   a.settings.Paths.Logs,
			Patterns:    a.settings.ImportLogPatterns,
		})
		if err != nil {
			loader.Close()
			return nil, err
		}
		runner.appLog = appLog
		runner.extractor = extractor
	}

	store, err := jobs.NewStore(a.settings.Paths.Jobs)
	if err != nil {
		loader.Close()
		return nil, err
	}
	manager, err := jobs.NewManager(jobs.Config{
		Logger: a.logger.Logger,
		Run:    runner.run,
		Store:  store,
	})
	if err != nil {
		loader.Close()
		return nil, err
	}

	return &jobStack{loader: loader, manager: manager}, nil
}

// jobStatusReader reads a job's state.
type jobStatusReader interface {
	Status(id string) (*jobs.Job, error)
}

// waitForJob polls until the job reaches a terminal state or ctx ends.
func waitForJob(
	ctx context.Context,
	manager jobStatusReader,
	id string,
	interval time.Duration,
	logger *slog.Logger,
) (*jobs.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastProgress := -1
	for {
		job, err := manager.Status(id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		if job.Status == jobs.StatusRunning && job.Progress != lastProgress {
			lastProgress = job.Progress
			logger.Info("import progress", "job_id", id, "progress", job.Progress)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printJobSummary(out io.Writer, job *jobs.Job) {
	_, _ = fmt.Fprintf(out, "Job %s %s\n", job.ID, job.Status)
	if job.Error != "" {
		_, _ = fmt.Fprintf(out, "  Error: %s\n", job.Error)
	}
	if job.DryRun {
		_, _ = fmt.Fprintln(out, "  Dry run: nothing was written to NationBuilder")
	}

	r := job.Result
	if r == nil {
		return
	}
	_, _ = fmt.Fprintf(out, "  Rows: %d total, %d succeeded, %d failed, %d skipped\n", r.Total, r.Succeeded, r.Failed, r.Skipped)
	for _, f := range []struct{ label, path string }{
		{"Success file", r.SuccessFile},
		{"Fail file", r.FailFile},
		{"Log file", r.LogFile},
	} {
		if f.path != "" {
			_, _ = fmt.Fprintf(out, "  %s: %s\n", f.label, f.path)
		}
	}
}

func currentUser() string {
	u, err := user.Current()
	if err != nil {
		return "cli"
	}
	return u.Username
}
