package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/peteski22/cdflow/internal/donation"
	"github.com/peteski22/cdflow/internal/importer"
	"github.com/peteski22/cdflow/internal/jobs"
	"github.com/peteski22/cdflow/internal/logging"
)

// importService runs one file import.
type importService interface {
	Run(ctx context.Context, req importer.Request) (*importer.Result, error)
}

// artifactArchive keeps a copy of the files a job produced.
type artifactArchive interface {
	Upload(ctx context.Context, jobID string, files ...string) ([]string, error)
}

// jobRunner runs import jobs for the job manager, then extracts and archives their output.
type jobRunner struct {
	// appLog is the application log file import logs are extracted from. Optional.
	appLog string

	// archive uploads job files. Optional.
	archive artifactArchive

	// extractor writes each job's import log. Optional.
	extractor *logging.Extractor

	logger      *slog.Logger
	machineInfo string

	// newService creates the import service for a job.
	newService func(dryRun bool) (importService, error)

	now func() time.Time
}

// run implements jobs.RunFunc.
func (r *jobRunner) run(
	ctx context.Context,
	job *jobs.Job,
	progress func(percent int),
	aborted func() bool,
) (*jobs.Result, error) {
	adapter, err := donation.AdapterFor(job.ImportType)
	if err != nil {
		return nil, err
	}

	svc, err := r.newService(job.DryRun)
	if err != nil {
		return nil, fmt.Errorf("creating import service: %w", err)
	}

	logger := r.logger.With("job_id", job.ID)
	start := r.now()

	res, runErr := svc.Run(ctx, importer.Request{
		Adapter:  adapter,
		Aborted:  aborted,
		FilePath: job.FilePath,
		JobContext: &donation.JobContext{
			JobID:       job.ID,
			MachineInfo: r.machineInfo,
		},
		Progress: func(done int, total int) {
			if total > 0 {
				progress(done * 100 / total)
			}
		},
	})

	result := &jobs.Result{}
	if res != nil {
		result.Failed = res.Failed
		result.FailFile = res.FailFile
		result.Skipped = res.Skipped
		result.Succeeded = res.Succeeded
		result.SuccessFile = res.SuccessFile
		result.Total = res.Total
	}

	result.LogFile = r.extractLog(logger, job, start)
	r.archiveFiles(ctx, logger, job.ID, result)

	return result, runErr
}

func (r *jobRunner) extractLog(logger *slog.Logger, job *jobs.Job, start time.Time) string {
	if r.extractor == nil || r.appLog == "" {
		return ""
	}

	path, err := r.extractor.Extract(logging.Extraction{
		AppLog: r.appLog,
		End:    r.now(),
		JobID:  job.ID,
		Source: job.FileName,
		Start:  start,
	})
	if err != nil {
		logger.Warn("failed to extract import log", "error", err)
		return ""
	}
	return path
}

// archiveFiles is best effort: the files stay on disk when the upload fails.
func (r *jobRunner) archiveFiles(ctx context.Context, logger *slog.Logger, jobID string, result *jobs.Result) {
	if r.archive == nil {
		return
	}

	keys, err := r.archive.Upload(ctx, jobID, result.SuccessFile, result.FailFile, result.LogFile)
	if err != nil {
		logger.Warn("failed to archive job files", "error", err, "uploaded", len(keys))
		return
	}
	logger.Info("archived job files", "objects", len(keys))
}

// machineInfo describes the host for the job context of exported records.
func machineInfo() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s (%s/%s)", host, runtime.GOOS, runtime.GOARCH)
}
