package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/peteski22/cdflow/internal/nationbuilder"
)

// RunFunc performs the import for a job. It should call progress as rows complete and stop
// early once aborted reports true.
type RunFunc func(ctx context.Context, job *Job, progress func(percent int), aborted func() bool) (*Result, error)

// Config holds the configuration for creating a Manager.
type Config struct {
	// Logger is the structured logger for the manager.
	Logger *slog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Run performs each job's import.
	Run RunFunc

	// Store persists jobs.
	Store *Store
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.Run == nil {
		errs = append(errs, errors.New("run function is required"))
	}
	if c.Store == nil {
		errs = append(errs, errors.New("store is required"))
	}
	return errors.Join(errs...)
}

// NewJob describes a job to create.
type NewJob struct {
	// DryRun indicates the import must not write to NationBuilder.
	DryRun bool

	// FilePath is the input file.
	FilePath string

	// ImportType is the adapter name.
	ImportType string

	// NationSlug is the target nation.
	NationSlug string

	// Token is the OAuth token the job runs with. Optional.
	Token *nationbuilder.Token

	// UserID identifies who created the job.
	UserID string
}

// Manager queues jobs and runs them one at a time on a background worker.
type Manager struct {
	logger  *slog.Logger
	mu      sync.Mutex
	now     func() time.Time
	queue   []string
	run     RunFunc
	started bool
	store   *Store
	wake    chan struct{}
	wg      sync.WaitGroup
}

// NewManager creates a Manager. Call Start to begin processing.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		logger: logger.With("component", "jobs"),
		now:    now,
		run:    cfg.Run,
		store:  cfg.Store,
		wake:   make(chan struct{}, 1),
	}, nil
}

// Start launches the worker. It stops when ctx is cancelled; Wait blocks until it has.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	m.wg.Add(1)
	go m.worker(ctx)
}

// Wait blocks until the worker has stopped.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Create stores a pending job and queues it.
func (m *Manager) Create(req NewJob) (*Job, error) {
	if req.FilePath == "" {
		return nil, errors.New("file path is required")
	}
	if req.ImportType == "" {
		return nil, errors.New("import type is required")
	}

	now := m.now()
	job := &Job{
		CreatedAt:  now,
		DryRun:     req.DryRun,
		FileName:   filepath.Base(req.FilePath),
		FilePath:   req.FilePath,
		ImportType: req.ImportType,
		NationSlug: req.NationSlug,
		Status:     StatusPending,
		Token:      req.Token,
		UpdatedAt:  now,
		UserID:     req.UserID,
	}

	m.mu.Lock()
	job.ID = m.newID(job.FileName)
	if err := m.store.Put(job); err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("storing job: %w", err)
	}
	m.queue = append(m.queue, job.ID)
	position := len(m.queue)
	m.mu.Unlock()

	m.signal()

	m.logger.Info("job created", "job_id", job.ID, "file", job.FileName, "import_type", job.ImportType)

	snap := job.snapshot()
	snap.QueuePosition = position
	return snap, nil
}

// Status returns the job with its queue position when pending. Jobs created by an earlier
// process are read from their file.
func (m *Manager) Status(id string) (*Job, error) {
	job, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Status == StatusPending {
		job.QueuePosition = m.position(id)
	}
	return job, nil
}

// List returns the user's jobs, newest first. An empty userID lists every job.
func (m *Manager) List(userID string) ([]*Job, error) {
	jobs, err := m.store.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.Status == StatusPending {
			job.QueuePosition = m.position(job.ID)
		}
	}
	return jobs, nil
}

// Abort fails a pending or running job. It reports false, leaving the job unchanged, when
// the job already finished. A running job stops before its next row.
func (m *Manager) Abort(id string) (bool, error) {
	aborted := false
	_, err := m.store.Update(id, func(job *Job) error {
		if job.Status.Terminal() {
			return nil
		}
		m.finish(job, StatusFailed)
		job.Error = abortedMessage
		aborted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if aborted {
		m.dequeue(id)
		m.logger.Info("job aborted", "job_id", id)
	}
	return aborted, nil
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()

	for {
		id, ok := m.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-m.wake:
				continue
			}
		}
		if ctx.Err() != nil {
			return
		}
		m.process(ctx, id)
	}
}

// process runs one job. Errors and panics fail the job without stopping the worker.
func (m *Manager) process(ctx context.Context, id string) {
	logger := m.logger.With("job_id", id)

	var token *nationbuilder.Token
	job, err := m.store.Update(id, func(job *Job) error {
		if job.Status != StatusPending {
			return fmt.Errorf("job is %s", job.Status)
		}
		token = job.Token
		started := m.now()
		job.StartedAt = &started
		job.UpdatedAt = started
		job.Status = StatusRunning
		return nil
	})
	if err != nil {
		logger.Info("not starting job", "reason", err)
		return
	}
	job.Token = token

	logger.Info("job started", "file", job.FileName)

	result, err := m.runSafely(ctx, job)

	_, updateErr := m.store.Update(id, func(job *Job) error {
		if result != nil {
			job.Result = result
		}
		if job.Status.Terminal() {
			// Aborted while running.
			return nil
		}
		if err != nil {
			m.finish(job, StatusFailed)
			job.Error = err.Error()
			return nil
		}
		m.finish(job, StatusCompleted)
		job.Progress = 100
		return nil
	})
	if updateErr != nil {
		logger.Error("failed to record job outcome", "error", updateErr)
	}

	if err != nil {
		logger.Error("job failed", "error", err)
		return
	}
	logger.Info("job finished")
}

func (m *Manager) runSafely(ctx context.Context, job *Job) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	progress := func(percent int) {
		percent = min(max(percent, 0), 100)
		_, _ = m.store.Update(job.ID, func(j *Job) error {
			if j.Status == StatusRunning {
				j.Progress = percent
				j.UpdatedAt = m.now()
			}
			return nil
		})
	}
	aborted := func() bool {
		j, err := m.store.Get(job.ID)
		return err == nil && j.Status != StatusRunning
	}

	return m.run(ctx, job, progress, aborted)
}

func (m *Manager) finish(job *Job, status Status) {
	now := m.now()
	job.Status = status
	job.CompletedAt = &now
	job.UpdatedAt = now
}

func (m *Manager) next() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return "", false
	}
	id := m.queue[0]
	m.queue = m.queue[1:]
	return id, true
}

func (m *Manager) dequeue(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, queued := range m.queue {
		if queued == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

func (m *Manager) position(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, queued := range m.queue {
		if queued == id {
			return i + 1
		}
	}
	return 0
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// newID derives a job id from an upload prefix such as "12345_" or "12345_cli_", falling
// back to a short random id. Callers hold mu.
func (m *Manager) newID(fileName string) string {
	if id := idFromFileName(fileName); id != "" && !m.store.Exists(id) {
		return id
	}
	for {
		id := uuid.NewString()[:8]
		if !m.store.Exists(id) {
			return id
		}
	}
}

func idFromFileName(fileName string) string {
	parts := strings.Split(fileName, "_")
	if len(parts) < 2 || !isDigits(parts[0]) {
		return ""
	}
	if len(parts) > 2 && parts[1] == "cli" {
		return parts[0] + "_cli"
	}
	return parts[0]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
