package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store keeps jobs in memory and mirrors each one to a JSON file, rewritten on every change.
// Jobs not in memory, for example after a restart, are read back from their file.
type Store struct {
	dir  string
	jobs map[string]*Job
	mu   sync.Mutex
}

// NewStore creates a store that writes job files to dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("jobs directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating jobs directory: %w", err)
	}
	return &Store{dir: dir, jobs: make(map[string]*Job)}, nil
}

// Get returns a copy of the job with the given id.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return job.snapshot(), nil
}

// Put stores the job and rewrites its file.
func (s *Store) Put(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.put(job)
}

// Update applies fn to a copy of the stored job and persists it. The copy replaces the
// stored job only once its file is written, so a failed write changes nothing.
// fn must not retain the job.
func (s *Store) Update(id string, fn func(job *Job) error) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(id)
	if err != nil {
		return nil, err
	}
	next := current.snapshot()
	next.Token = current.Token
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := s.put(next); err != nil {
		return nil, err
	}
	return next.snapshot(), nil
}

// Exists reports whether a job with the given id is known, in memory or on disk.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.load(id)
	return err == nil
}

// ListByUser returns copies of the user's jobs, newest first. An empty userID lists all jobs.
func (s *Store) ListByUser(userID string) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading jobs directory: %w", err)
	}

	seen := make(map[string]bool)
	var jobs []*Job
	add := func(job *Job) {
		if seen[job.ID] || (userID != "" && job.UserID != userID) {
			return
		}
		seen[job.ID] = true
		jobs = append(jobs, job.snapshot())
	}

	for _, job := range s.jobs {
		add(job)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		if seen[id] {
			continue
		}
		job, err := s.readFile(id)
		if err != nil {
			continue
		}
		add(job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// load returns the live job, reading it from disk into memory if needed. Callers hold mu.
func (s *Store) load(id string) (*Job, error) {
	if job, ok := s.jobs[id]; ok {
		return job, nil
	}
	job, err := s.readFile(id)
	if err != nil {
		return nil, err
	}
	s.jobs[id] = job
	return job, nil
}

func (s *Store) put(job *Job) error {
	if job.ID == "" {
		return errors.New("job ID is required")
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}

	// Write then rename so a crash never leaves a partial file.
	tmp, err := os.CreateTemp(s.dir, job.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating job file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("closing job file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(job.ID)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replacing job file: %w", err)
	}

	s.jobs[job.ID] = job
	return nil
}

func (s *Store) readFile(id string) (*Job, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, ErrJobNotFound
	}

	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading job file: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding job file: %w", err)
	}
	return &job, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
