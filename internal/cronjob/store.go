package cronjob

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"
)

// storeFile is the on-disk shape: { "jobs": CronJob[] }.
type storeFile struct {
	Jobs []Job `json:"jobs"`
}

// Store provides thread-safe persistence of cron jobs to a JSON file.
type Store struct {
	path string
	jobs map[string]Job // keyed by Job.ID
	mu   sync.RWMutex
}

// NewStore creates a Store backed by the given file path.
// If the file does not exist it will be created on the first Save.
func NewStore(path string) *Store {
	return &Store{
		path: path,
		jobs: make(map[string]Job),
	}
}

// Load reads persisted jobs from disk. Readers tolerate a missing file as
// an empty job set.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var file storeFile
	if err := sonic.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("unmarshal store: %w", err)
	}

	s.jobs = make(map[string]Job, len(file.Jobs))
	for _, j := range file.Jobs {
		s.jobs[j.ID] = j
	}
	return nil
}

// Save writes all jobs to disk. Atomic-replace (tmp + rename) is used, but
// is a best-effort convenience, not a correctness requirement for readers.
func (s *Store) Save() error {
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()

	data, err := sonic.Marshal(storeFile{Jobs: jobs})
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename store: %w", err)
	}
	return nil
}

// Add inserts a new job. Returns an error if the ID already exists.
func (s *Store) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job already exists: %s", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// Update replaces an existing job by ID.
func (s *Store) Update(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

// Remove deletes a job by ID.
func (s *Store) Remove(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

// Get returns a job by ID.
func (s *Store) Get(jobID string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	return j, ok
}

// List returns all jobs.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// EarliestNextRun returns the smallest NextRunAtMS across enabled jobs
// that have a defined next run, and whether any such job exists.
func (s *Store) EarliestNextRun() (jobID string, nextRunAtMS int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if !j.Enabled || !j.HasNextRun() {
			continue
		}
		if !ok || j.NextRunAtMS < nextRunAtMS {
			jobID, nextRunAtMS, ok = j.ID, j.NextRunAtMS, true
		}
	}
	return
}
