// Package jobstore persists Job records as one JSON file per job id. The
// save path follows a rename-to-backup-then-write-then-unlink pattern: it
// is single-writer (the orchestrator owns the file) so no file locking is
// used.
package jobstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/domain"
)

// Store persists Job records under Dir, one "<id>.json" file per job.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierr.Store(dir, err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.Dir, id+".json")
}

func (s *Store) backupPath(id string) string {
	return filepath.Join(s.Dir, id+".json.bak")
}

// Save writes job atomically: the existing file (if any) is renamed to a
// .bak backup, the new content is written, and the backup is removed on
// success. If the write fails, the backup is restored so the prior state is
// never lost.
func (s *Store) Save(job *domain.Job) error {
	job.UpdatedAt = time.Now()

	target := s.path(job.ID)
	backup := s.backupPath(job.ID)

	hadExisting := false
	if _, err := os.Stat(target); err == nil {
		if err := os.Rename(target, backup); err != nil {
			return apierr.Store(job.ID, fmt.Errorf("backup rename: %w", err))
		}
		hadExisting = true
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		s.restoreBackup(backup, target, hadExisting)
		return apierr.Store(job.ID, fmt.Errorf("marshal: %w", err))
	}

	if err := os.WriteFile(target, data, 0o644); err != nil {
		s.restoreBackup(backup, target, hadExisting)
		return apierr.Store(job.ID, fmt.Errorf("write: %w", err))
	}

	if hadExisting {
		_ = os.Remove(backup)
	}
	return nil
}

func (s *Store) restoreBackup(backup, target string, hadExisting bool) {
	if !hadExisting {
		return
	}
	_ = os.Rename(backup, target)
}

// ErrNotFound is returned by Load when no record exists for an id.
var ErrNotFound = fmt.Errorf("job not found")

// Load reads a job by id. A missing file returns ErrNotFound; a file that
// exists but fails to parse returns a recoverable Store error rather than
// being silently treated as absent.
func (s *Store) Load(id string) (*domain.Job, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, apierr.Store(id, err)
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, apierr.Store(id, fmt.Errorf("corrupt job record: %w", err))
	}
	return &job, nil
}

// List enumerates every valid job record, newest createdAt first. Files
// that fail to parse are skipped, not fatal to the listing.
func (s *Store) List() ([]*domain.Job, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, apierr.Store(s.Dir, err)
	}

	jobs := make([]*domain.Job, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".bak") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		job, err := s.Load(id)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// Purge removes job records whose CreatedAt is older than retention,
// returning the number removed.
func (s *Store) Purge(retention time.Duration) (int, error) {
	jobs, err := s.List()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-retention)
	removed := 0
	for _, job := range jobs {
		if job.CreatedAt.Before(cutoff) {
			if err := s.Delete(job.ID); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Delete removes a job record and any stray backup file.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return apierr.Store(id, err)
	}
	_ = os.Remove(s.backupPath(id))
	return nil
}
