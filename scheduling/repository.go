package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/itsneelabh/gomind-mas/core"
	"gopkg.in/yaml.v3"
)

// JobRepository supplies the jobs a scheduler works on.
type JobRepository interface {
	Jobs(ctx context.Context) (Schedule, error)
}

// MemoryJobRepository keeps jobs in memory.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs Schedule
}

// NewMemoryJobRepository copies jobs into a new repository.
func NewMemoryJobRepository(jobs ...ScheduleItem) *MemoryJobRepository {
	return &MemoryJobRepository{jobs: Schedule(jobs).Clone()}
}

// Jobs returns a copy of the stored jobs.
func (r *MemoryJobRepository) Jobs(ctx context.Context) (Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(Schedule, len(r.jobs))
	copy(out, r.jobs)
	return out, nil
}

// Add appends a job.
func (r *MemoryJobRepository) Add(item ScheduleItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, item)
}

// Replace swaps the stored jobs for jobs.
func (r *MemoryJobRepository) Replace(jobs Schedule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = jobs.Clone()
}

// jobFile is the on-disk layout. A bare list of jobs is accepted too.
type jobFile struct {
	Jobs Schedule `json:"jobs" yaml:"jobs"`
}

// FileJobRepository reads jobs from a YAML or JSON file on every call, so
// edits are picked up by the next planning run.
type FileJobRepository struct {
	path string
}

// NewFileJobRepository returns a repository backed by path.
func NewFileJobRepository(path string) *FileJobRepository {
	return &FileJobRepository{path: path}
}

// Path returns the backing file.
func (r *FileJobRepository) Path() string {
	return r.path
}

// Jobs loads and validates the file.
func (r *FileJobRepository) Jobs(ctx context.Context) (Schedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file %s: %w", r.path, err)
	}

	jobs, err := decodeJobs(filepath.Ext(r.path), data)
	if err != nil {
		return nil, &core.FrameworkError{
			Op:      "FileJobRepository.Jobs",
			Kind:    "configuration",
			ID:      r.path,
			Message: err.Error(),
			Err:     core.ErrInvalidConfiguration,
		}
	}

	for i, job := range jobs {
		if strings.TrimSpace(job.JobID) == "" {
			return nil, &core.FrameworkError{
				Op: "FileJobRepository.Jobs", Kind: "configuration", ID: r.path,
				Message: fmt.Sprintf("job %d has no job_id", i),
				Err:     core.ErrInvalidConfiguration,
			}
		}
		if job.Hours < 0 {
			return nil, &core.FrameworkError{
				Op: "FileJobRepository.Jobs", Kind: "configuration", ID: r.path,
				Message: fmt.Sprintf("job %s has negative hours %d", job.JobID, job.Hours),
				Err:     core.ErrInvalidConfiguration,
			}
		}
	}
	return jobs, nil
}

func decodeJobs(ext string, data []byte) (Schedule, error) {
	switch strings.ToLower(ext) {
	case ".json":
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			var jobs Schedule
			err := json.Unmarshal(data, &jobs)
			return jobs, err
		}
		var f jobFile
		err := json.Unmarshal(data, &f)
		return f.Jobs, err
	case ".yaml", ".yml":
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return nil, err
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			var jobs Schedule
			err := node.Content[0].Decode(&jobs)
			return jobs, err
		}
		var f jobFile
		err := node.Decode(&f)
		return f.Jobs, err
	default:
		return nil, fmt.Errorf("unsupported jobs file extension %q", ext)
	}
}
