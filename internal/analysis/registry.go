package analysis

import (
	"sync"
	"time"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ResultBundle holds the artifact contents read back from the analyzer
// output directory after a successful run. The JSON keys match the
// artifact file names, which is also the shape persisted on the
// project record.
type ResultBundle struct {
	DataWithExploits   string `json:"data_with_exploits"`
	RankedEntryPoints  string `json:"ranked_entry_points"`
	EntrypointMostInfo string `json:"entrypoint_most_info"`
	Port0Entries       string `json:"port_0_entries"`
	Exploits           string `json:"exploits"`
}

// Job is the last-known outcome of an analysis run for one project.
type Job struct {
	Status      Status        `json:"status"`
	Results     *ResultBundle `json:"results,omitempty"`
	Error       string        `json:"error,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// Registry maps project ids to job outcomes for the life of the
// process. Entries are never evicted; the project store independently
// persists successful results, so losing the registry on restart only
// loses in-flight and unpolled statuses. Safe for concurrent use; the
// last write for an id wins.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]Job)}
}

// BeginProcessing claims the processing slot for a project: it records
// a processing entry and returns true, unless a run is already
// processing, in which case the entry is left alone and false is
// returned. Check and claim happen under a single lock.
func (r *Registry) BeginProcessing(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[projectID]; ok && job.Status == StatusProcessing {
		return false
	}
	r.jobs[projectID] = Job{Status: StatusProcessing}
	return true
}

func (r *Registry) Set(projectID string, job Job) {
	r.mu.Lock()
	r.jobs[projectID] = job
	r.mu.Unlock()
}

func (r *Registry) Get(projectID string) (Job, bool) {
	r.mu.RLock()
	job, ok := r.jobs[projectID]
	r.mu.RUnlock()
	return job, ok
}
