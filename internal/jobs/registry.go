// Package jobs tracks multi-device discovery jobs and per-device progress.
//
// The registry is process-local and in-memory: a restart loses in-flight job
// state. That is a documented limitation of the current deployment model, not
// something callers should paper over. The Registry interface exists so a
// shared external store can replace the in-memory map for multi-worker setups.
package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status values shared by jobs and devices. Devices additionally pass
// through StatusInProgress while their category sweep runs.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrDeviceNotFound is returned when a device id is not part of the job.
	ErrDeviceNotFound = errors.New("device not part of job")
)

// DeviceProgress is the per-device slice of a job. Only the executor that
// owns the job mutates it; pollers receive copies.
type DeviceProgress struct {
	DeviceID    string     `json:"device_id"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress_percentage"`
	CurrentTask string     `json:"current_task,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Job is one multi-device discovery request.
type Job struct {
	ID               string                     `json:"job_id"`
	Status           Status                     `json:"status"`
	TotalDevices     int                        `json:"total_devices"`
	CompletedDevices int                        `json:"completed_devices"`
	FailedDevices    int                        `json:"failed_devices"`
	// Progress is always floor((completed+failed)/total*100), recomputed on
	// every device update; it never drifts independently of the counters.
	Progress    int                        `json:"progress_percentage"`
	StartedAt   time.Time                  `json:"started_at"`
	CompletedAt *time.Time                 `json:"completed_at,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Devices     map[string]*DeviceProgress `json:"devices"`
}

// Registry is the job-tracking contract consumed by the discovery executors.
type Registry interface {
	// CreateJob initializes a pending job with one pending DeviceProgress
	// per device and returns the new job id.
	CreateJob(deviceIDs []string) string
	// GetJob returns a deep copy of the job, or ErrJobNotFound.
	GetJob(jobID string) (*Job, error)
	// UpdateJobStatus moves the whole job to the given status. Terminal
	// statuses stamp CompletedAt.
	UpdateJobStatus(jobID string, status Status, errMsg string) error
	// UpdateDeviceProgress mutates one device's progress. A transition into
	// completed/failed bumps the job counter exactly once; updates on a
	// device already terminal are rejected silently (counters never double).
	UpdateDeviceProgress(jobID, deviceID string, status Status, progress int, currentTask, errMsg string) error
}

// MemoryRegistry is the single-process Registry backed by a mutex-guarded map.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string]*Job)}
}

// CreateJob initializes a pending job for the given devices.
func (r *MemoryRegistry) CreateJob(deviceIDs []string) string {
	job := &Job{
		ID:           uuid.NewString(),
		Status:       StatusPending,
		TotalDevices: len(deviceIDs),
		StartedAt:    time.Now(),
		Devices:      make(map[string]*DeviceProgress, len(deviceIDs)),
	}
	for _, id := range deviceIDs {
		job.Devices[id] = &DeviceProgress{DeviceID: id, Status: StatusPending}
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
	return job.ID
}

// GetJob returns a deep copy so pollers never observe partial mutations.
func (r *MemoryRegistry) GetJob(jobID string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.clone(), nil
}

// UpdateJobStatus moves the job itself between statuses.
func (r *MemoryRegistry) UpdateJobStatus(jobID string, status Status, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	if errMsg != "" {
		job.Error = errMsg
	}
	if status.Terminal() {
		now := time.Now()
		job.CompletedAt = &now
	}
	return nil
}

// UpdateDeviceProgress serializes the counter-increment step under the
// registry lock so parallel worker tasks cannot double-count a device.
func (r *MemoryRegistry) UpdateDeviceProgress(jobID, deviceID string, status Status, progress int, currentTask, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	dev, ok := job.Devices[deviceID]
	if !ok {
		return ErrDeviceNotFound
	}
	if dev.Status.Terminal() {
		// No transition out of a terminal state.
		return nil
	}

	if dev.StartedAt == nil && status != StatusPending {
		now := time.Now()
		dev.StartedAt = &now
	}

	dev.Status = status
	dev.Progress = progress
	dev.CurrentTask = currentTask
	if errMsg != "" {
		dev.Error = errMsg
	}

	if status.Terminal() {
		now := time.Now()
		dev.CompletedAt = &now
		dev.CurrentTask = ""
		switch status {
		case StatusCompleted:
			job.CompletedDevices++
		case StatusFailed:
			job.FailedDevices++
		}
	}

	if job.TotalDevices > 0 {
		job.Progress = (job.CompletedDevices + job.FailedDevices) * 100 / job.TotalDevices
	}
	return nil
}

func (j *Job) clone() *Job {
	out := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	out.Devices = make(map[string]*DeviceProgress, len(j.Devices))
	for id, d := range j.Devices {
		dc := *d
		if d.StartedAt != nil {
			t := *d.StartedAt
			dc.StartedAt = &t
		}
		if d.CompletedAt != nil {
			t := *d.CompletedAt
			dc.CompletedAt = &t
		}
		out.Devices[id] = &dc
	}
	return &out
}
