package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"journey-ai/internal/models"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"
)

// GenerationJob tracks one asynchronous journey generation that the frontend
// polls while it shows the loading game.
type GenerationJob struct {
	ID        string          `json:"jobId"`
	Mode      string          `json:"mode"` // "journey" or "assignment"
	Status    string          `json:"status"`
	Step      string          `json:"step,omitempty"`
	Message   string          `json:"message,omitempty"`
	Percent   int             `json:"percent"`
	Journey   *models.Journey `json:"journey,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*GenerationJob
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*GenerationJob),
	}
}

func (m *JobManager) Create(mode string) (string, *GenerationJob) {
	job := &GenerationJob{
		ID:        uuid.NewString(),
		Mode:      mode,
		Status:    JobStatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.ID, job.clone()
}

func (m *JobManager) Get(id string) (*GenerationJob, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusProcessing
	})
}

// UpdateProgress records the planner's step/message/percent for pollers.
func (m *JobManager) UpdateProgress(id, step, message string, current, total int) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusProcessing
		job.Step = step
		job.Message = message
		job.Percent = percent(current, total)
	})
}

func (m *JobManager) Complete(id string, journey models.Journey) {
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusComplete
		job.Step = "complete"
		job.Percent = 100
		job.Journey = &journey
		job.Error = ""
	})
}

func (m *JobManager) Fail(id, msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "generation error"
	}
	m.withJob(id, func(job *GenerationJob) {
		job.Status = JobStatusFailed
		job.Step = "error"
		job.Error = msg
	})
}

func (m *JobManager) withJob(id string, fn func(job *GenerationJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

func (job *GenerationJob) clone() *GenerationJob {
	if job == nil {
		return nil
	}
	copyJob := *job
	if job.Journey != nil {
		j := *job.Journey
		copyJob.Journey = &j
	}
	return &copyJob
}

func percent(current, total int) int {
	if total <= 0 {
		if current <= 0 {
			return 0
		}
		if current > 100 {
			return 100
		}
		return current
	}
	if current <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	return int((float64(current) / float64(total)) * 100)
}
