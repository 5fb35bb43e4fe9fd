package monitoring

import (
	"sync"
	"time"

	"github.com/blocktank/channel-backend/internal/utils/logger"
)

type JobExecutionStatus string

const (
	JobStatusPending JobExecutionStatus = "pending"
	JobStatusRunning JobExecutionStatus = "running"
	JobStatusSuccess JobExecutionStatus = "success"
	JobStatusFailed  JobExecutionStatus = "failed"
	JobStatusStalled JobExecutionStatus = "stalled"
)

// JobStatus is the tracked state of one background job.
type JobStatus struct {
	JobName             string             `json:"job_name"`
	Status              JobExecutionStatus `json:"status"`
	LastRunTime         time.Time          `json:"last_run_time"`
	LastDuration        time.Duration      `json:"last_duration_ms"`
	SuccessCount        int64              `json:"success_count"`
	FailureCount        int64              `json:"failure_count"`
	ConsecutiveFailures int64              `json:"consecutive_failures"`
	LastError           string             `json:"last_error,omitempty"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// JobStatusManager tracks every background job's last outcome, for the health
// endpoint and the job metrics.
type JobStatusManager struct {
	mu               sync.RWMutex
	statuses         map[string]*JobStatus
	logger           *logger.Logger
	metrics          *BackgroundJobMetrics
	stalledThreshold time.Duration
}

func NewJobStatusManager(logger *logger.Logger, metrics *BackgroundJobMetrics) *JobStatusManager {
	return &JobStatusManager{
		statuses:         make(map[string]*JobStatus),
		logger:           logger,
		metrics:          metrics,
		stalledThreshold: 5 * time.Minute,
	}
}

func (jsm *JobStatusManager) RegisterJob(jobName string) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()
	if _, exists := jsm.statuses[jobName]; !exists {
		jsm.statuses[jobName] = &JobStatus{
			JobName:   jobName,
			Status:    JobStatusPending,
			UpdatedAt: time.Now(),
		}
	}
}

func (jsm *JobStatusManager) StartJob(jobName string) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	status, exists := jsm.statuses[jobName]
	if !exists {
		status = &JobStatus{JobName: jobName}
		jsm.statuses[jobName] = status
	}
	status.Status = JobStatusRunning
	status.LastRunTime = time.Now()
	status.UpdatedAt = time.Now()

	jsm.metrics.activeJobs.Inc()
}

func (jsm *JobStatusManager) CompleteJob(jobName string, err error) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	status, exists := jsm.statuses[jobName]
	if !exists {
		jsm.logger.Error("[JobStatusManager] completing unregistered job", map[string]string{
			"job_name": jobName,
		})
		return
	}

	duration := time.Since(status.LastRunTime)
	status.LastDuration = duration
	status.UpdatedAt = time.Now()

	if err != nil {
		status.Status = JobStatusFailed
		status.FailureCount++
		status.ConsecutiveFailures++
		status.LastError = err.Error()
		jsm.metrics.jobRuns.WithLabelValues(jobName, "error").Inc()
		jsm.metrics.jobDuration.WithLabelValues(jobName, "failed").Observe(duration.Seconds())
	} else {
		status.Status = JobStatusSuccess
		status.SuccessCount++
		status.ConsecutiveFailures = 0
		status.LastError = ""
		jsm.metrics.jobRuns.WithLabelValues(jobName, "success").Inc()
		jsm.metrics.jobDuration.WithLabelValues(jobName, "success").Observe(duration.Seconds())
	}

	jsm.metrics.activeJobs.Dec()
}

func (jsm *JobStatusManager) GetJobStatus(jobName string) (*JobStatus, bool) {
	jsm.mu.RLock()
	defer jsm.mu.RUnlock()

	status, exists := jsm.statuses[jobName]
	if !exists {
		return nil, false
	}
	copied := *status
	return &copied, true
}

// GetAllStatuses returns a snapshot of every tracked job, flagging jobs that
// have been running longer than the stalled threshold.
func (jsm *JobStatusManager) GetAllStatuses() map[string]JobStatus {
	jsm.mu.RLock()
	defer jsm.mu.RUnlock()

	out := make(map[string]JobStatus, len(jsm.statuses))
	for name, status := range jsm.statuses {
		copied := *status
		if copied.Status == JobStatusRunning && time.Since(copied.LastRunTime) > jsm.stalledThreshold {
			copied.Status = JobStatusStalled
		}
		out[name] = copied
	}
	return out
}

// Unhealthy reports whether any job has failed repeatedly or stalled.
func (jsm *JobStatusManager) Unhealthy() bool {
	for _, status := range jsm.GetAllStatuses() {
		if status.Status == JobStatusStalled || status.ConsecutiveFailures >= 3 {
			return true
		}
	}
	return false
}
