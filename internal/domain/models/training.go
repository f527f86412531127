package models

import "time"

// JobState is the progress of one per-key training job.
type JobState string

const (
	StateLoaded        JobState = "loaded"
	StateValidated     JobState = "validated"
	StatePreprocessed  JobState = "preprocessed"
	StatePnLFit        JobState = "pnl_fit"
	StateTrajectoryFit JobState = "trajectory_fit"
	StateRiskFit       JobState = "risk_fit"
	StatePersisted     JobState = "persisted"
	StateFailed        JobState = "failed"
)

// JobResult reports one training job. FailedAt is the last state reached
// before the failure.
type JobResult struct {
	Key         ModelKey
	State       JobState
	FailedAt    JobState
	Err         error
	SampleCount int
	Metrics     TrainingMetrics
	Duration    time.Duration
	Bundle      *Bundle
}

func (r *JobResult) Succeeded() bool { return r.State == StatePersisted }

const (
	OutcomeSuccess = "Success"
	OutcomeFailed  = "Failed"
)

// TrainingSummary is the advisory record written after a batch run.
type TrainingSummary struct {
	RunID       string            `json:"run_id"`
	TotalModels int               `json:"total_models"`
	Failed      int               `json:"failed"`
	Models      map[string]string `json:"models"`
	Timestamp   time.Time         `json:"timestamp"`
}
