package domain

import "fmt"

// transitions lists every allowed status change, internal ones included
var transitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusReady, JobStatusFailed},
	JobStatusReady:      {JobStatusProcessing, JobStatusCompleted, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsReportable reports whether an executing client may request the status
func IsReportable(status JobStatus) bool {
	switch status {
	case JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// CheckReport decides how a client-reported status applies to a job in status from.
// changed is false when the job is already in the reported terminal status; terminal
// states are absorbing, so moving between them is an invalid transition.
// processing is a claim and is granted once.
func CheckReport(from, to JobStatus) (changed bool, err error) {
	if !IsReportable(to) {
		return false, NewValidationError("status", fmt.Sprintf("must be one of processing, completed, failed; got %q", to))
	}

	if from == to {
		if to == JobStatusProcessing {
			return false, fmt.Errorf("%w: job already claimed", ErrInvalidTransition)
		}
		return false, nil
	}

	if from == JobStatusPending || !CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	return true, nil
}
