package domain

import "strings"

// RunStatus represents the current state of a report run
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

var runStatusLabels = map[RunStatus]string{
	RunStatusPending:    "Pending",
	RunStatusProcessing: "Processing",
	RunStatusCompleted:  "Completed",
	RunStatusFailed:     "Failed",
}

// Label returns a human-readable label for a run status.
func (s RunStatus) Label() string {
	if label, ok := runStatusLabels[s]; ok {
		return label
	}

	return "Unknown"
}

// ParseRunStatus returns the status for a given label (case-insensitive).
func ParseRunStatus(label string) (RunStatus, bool) {
	status := RunStatus(strings.ToLower(strings.TrimSpace(label)))
	_, ok := runStatusLabels[status]

	return status, ok
}
