package model

import (
	"strings"
	"time"
)

// ActionStatus is the execution state of a selected action.
type ActionStatus string

const (
	ActionNotStarted ActionStatus = "NOT_STARTED"
	ActionInProgress ActionStatus = "IN_PROGRESS"
	ActionDone       ActionStatus = "DONE"
	ActionDropped    ActionStatus = "DROPPED"
)

// ParseActionStatus parses a status, case-insensitive.
func ParseActionStatus(s string) (ActionStatus, bool) {
	st := ActionStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case ActionNotStarted, ActionInProgress, ActionDone, ActionDropped:
		return st, true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s ActionStatus) IsTerminal() bool {
	return s == ActionDone || s == ActionDropped
}

var actionTransitions = map[ActionStatus][]ActionStatus{
	ActionNotStarted: {ActionInProgress, ActionDone, ActionDropped},
	ActionInProgress: {ActionDone, ActionDropped},
}

// CanTransition reports whether an action may move from s to to.
// Re-applying the current status is accepted so retries are idempotent.
func (s ActionStatus) CanTransition(to ActionStatus) bool {
	if s == to {
		return true
	}
	for _, allowed := range actionTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// SelectedAction is one action of the current cycle's plan.
type SelectedAction struct {
	AssessmentID   string       `json:"assessment_id"`
	ActionKey      string       `json:"action_key"`
	Position       int          `json:"position"`
	OwnerName      string       `json:"owner_name"`
	MetricText     string       `json:"metric_text"`
	CheckpointDate string       `json:"checkpoint_date"`
	Status         ActionStatus `json:"status"`
	DroppedReason  string       `json:"dropped_reason,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// DoDConfirmation records which Definition-of-Done items were confirmed.
type DoDConfirmation struct {
	AssessmentID   string    `json:"assessment_id"`
	ActionKey      string    `json:"action_key"`
	ConfirmedItems []string  `json:"confirmed_items"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ActionEvidence is the write-once before/after record of an action.
type ActionEvidence struct {
	AssessmentID   string    `json:"assessment_id"`
	ActionKey      string    `json:"action_key"`
	EvidenceText   string    `json:"evidence_text"`
	BeforeBaseline string    `json:"before_baseline"`
	AfterResult    string    `json:"after_result"`
	DeclaredGain   string    `json:"declared_gain,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CycleHistoryEntry is an archived action of a closed cycle.
type CycleHistoryEntry struct {
	AssessmentID  string       `json:"assessment_id"`
	CycleNo       int          `json:"cycle_no"`
	ActionKey     string       `json:"action_key"`
	Position      int          `json:"position"`
	OwnerName     string       `json:"owner_name"`
	MetricText    string       `json:"metric_text"`
	Status        ActionStatus `json:"status"`
	DroppedReason string       `json:"dropped_reason,omitempty"`
	DeclaredGain  string       `json:"declared_gain,omitempty"`
	ArchivedAt    time.Time    `json:"archived_at"`
}
