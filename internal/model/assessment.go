// Package model holds the domain types shared by the diagnostic engines,
// the plan lifecycle and the persistence layer.
package model

import (
	"strings"
	"time"
)

// Segment is the company segment an assessment was opened for.
type Segment string

const (
	SegmentC Segment = "C"
	SegmentI Segment = "I"
	SegmentS Segment = "S"
)

// ParseSegment parses a segment code, case-insensitive. Empty defaults to C.
func ParseSegment(s string) (Segment, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "C":
		return SegmentC, true
	case "I":
		return SegmentI, true
	case "S":
		return SegmentS, true
	default:
		return "", false
	}
}

// AssessmentStatus represents the lifecycle state of an assessment.
type AssessmentStatus string

const (
	AssessmentDraft     AssessmentStatus = "DRAFT"
	AssessmentSubmitted AssessmentStatus = "SUBMITTED"
	AssessmentClosed    AssessmentStatus = "CLOSED"
)

// IsActive reports whether the assessment still counts as the company's
// active assessment.
func (s AssessmentStatus) IsActive() bool {
	return s == AssessmentDraft || s == AssessmentSubmitted
}

// AssessmentEvent is an input to the assessment state machine.
type AssessmentEvent string

const (
	EventSubmit   AssessmentEvent = "submit"
	EventClose    AssessmentEvent = "close"
	EventNewCycle AssessmentEvent = "new_cycle"
)

var assessmentTransitions = map[AssessmentStatus]map[AssessmentEvent]AssessmentStatus{
	AssessmentDraft: {
		EventSubmit: AssessmentSubmitted,
	},
	AssessmentSubmitted: {
		EventClose: AssessmentClosed,
	},
	AssessmentClosed: {
		EventNewCycle: AssessmentSubmitted,
	},
}

// Next returns the state reached by applying ev, or false when the event is
// not allowed from s.
func (s AssessmentStatus) Next(ev AssessmentEvent) (AssessmentStatus, bool) {
	to, ok := assessmentTransitions[s][ev]
	return to, ok
}

// Assessment is a company's diagnostic. The same id is reused across cycles.
type Assessment struct {
	ID             string           `json:"id"`
	CompanyID      string           `json:"company_id"`
	Segment        Segment          `json:"segment"`
	Status         AssessmentStatus `json:"status"`
	CycleNo        int              `json:"cycle_no"`
	CatalogVersion string           `json:"catalog_version"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	SubmittedAt    *time.Time       `json:"submitted_at,omitempty"`
	ClosedAt       *time.Time       `json:"closed_at,omitempty"`
}

// Answer is a single 0-10 answer to a maturity question.
type Answer struct {
	AssessmentID string    `json:"assessment_id"`
	ProcessKey   string    `json:"process_key"`
	QuestionKey  string    `json:"question_key"`
	Value        int       `json:"value"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// GroupAnswers groups answers by process key, preserving input order.
func GroupAnswers(answers []Answer) map[string][]Answer {
	out := make(map[string][]Answer)
	for _, a := range answers {
		out[a.ProcessKey] = append(out[a.ProcessKey], a)
	}
	return out
}
