package model

import (
	"fmt"
	"time"
)

// SnapshotFullVersion builds the version key of a cycle's snapshot.
func SnapshotFullVersion(catalogVersion string, cycleNo int) string {
	return fmt.Sprintf("%s.c%d", catalogVersion, cycleNo)
}

// ProcessRecommendations lists the catalog recommendations for a process band.
type ProcessRecommendations struct {
	ProcessKey string   `json:"process_key"`
	Band       Band     `json:"band"`
	Items      []string `json:"items"`
}

// EvidenceSummary condenses the terminal state of a cycle's plan.
type EvidenceSummary struct {
	Total         int              `json:"total"`
	Done          int              `json:"done"`
	Dropped       int              `json:"dropped"`
	DeclaredGains []DeclaredGain   `json:"declared_gains"`
	Evidence      []ActionEvidence `json:"evidence"`
}

// DeclaredGain is the gain reported for one completed action.
type DeclaredGain struct {
	ActionKey    string `json:"action_key"`
	DeclaredGain string `json:"declared_gain"`
}

// DiagnosticSnapshot is an immutable point-in-time projection of an
// assessment cycle. The close step fills Plan and EvidenceSummary.
type DiagnosticSnapshot struct {
	AssessmentID    string                   `json:"assessment_id"`
	FullVersion     string                   `json:"full_version"`
	CycleNo         int                      `json:"cycle_no"`
	CatalogVersion  string                   `json:"catalog_version"`
	Processes       []ProcessScore           `json:"processes"`
	RaiosX          SixPack                  `json:"raios_x"`
	Recommendations []ProcessRecommendations `json:"recommendations"`
	Plan            []SelectedAction         `json:"plan"`
	EvidenceSummary *EvidenceSummary         `json:"evidence_summary,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// AuditKind classifies audit events.
type AuditKind string

const (
	AuditContentGap       AuditKind = "content_gap"
	AuditCatalogInvalid   AuditKind = "catalog_invalid"
	AuditCauseClassified  AuditKind = "cause_classified"
	AuditCycleClosed      AuditKind = "cycle_closed"
	AuditCycleOpened      AuditKind = "cycle_opened"
	AuditEvidenceConflict AuditKind = "evidence_conflict"
)

// AuditEvent is an append-only trail entry.
type AuditEvent struct {
	ID           string         `json:"id"`
	AssessmentID string         `json:"assessment_id"`
	CompanyID    string         `json:"company_id"`
	Kind         AuditKind      `json:"kind"`
	Detail       map[string]any `json:"detail,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
