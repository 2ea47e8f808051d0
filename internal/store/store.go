// Package store persists assessments, their derived results and the plan
// lifecycle. Uniqueness rules ("one active assessment per company",
// "evidence is write-once") are enforced by constraints at this boundary and
// surface as ErrConflict.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/raiox/internal/model"
)

var (
	// ErrNotFound is returned when a keyed row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrConflict is returned when a write hits a uniqueness constraint.
	ErrConflict = eris.New("store: conflict")
)

// Store defines the persistence interface for the diagnostic service.
type Store interface {
	// Assessments
	CreateAssessment(ctx context.Context, a *model.Assessment) error
	GetAssessment(ctx context.Context, id string) (*model.Assessment, error)
	GetLatestAssessment(ctx context.Context, companyID string) (*model.Assessment, error)
	UpdateAssessment(ctx context.Context, a *model.Assessment) error
	StartNewCycle(ctx context.Context, id string, fromCycle int, at time.Time) error

	// Answers
	UpsertAnswers(ctx context.Context, answers []model.Answer) error
	ListAnswers(ctx context.Context, assessmentID string) ([]model.Answer, error)

	// Scores
	ReplaceScores(ctx context.Context, assessmentID string, scores []model.ProcessScore) error
	ListScores(ctx context.Context, assessmentID string) ([]model.ProcessScore, error)

	// Gaps and root causes
	SyncGapInstances(ctx context.Context, assessmentID string, gaps []model.GapInstance) error
	ListGapInstances(ctx context.Context, assessmentID string) ([]model.GapInstance, error)
	UpsertCauseAnswers(ctx context.Context, answers []model.CauseAnswer) error
	ListCauseAnswers(ctx context.Context, assessmentID, gapID string) ([]model.CauseAnswer, error)
	SaveClassification(ctx context.Context, cl *model.CauseClassification) error
	ListClassifications(ctx context.Context, assessmentID string) ([]model.CauseClassification, error)

	// Findings
	ReplaceFindings(ctx context.Context, assessmentID string, findings []model.Finding) error
	ListFindings(ctx context.Context, assessmentID string) ([]model.Finding, error)

	// Plan
	ReplacePlan(ctx context.Context, assessmentID string, actions []model.SelectedAction) error
	ListPlan(ctx context.Context, assessmentID string) ([]model.SelectedAction, error)
	UpdateActionStatus(ctx context.Context, assessmentID, actionKey string, status model.ActionStatus, droppedReason string, at time.Time) error
	UpsertDoD(ctx context.Context, c *model.DoDConfirmation) error
	GetDoD(ctx context.Context, assessmentID, actionKey string) (*model.DoDConfirmation, error)
	InsertEvidence(ctx context.Context, ev *model.ActionEvidence) error
	GetEvidence(ctx context.Context, assessmentID, actionKey string) (*model.ActionEvidence, error)
	ListEvidence(ctx context.Context, assessmentID string) ([]model.ActionEvidence, error)

	// Cycle history
	ArchiveCycle(ctx context.Context, entries []model.CycleHistoryEntry) error
	ListHistory(ctx context.Context, assessmentID string) ([]model.CycleHistoryEntry, error)

	// Snapshots
	UpsertSnapshot(ctx context.Context, s *model.DiagnosticSnapshot) error
	GetSnapshot(ctx context.Context, assessmentID, fullVersion string) (*model.DiagnosticSnapshot, error)
	ListSnapshots(ctx context.Context, assessmentID string) ([]model.DiagnosticSnapshot, error)

	// Audit
	InsertAuditEvent(ctx context.Context, ev *model.AuditEvent) error
	ListAuditEvents(ctx context.Context, assessmentID string) ([]model.AuditEvent, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Shared column lists. Both backends use the same schema.
var (
	assessmentCols = []string{"id", "company_id", "segment", "status", "cycle_no", "catalog_version", "created_at", "updated_at", "submitted_at", "closed_at"}
	answerCols     = []string{"assessment_id", "process_key", "question_key", "value", "updated_at"}
	scoreCols      = []string{"assessment_id", "process_key", "score_numeric", "band", "dimension_scores", "rule_used", "answer_count"}
	gapCols        = []string{"assessment_id", "gap_id", "process_key", "status", "created_at"}
	causeAnsCols   = []string{"assessment_id", "gap_id", "question_id", "answer", "updated_at"}
	classCols      = []string{"assessment_id", "gap_id", "cause_primary", "cause_secondary", "evidence", "classified_at"}
	findingCols    = []string{"assessment_id", "type", "position", "process_key", "payload", "trace", "is_fallback"}
	actionCols     = []string{"assessment_id", "action_key", "position", "owner_name", "metric_text", "checkpoint_date", "status", "dropped_reason", "updated_at"}
	dodCols        = []string{"assessment_id", "action_key", "confirmed_items", "updated_at"}
	evidenceCols   = []string{"assessment_id", "action_key", "evidence_text", "before_baseline", "after_result", "declared_gain", "created_at"}
	historyCols    = []string{"assessment_id", "cycle_no", "action_key", "position", "owner_name", "metric_text", "status", "dropped_reason", "declared_gain", "archived_at"}
	snapshotCols   = []string{"assessment_id", "full_version", "cycle_no", "catalog_version", "processes", "raios_x", "recommendations", "plan", "evidence_summary", "created_at", "updated_at"}
	auditCols      = []string{"id", "assessment_id", "company_id", "kind", "detail", "created_at"}
)

type scannable interface {
	Scan(dest ...any) error
}

// snapshotBlobs holds the JSON columns of a snapshot row.
type snapshotBlobs struct {
	processes, raiosX, recommendations, plan, evidence []byte
}

func encodeSnapshot(s *model.DiagnosticSnapshot) (snapshotBlobs, error) {
	var b snapshotBlobs
	var err error
	if b.processes, err = json.Marshal(nonNil(s.Processes)); err != nil {
		return b, eris.Wrap(err, "store: marshal snapshot processes")
	}
	if b.raiosX, err = json.Marshal(s.RaiosX); err != nil {
		return b, eris.Wrap(err, "store: marshal snapshot raios_x")
	}
	if b.recommendations, err = json.Marshal(nonNil(s.Recommendations)); err != nil {
		return b, eris.Wrap(err, "store: marshal snapshot recommendations")
	}
	if b.plan, err = json.Marshal(nonNil(s.Plan)); err != nil {
		return b, eris.Wrap(err, "store: marshal snapshot plan")
	}
	if s.EvidenceSummary != nil {
		if b.evidence, err = json.Marshal(s.EvidenceSummary); err != nil {
			return b, eris.Wrap(err, "store: marshal snapshot evidence summary")
		}
	}
	return b, nil
}

func decodeSnapshot(s *model.DiagnosticSnapshot, b snapshotBlobs) error {
	if err := json.Unmarshal(b.processes, &s.Processes); err != nil {
		return eris.Wrap(err, "store: unmarshal snapshot processes")
	}
	if err := json.Unmarshal(b.raiosX, &s.RaiosX); err != nil {
		return eris.Wrap(err, "store: unmarshal snapshot raios_x")
	}
	if err := json.Unmarshal(b.recommendations, &s.Recommendations); err != nil {
		return eris.Wrap(err, "store: unmarshal snapshot recommendations")
	}
	if err := json.Unmarshal(b.plan, &s.Plan); err != nil {
		return eris.Wrap(err, "store: unmarshal snapshot plan")
	}
	if len(b.evidence) > 0 && string(b.evidence) != "null" {
		s.EvidenceSummary = &model.EvidenceSummary{}
		if err := json.Unmarshal(b.evidence, s.EvidenceSummary); err != nil {
			return eris.Wrap(err, "store: unmarshal snapshot evidence summary")
		}
	}
	return nil
}

// nonNil keeps empty slices as [] instead of null in JSON columns.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func timePtr(t time.Time, valid bool) *time.Time {
	if !valid {
		return nil
	}
	u := t.UTC()
	return &u
}
