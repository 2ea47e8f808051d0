package plan

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/model"
	"github.com/sells-group/raiox/internal/store"
)

// CloseResult is returned by a successful close.
type CloseResult struct {
	Assessment *model.Assessment         `json:"assessment"`
	Snapshot   *model.DiagnosticSnapshot `json:"snapshot"`
}

// Close ends the open cycle. Every plan action must be DONE or DROPPED with
// a valid reason; an empty plan closes as is, which is the only way out of a
// cycle with nothing left to select. The plan is archived and the snapshot completed before the
// status flips to CLOSED, so a failed close can be retried safely.
func (s *Service) Close(ctx context.Context, id string) (*CloseResult, error) {
	a, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := a.Status.Next(model.EventClose); !ok {
		return nil, apperr.InvalidTransition(string(a.Status), string(model.AssessmentClosed))
	}

	current, err := s.store.ListPlan(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "close: load plan")
	}
	var pending []string
	for _, act := range current {
		if !act.Status.IsTerminal() {
			pending = append(pending, act.ActionKey)
		}
	}
	if len(pending) > 0 {
		return nil, apperr.ActionsPending(pending)
	}
	for _, act := range current {
		if act.Status == model.ActionDropped && !s.validDropReason(act.DroppedReason) {
			return nil, apperr.DropReasonRequired(s.dropReasonMin).With("action_key", act.ActionKey)
		}
	}

	evidence, err := s.store.ListEvidence(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "close: load evidence")
	}
	gains := make(map[string]string, len(evidence))
	for _, ev := range evidence {
		gains[ev.ActionKey] = ev.DeclaredGain
	}

	now := s.now().UTC()
	entries := make([]model.CycleHistoryEntry, len(current))
	for i, act := range current {
		entries[i] = model.CycleHistoryEntry{
			AssessmentID:  id,
			CycleNo:       a.CycleNo,
			ActionKey:     act.ActionKey,
			Position:      act.Position,
			OwnerName:     act.OwnerName,
			MetricText:    act.MetricText,
			Status:        act.Status,
			DroppedReason: act.DroppedReason,
			DeclaredGain:  gains[act.ActionKey],
			ArchivedAt:    now,
		}
	}
	if err := s.store.ArchiveCycle(ctx, entries); err != nil {
		return nil, eris.Wrap(err, "close: archive cycle")
	}

	snap, err := s.snapshots.RecordClose(ctx, a, current, evidence)
	if err != nil {
		return nil, eris.Wrap(err, "close: record snapshot")
	}

	a.Status = model.AssessmentClosed
	a.ClosedAt = &now
	a.UpdatedAt = now
	if err := s.store.UpdateAssessment(ctx, a); err != nil {
		return nil, eris.Wrap(err, "close: update status")
	}

	s.audit.Record(ctx, model.AuditCycleClosed, a.ID, a.CompanyID, map[string]any{
		"cycle_no": a.CycleNo,
		"done":     snap.EvidenceSummary.Done,
		"dropped":  snap.EvidenceSummary.Dropped,
	})
	return &CloseResult{Assessment: a, Snapshot: snap}, nil
}

// NewCycle reopens a CLOSED assessment as SUBMITTED with the next cycle
// number and an empty plan. The archived actions of every past cycle stay
// out of the selectable pool.
func (s *Service) NewCycle(ctx context.Context, id string) (*model.Assessment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := a.Status.Next(model.EventNewCycle); !ok {
		return nil, apperr.CycleNotClosed()
	}

	from := a.CycleNo
	err = s.store.StartNewCycle(ctx, id, from, s.now().UTC())
	if err != nil && !errors.Is(err, store.ErrConflict) {
		return nil, eris.Wrap(err, "new cycle: reopen")
	}

	reopened, lerr := s.load(ctx, id)
	if lerr != nil {
		return nil, lerr
	}
	if err != nil {
		// A concurrent request may have advanced the cycle already.
		if reopened.Status == model.AssessmentSubmitted && reopened.CycleNo == from+1 {
			return reopened, nil
		}
		return nil, eris.Wrapf(err, "new cycle: reopen from cycle %d", from)
	}

	s.audit.Record(ctx, model.AuditCycleOpened, a.ID, a.CompanyID, map[string]any{
		"cycle_no":       reopened.CycleNo,
		"previous_cycle": from,
	})
	zap.L().Info("plan: new cycle opened",
		zap.String("assessment_id", id),
		zap.Int("cycle_no", reopened.CycleNo),
	)
	return reopened, nil
}
