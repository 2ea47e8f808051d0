package plan

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/model"
	"github.com/sells-group/raiox/internal/store"
)

// SetStatus moves a plan action through its status machine. DONE needs a
// complete checklist and recorded evidence; DROPPED needs a reason of the
// configured minimum length.
func (s *Service) SetStatus(ctx context.Context, id, actionKey, rawStatus, droppedReason string) (*model.SelectedAction, error) {
	a, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	to, ok := model.ParseActionStatus(rawStatus)
	if !ok {
		return nil, apperr.Validation("status", "status inválido")
	}
	_, act, err := s.planAction(ctx, id, actionKey)
	if err != nil {
		return nil, err
	}
	if !act.Status.CanTransition(to) {
		return nil, apperr.InvalidTransition(string(act.Status), string(to))
	}

	reason := ""
	switch to {
	case model.ActionDone:
		if err := s.checkDoneGates(ctx, a, actionKey); err != nil {
			return nil, err
		}
	case model.ActionDropped:
		reason = strings.TrimSpace(droppedReason)
		if !s.validDropReason(reason) {
			return nil, apperr.DropReasonRequired(s.dropReasonMin)
		}
	}

	now := s.now().UTC()
	if err := s.store.UpdateActionStatus(ctx, id, actionKey, to, reason, now); err != nil {
		return nil, eris.Wrapf(err, "plan: update status of %s", actionKey)
	}
	zap.L().Info("plan: action status changed",
		zap.String("assessment_id", id),
		zap.String("action_key", actionKey),
		zap.String("from", string(act.Status)),
		zap.String("to", string(to)),
	)
	act.Status = to
	act.DroppedReason = reason
	act.UpdatedAt = now
	return act, nil
}

func (s *Service) validDropReason(reason string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(reason)) >= s.dropReasonMin
}

// checkDoneGates runs the checklist gate before the evidence gate.
func (s *Service) checkDoneGates(ctx context.Context, a *model.Assessment, actionKey string) error {
	missing, err := s.missingDoD(ctx, a, actionKey)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return apperr.ChecklistIncomplete(missing)
	}
	_, err = s.store.GetEvidence(ctx, a.ID, actionKey)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.EvidenceRequired()
	}
	return eris.Wrap(err, "plan: load evidence")
}

func (s *Service) missingDoD(ctx context.Context, a *model.Assessment, actionKey string) ([]string, error) {
	checklist, err := s.checklist(ctx, a, actionKey)
	if err != nil {
		return nil, err
	}
	var confirmed []string
	c, err := s.store.GetDoD(ctx, a.ID, actionKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, eris.Wrap(err, "plan: load dod")
	default:
		confirmed = c.ConfirmedItems
	}
	return missingItems(checklist, confirmed), nil
}

// checklist returns the DoD items of a plan action. A plan action the active
// catalog no longer defines is an integrity failure, never an empty
// checklist.
func (s *Service) checklist(ctx context.Context, a *model.Assessment, actionKey string) ([]string, error) {
	cat := s.catalogs.Current()
	act, ok := cat.Action(actionKey)
	if !ok {
		s.audit.Record(ctx, model.AuditCatalogInvalid, a.ID, a.CompanyID, map[string]any{
			"stage":          "checklist",
			"action_key":     actionKey,
			"active_version": cat.Version,
		})
		return nil, apperr.CatalogInvalid(eris.Errorf("plan: action %s missing from catalog %s", actionKey, cat.Version))
	}
	return act.DoD, nil
}

func missingItems(checklist, confirmed []string) []string {
	have := make(map[string]bool, len(confirmed))
	for _, c := range confirmed {
		have[c] = true
	}
	missing := []string{}
	for _, item := range checklist {
		if !have[item] {
			missing = append(missing, item)
		}
	}
	return missing
}

// DoDResult reports a checklist confirmation and what is still missing.
type DoDResult struct {
	Confirmation *model.DoDConfirmation `json:"confirmation"`
	Checklist    []string               `json:"checklist"`
	MissingItems []string               `json:"missing_items"`
	Complete     bool                   `json:"complete"`
}

// ConfirmDoD replaces the confirmed checklist items of a plan action.
func (s *Service) ConfirmDoD(ctx context.Context, id, actionKey string, items []string) (*DoDResult, error) {
	a, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.planAction(ctx, id, actionKey); err != nil {
		return nil, err
	}

	checklist, err := s.checklist(ctx, a, actionKey)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(checklist))
	for _, c := range checklist {
		known[c] = true
	}
	var invalid []string
	seen := make(map[string]bool, len(items))
	confirmed := make([]string, 0, len(items))
	for _, it := range items {
		if !known[it] {
			invalid = append(invalid, it)
			continue
		}
		if !seen[it] {
			seen[it] = true
			confirmed = append(confirmed, it)
		}
	}
	if len(invalid) > 0 {
		return nil, apperr.InvalidDoDItem(invalid)
	}

	c := &model.DoDConfirmation{
		AssessmentID:   id,
		ActionKey:      actionKey,
		ConfirmedItems: confirmed,
		UpdatedAt:      s.now().UTC(),
	}
	if err := s.store.UpsertDoD(ctx, c); err != nil {
		return nil, eris.Wrapf(err, "plan: save dod for %s", actionKey)
	}
	missing := missingItems(checklist, confirmed)
	return &DoDResult{
		Confirmation: c,
		Checklist:    checklist,
		MissingItems: missing,
		Complete:     len(missing) == 0,
	}, nil
}

// EvidenceInput is the before/after record of an action.
type EvidenceInput struct {
	EvidenceText   string
	BeforeBaseline string
	AfterResult    string
	DeclaredGain   string
}

// SubmitEvidence writes an action's evidence once. The first writer wins:
// a repeat, whether caught by the pre-check or by the unique constraint,
// returns the stored row with created=false and leaves it untouched.
func (s *Service) SubmitEvidence(ctx context.Context, id, actionKey string, in EvidenceInput) (ev *model.ActionEvidence, created bool, err error) {
	a, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if _, _, err := s.planAction(ctx, id, actionKey); err != nil {
		return nil, false, err
	}
	switch {
	case strings.TrimSpace(in.BeforeBaseline) == "":
		return nil, false, apperr.Validation("before_baseline", "informe a situação antes da ação")
	case strings.TrimSpace(in.AfterResult) == "":
		return nil, false, apperr.Validation("after_result", "informe o resultado depois da ação")
	}

	existing, err := s.store.GetEvidence(ctx, id, actionKey)
	if err == nil {
		s.recordEvidenceRepeat(ctx, a, actionKey, "precheck")
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, eris.Wrap(err, "plan: load evidence")
	}

	ev = &model.ActionEvidence{
		AssessmentID:   id,
		ActionKey:      actionKey,
		EvidenceText:   strings.TrimSpace(in.EvidenceText),
		BeforeBaseline: strings.TrimSpace(in.BeforeBaseline),
		AfterResult:    strings.TrimSpace(in.AfterResult),
		DeclaredGain:   strings.TrimSpace(in.DeclaredGain),
		CreatedAt:      s.now().UTC(),
	}
	err = s.store.InsertEvidence(ctx, ev)
	if errors.Is(err, store.ErrConflict) {
		s.recordEvidenceRepeat(ctx, a, actionKey, "constraint")
		existing, err := s.store.GetEvidence(ctx, id, actionKey)
		if err != nil {
			return nil, false, eris.Wrap(err, "plan: reload evidence")
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "plan: insert evidence for %s", actionKey)
	}
	return ev, true, nil
}

func (s *Service) recordEvidenceRepeat(ctx context.Context, a *model.Assessment, actionKey, path string) {
	s.audit.Record(ctx, model.AuditEvidenceConflict, a.ID, a.CompanyID, map[string]any{
		"action_key": actionKey,
		"detected":   path,
	})
}
