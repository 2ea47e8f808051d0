package plan

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/model"
)

// CheckpointLayout is the accepted checkpoint_date format.
const CheckpointLayout = "2006-01-02"

// SelectionItem is one action of a plan selection request.
type SelectionItem struct {
	ActionKey      string
	Position       int
	OwnerName      string
	MetricText     string
	CheckpointDate string
}

// Select validates a plan selection against the selection contract and
// replaces the current plan with it.
func (s *Service) Select(ctx context.Context, id string, items []SelectionItem) ([]model.SelectedAction, error) {
	a, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	// The selection replaces the current plan, so its keys may be picked
	// again.
	e, err := s.eligibility(ctx, s.catalogs.Current(), a, nil)
	if err != nil {
		return nil, err
	}
	if err := validateSelection(e, items); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	out := make([]model.SelectedAction, len(items))
	for i, it := range items {
		out[i] = model.SelectedAction{
			AssessmentID:   id,
			ActionKey:      it.ActionKey,
			Position:       it.Position,
			OwnerName:      strings.TrimSpace(it.OwnerName),
			MetricText:     strings.TrimSpace(it.MetricText),
			CheckpointDate: it.CheckpointDate,
			Status:         model.ActionNotStarted,
			UpdatedAt:      now,
		}
	}
	if err := s.store.ReplacePlan(ctx, id, out); err != nil {
		return nil, eris.Wrap(err, "plan: replace")
	}
	zap.L().Info("plan: selected",
		zap.String("assessment_id", id),
		zap.Int("cycle_no", a.CycleNo),
		zap.Int("actions", len(out)),
	)
	return sortByPosition(out), nil
}

func validateSelection(e *eligibility, items []SelectionItem) error {
	if len(items) != e.required {
		return apperr.InvalidSelectionCount(e.required, len(items))
	}

	keys := make(map[string]bool, len(items))
	positions := make(map[int]bool, len(items))
	var notEligible []string
	for _, it := range items {
		switch {
		case strings.TrimSpace(it.ActionKey) == "":
			return apperr.Validation("action_key", "ação obrigatória")
		case strings.TrimSpace(it.OwnerName) == "":
			return apperr.Validation("owner_name", "responsável obrigatório").With("action_key", it.ActionKey)
		case strings.TrimSpace(it.MetricText) == "":
			return apperr.Validation("metric_text", "métrica obrigatória").With("action_key", it.ActionKey)
		}
		if _, err := time.Parse(CheckpointLayout, it.CheckpointDate); err != nil {
			return apperr.Validation("checkpoint_date", "data de checkpoint inválida (AAAA-MM-DD)").With("action_key", it.ActionKey)
		}
		if keys[it.ActionKey] {
			return apperr.DuplicateAction(it.ActionKey)
		}
		keys[it.ActionKey] = true
		if it.Position < 1 || it.Position > e.required {
			return apperr.InvalidPosition(it.Position, e.required)
		}
		if positions[it.Position] {
			return apperr.DuplicatePosition(it.Position)
		}
		positions[it.Position] = true
		if !e.pool[it.ActionKey] {
			notEligible = append(notEligible, it.ActionKey)
		}
	}
	if len(notEligible) > 0 {
		return apperr.ActionNotEligible(notEligible)
	}

	for _, r := range e.rules {
		covered := false
		for _, k := range r.Keys {
			if keys[k] {
				covered = true
				break
			}
		}
		if !covered {
			return apperr.MechanismActionRequired(r.Keys).With("gap_id", r.GapID).With("cause", r.Cause)
		}
	}
	return nil
}

func sortByPosition(actions []model.SelectedAction) []model.SelectedAction {
	out := make([]model.SelectedAction, len(actions))
	for _, a := range actions {
		if a.Position >= 1 && a.Position <= len(out) {
			out[a.Position-1] = a
		}
	}
	return out
}
