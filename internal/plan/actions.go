package plan

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/actionfit"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
)

// ActionsView is the selection screen of a cycle.
type ActionsView struct {
	Suggestions                 []actionfit.Suggestion `json:"suggestions"`
	ContentGaps                 []actionfit.ContentGap `json:"content_gaps"`
	RequiredCount               int                    `json:"required_count"`
	RemainingCount              int                    `json:"remaining_count"`
	IsLastBlock                 bool                   `json:"is_last_block"`
	MechanismRequiredActionKeys []string               `json:"mechanism_required_action_keys"`
	Plan                        []model.SelectedAction `json:"plan"`
}

// mechanismRule demands that a plan includes one of Keys because the gap's
// root cause was classified.
type mechanismRule struct {
	GapID string
	Cause string
	Keys  []string
}

// eligibility is the selectable pool of the open cycle. Archived actions are
// never eligible. Keys in planned are left out of the pool as well, and a
// mechanism rule already covered by one of them is dropped.
type eligibility struct {
	result   actionfit.Result
	pool     map[string]bool
	rules    []mechanismRule
	required int
}

func (e *eligibility) remaining() int {
	return len(e.pool)
}

func (e *eligibility) mechanismKeys() []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range e.rules {
		for _, k := range r.Keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

func (s *Service) eligibility(ctx context.Context, cat *catalog.Catalog, a *model.Assessment, planned map[string]bool) (*eligibility, error) {
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return nil, eris.Wrap(err, "actions: load answers")
	}
	scores, err := s.store.ListScores(ctx, a.ID)
	if err != nil {
		return nil, eris.Wrap(err, "actions: load scores")
	}
	history, err := s.store.ListHistory(ctx, a.ID)
	if err != nil {
		return nil, eris.Wrap(err, "actions: load history")
	}
	gaps, err := s.store.ListGapInstances(ctx, a.ID)
	if err != nil {
		return nil, eris.Wrap(err, "actions: load gaps")
	}
	classes, err := s.store.ListClassifications(ctx, a.ID)
	if err != nil {
		return nil, eris.Wrap(err, "actions: load classifications")
	}

	archived := make(map[string]bool, len(history))
	for _, h := range history {
		archived[h.ActionKey] = true
	}
	exclude := make(map[string]bool, len(archived)+len(planned))
	for k := range archived {
		exclude[k] = true
	}
	for k := range planned {
		exclude[k] = true
	}

	e := &eligibility{
		result: actionfit.Match(cat, answers, scores, exclude),
		pool:   make(map[string]bool),
	}

	classByGap := make(map[string]model.CauseClassification, len(classes))
	for _, cl := range classes {
		classByGap[cl.GapID] = cl
	}
	for _, gi := range gaps {
		cl, ok := classByGap[gi.GapID]
		if gi.Status != model.GapCauseClassified || !ok {
			continue
		}
		var keys []string
		covered := false
		for _, k := range cat.MechanismActionKeys(gi.GapID, cl.CausePrimary) {
			if _, ok := cat.Action(k); !ok || archived[k] {
				continue
			}
			if planned[k] {
				covered = true
				break
			}
			keys = append(keys, k)
		}
		if !covered && len(keys) > 0 {
			e.rules = append(e.rules, mechanismRule{GapID: gi.GapID, Cause: cl.CausePrimary, Keys: keys})
		}
	}

	mechanism := make(map[string]bool)
	for _, k := range e.mechanismKeys() {
		mechanism[k] = true
	}
	scoreIdx := model.ScoreIndex(scores)
	for i := range e.result.Suggestions {
		sg := &e.result.Suggestions[i]
		sg.IsMechanism = mechanism[sg.ActionKey]
		e.pool[sg.ActionKey] = true
	}
	// Mechanism actions stay selectable even when their own signals are
	// below the match threshold.
	for _, k := range e.mechanismKeys() {
		if e.pool[k] {
			continue
		}
		act, _ := cat.Action(k)
		e.result.Suggestions = append(e.result.Suggestions, actionfit.Suggestion{
			ActionKey:      act.Key,
			ProcessKey:     act.ProcessKey,
			Title:          act.Title,
			Description:    act.Description,
			MatchedSignals: []string{},
			Evidence:       []model.TraceItem{},
			DoD:            append([]string(nil), act.DoD...),
			Dependencies:   append([]string(nil), act.Dependencies...),
			ProcessScore:   scoreIdx[act.ProcessKey].ScoreNumeric,
			IsMechanism:    true,
		})
		e.pool[k] = true
	}

	e.required = min(MaxSelection, e.remaining())
	if len(e.rules) > e.required {
		e.rules = e.rules[:e.required]
	}
	return e, nil
}

// Actions lists the selectable suggestions of the open cycle along with the
// selection contract. Actions already in the plan count as taken: they are
// neither suggested nor part of remaining_count.
func (s *Service) Actions(ctx context.Context, id string) (*ActionsView, error) {
	a, err := s.loadReadable(ctx, id)
	if err != nil {
		return nil, err
	}
	current, err := s.store.ListPlan(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "actions: load plan")
	}
	if current == nil {
		current = []model.SelectedAction{}
	}
	inPlan := make(map[string]bool, len(current))
	for _, sa := range current {
		inPlan[sa.ActionKey] = true
	}
	e, err := s.eligibility(ctx, s.catalogs.Current(), a, inPlan)
	if err != nil {
		return nil, err
	}

	view := &ActionsView{
		Suggestions:                 e.result.Suggestions,
		ContentGaps:                 e.result.ContentGaps,
		RequiredCount:               e.required,
		RemainingCount:              e.remaining(),
		IsLastBlock:                 e.remaining() <= MaxSelection,
		MechanismRequiredActionKeys: e.mechanismKeys(),
		Plan:                        current,
	}
	s.recordContentGaps(ctx, a, e.result.ContentGaps)
	return view, nil
}

// recordContentGaps audits processes with failing answers that no catalog
// action covers. Healthy processes without failure signals are not gaps.
func (s *Service) recordContentGaps(ctx context.Context, a *model.Assessment, gaps []actionfit.ContentGap) {
	for _, g := range gaps {
		if g.Reason == actionfit.ReasonNoFailureSignals {
			continue
		}
		zap.L().Warn("actions: content gap",
			zap.String("assessment_id", a.ID),
			zap.String("process_key", g.ProcessKey),
			zap.String("reason", g.Reason),
		)
		s.audit.Record(ctx, model.AuditContentGap, a.ID, a.CompanyID, map[string]any{
			"process_key":  g.ProcessKey,
			"reason":       g.Reason,
			"signals_true": g.SignalsTrue,
		})
	}
}
