// Package plan governs the execution half of an assessment cycle: which
// actions may be selected, the selection contract, the per-action status
// machine with its checklist and write-once evidence gates, closing a cycle
// and opening the next one.
package plan

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/config"
	"github.com/sells-group/raiox/internal/model"
	"github.com/sells-group/raiox/internal/monitoring"
	"github.com/sells-group/raiox/internal/snapshot"
	"github.com/sells-group/raiox/internal/store"
)

// MaxSelection is the largest plan a cycle can hold.
const MaxSelection = 3

// DefaultDropReasonMinLength applies when the config leaves it unset.
const DefaultDropReasonMinLength = 20

// Service implements the plan lifecycle.
type Service struct {
	store         store.Store
	catalogs      *catalog.Provider
	snapshots     *snapshot.Service
	audit         *monitoring.Auditor
	dropReasonMin int
	now           func() time.Time
}

// New creates a plan Service. audit may be nil.
func New(st store.Store, catalogs *catalog.Provider, snapshots *snapshot.Service, audit *monitoring.Auditor, cfg config.PlanConfig) *Service {
	minLen := cfg.DropReasonMinLength
	if minLen <= 0 {
		minLen = DefaultDropReasonMinLength
	}
	return &Service{
		store:         st,
		catalogs:      catalogs,
		snapshots:     snapshots,
		audit:         audit,
		dropReasonMin: minLen,
		now:           time.Now,
	}
}

func (s *Service) load(ctx context.Context, id string) (*model.Assessment, error) {
	a, err := s.store.GetAssessment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("assessment")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "plan: get assessment %s", id)
	}
	return a, nil
}

// loadReadable requires a submitted assessment, open or closed.
func (s *Service) loadReadable(ctx context.Context, id string) (*model.Assessment, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == model.AssessmentDraft {
		return nil, apperr.DiagNotReady()
	}
	return a, nil
}

// loadMutable requires an open SUBMITTED cycle.
func (s *Service) loadMutable(ctx context.Context, id string) (*model.Assessment, error) {
	a, err := s.loadReadable(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == model.AssessmentClosed {
		return nil, apperr.CycleClosed()
	}
	return a, nil
}

// planAction returns the current plan and the entry for actionKey.
func (s *Service) planAction(ctx context.Context, id, actionKey string) ([]model.SelectedAction, *model.SelectedAction, error) {
	current, err := s.store.ListPlan(ctx, id)
	if err != nil {
		return nil, nil, eris.Wrap(err, "plan: list plan")
	}
	for i := range current {
		if current[i].ActionKey == actionKey {
			return current, &current[i], nil
		}
	}
	return current, nil, apperr.ActionNotInPlan(actionKey)
}

// History returns every archived action of past cycles.
func (s *Service) History(ctx context.Context, id string) ([]model.CycleHistoryEntry, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	h, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "plan: list history")
	}
	if h == nil {
		h = []model.CycleHistoryEntry{}
	}
	return h, nil
}

// Current returns the plan of the open cycle.
func (s *Service) Current(ctx context.Context, id string) ([]model.SelectedAction, error) {
	if _, err := s.loadReadable(ctx, id); err != nil {
		return nil, err
	}
	p, err := s.store.ListPlan(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "plan: list plan")
	}
	if p == nil {
		p = []model.SelectedAction{}
	}
	return p, nil
}
