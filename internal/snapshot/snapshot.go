// Package snapshot maintains the durable per-cycle projection of an
// assessment. The submit step writes scores, six-pack and recommendations;
// the close step fills in the terminal plan and its evidence summary.
// Snapshots are upserted, never deleted.
package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
	"github.com/sells-group/raiox/internal/store"
)

// Service writes and reads diagnostic snapshots.
type Service struct {
	store    store.Store
	catalogs *catalog.Provider
	now      func() time.Time
}

// New creates a snapshot Service.
func New(st store.Store, catalogs *catalog.Provider) *Service {
	return &Service{store: st, catalogs: catalogs, now: time.Now}
}

// RecordSubmit upserts the cycle's snapshot with an empty plan.
func (s *Service) RecordSubmit(ctx context.Context, a *model.Assessment, scores []model.ProcessScore, findings []model.Finding) (*model.DiagnosticSnapshot, error) {
	now := s.now().UTC()
	snap := s.build(a, scores, findings, now)
	if err := s.store.UpsertSnapshot(ctx, snap); err != nil {
		return nil, eris.Wrap(err, "snapshot: record submit")
	}
	zap.L().Debug("snapshot: recorded submit",
		zap.String("assessment_id", a.ID),
		zap.String("full_version", snap.FullVersion),
	)
	return snap, nil
}

// RecordClose writes the terminal plan and evidence summary into the
// cycle's snapshot. When the cycle was opened by new-cycle and never
// re-submitted, the snapshot row is created from the persisted scores and
// findings first.
func (s *Service) RecordClose(ctx context.Context, a *model.Assessment, plan []model.SelectedAction, evidence []model.ActionEvidence) (*model.DiagnosticSnapshot, error) {
	now := s.now().UTC()
	fullVersion := model.SnapshotFullVersion(a.CatalogVersion, a.CycleNo)

	snap, err := s.store.GetSnapshot(ctx, a.ID, fullVersion)
	if errors.Is(err, store.ErrNotFound) {
		scores, err := s.store.ListScores(ctx, a.ID)
		if err != nil {
			return nil, eris.Wrap(err, "snapshot: load scores")
		}
		findings, err := s.store.ListFindings(ctx, a.ID)
		if err != nil {
			return nil, eris.Wrap(err, "snapshot: load findings")
		}
		snap = s.build(a, scores, findings, now)
	} else if err != nil {
		return nil, eris.Wrap(err, "snapshot: load")
	}

	snap.Plan = plan
	snap.EvidenceSummary = Summarize(plan, evidence)
	snap.UpdatedAt = now
	if err := s.store.UpsertSnapshot(ctx, snap); err != nil {
		return nil, eris.Wrap(err, "snapshot: record close")
	}
	zap.L().Debug("snapshot: recorded close",
		zap.String("assessment_id", a.ID),
		zap.String("full_version", fullVersion),
		zap.Int("done", snap.EvidenceSummary.Done),
		zap.Int("dropped", snap.EvidenceSummary.Dropped),
	)
	return snap, nil
}

// List returns every snapshot of an assessment, oldest cycle first.
func (s *Service) List(ctx context.Context, assessmentID string) ([]model.DiagnosticSnapshot, error) {
	snaps, err := s.store.ListSnapshots(ctx, assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: list")
	}
	if snaps == nil {
		snaps = []model.DiagnosticSnapshot{}
	}
	return snaps, nil
}

func (s *Service) build(a *model.Assessment, scores []model.ProcessScore, findings []model.Finding, now time.Time) *model.DiagnosticSnapshot {
	return &model.DiagnosticSnapshot{
		AssessmentID:    a.ID,
		FullVersion:     model.SnapshotFullVersion(a.CatalogVersion, a.CycleNo),
		CycleNo:         a.CycleNo,
		CatalogVersion:  a.CatalogVersion,
		Processes:       scores,
		RaiosX:          model.SplitFindings(findings),
		Recommendations: recommendations(s.catalogs.Current(), scores),
		Plan:            []model.SelectedAction{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func recommendations(cat *catalog.Catalog, scores []model.ProcessScore) []model.ProcessRecommendations {
	out := make([]model.ProcessRecommendations, 0, len(scores))
	for _, sc := range scores {
		items := cat.Recommendations(sc.ProcessKey, sc.Band)
		if items == nil {
			items = []string{}
		}
		out = append(out, model.ProcessRecommendations{
			ProcessKey: sc.ProcessKey,
			Band:       sc.Band,
			Items:      items,
		})
	}
	return out
}

// Summarize condenses a terminal plan. Evidence rows of actions outside the
// plan are ignored.
func Summarize(plan []model.SelectedAction, evidence []model.ActionEvidence) *model.EvidenceSummary {
	inPlan := make(map[string]model.SelectedAction, len(plan))
	for _, a := range plan {
		inPlan[a.ActionKey] = a
	}

	sum := &model.EvidenceSummary{
		Total:         len(plan),
		DeclaredGains: []model.DeclaredGain{},
		Evidence:      []model.ActionEvidence{},
	}
	for _, a := range plan {
		switch a.Status {
		case model.ActionDone:
			sum.Done++
		case model.ActionDropped:
			sum.Dropped++
		}
	}
	for _, ev := range evidence {
		a, ok := inPlan[ev.ActionKey]
		if !ok {
			continue
		}
		sum.Evidence = append(sum.Evidence, ev)
		if a.Status == model.ActionDone && ev.DeclaredGain != "" {
			sum.DeclaredGains = append(sum.DeclaredGains, model.DeclaredGain{
				ActionKey:    ev.ActionKey,
				DeclaredGain: ev.DeclaredGain,
			})
		}
	}
	return sum
}
