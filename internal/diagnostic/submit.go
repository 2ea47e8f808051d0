package diagnostic

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/findings"
	"github.com/sells-group/raiox/internal/model"
	"github.com/sells-group/raiox/internal/rootcause"
	"github.com/sells-group/raiox/internal/scoring"
)

// SubmitResult is returned by a successful submit.
type SubmitResult struct {
	Assessment *model.Assessment    `json:"assessment"`
	Scores     []model.ProcessScore `json:"scores"`
	Gaps       []model.GapInstance  `json:"gaps"`
}

// Submit freezes a DRAFT: it checks completeness, scores every process,
// syncs gap instances, regenerates the six-pack, records the cycle snapshot
// and finally flips the status to SUBMITTED. Every step before the status
// change is an idempotent overwrite, so a failed submit can be retried.
func (s *Service) Submit(ctx context.Context, id string) (*SubmitResult, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := a.Status.Next(model.EventSubmit); !ok {
		return nil, apperr.DiagAlreadySubmitted()
	}
	log := zap.L().With(zap.String("assessment_id", a.ID), zap.String("company_id", a.CompanyID))

	cat := s.catalogs.Current()
	if err := checkCatalog(cat, a.Segment); err != nil {
		s.reportCatalogInvalid(ctx, a, err)
		return nil, err
	}

	answers, err := s.store.ListAnswers(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "submit: load answers")
	}
	if c := scoring.CheckCompleteness(cat, a.Segment, answers); !c.Complete() {
		return nil, apperr.DiagIncomplete(c.Details())
	}

	scores, err := scoring.Score(cat, a.ID, a.Segment, answers)
	if err != nil {
		s.reportCatalogInvalid(ctx, a, err)
		return nil, err
	}
	if err := s.store.ReplaceScores(ctx, a.ID, scores); err != nil {
		return nil, eris.Wrap(err, "submit: persist scores")
	}

	if err := s.store.SyncGapInstances(ctx, a.ID, rootcause.DetectGaps(a.ID, scores, s.now().UTC())); err != nil {
		return nil, eris.Wrap(err, "submit: sync gap instances")
	}
	gaps, err := s.store.ListGapInstances(ctx, a.ID)
	if err != nil {
		return nil, eris.Wrap(err, "submit: load gap instances")
	}

	fs, err := s.regenerateFindings(ctx, cat, a, scores, answers, gaps)
	if err != nil {
		return nil, err
	}

	a.CatalogVersion = cat.Version
	if _, err := s.snapshots.RecordSubmit(ctx, a, scores, fs); err != nil {
		return nil, eris.Wrap(err, "submit: record snapshot")
	}

	now := s.now().UTC()
	a.Status = model.AssessmentSubmitted
	a.SubmittedAt = &now
	a.UpdatedAt = now
	if err := s.store.UpdateAssessment(ctx, a); err != nil {
		return nil, eris.Wrap(err, "submit: update status")
	}

	log.Info("diagnostic: submitted",
		zap.Int("processes", len(scores)),
		zap.Int("gaps", len(gaps)),
		zap.Int("findings", len(fs)),
	)
	if gaps == nil {
		gaps = []model.GapInstance{}
	}
	return &SubmitResult{Assessment: a, Scores: scores, Gaps: gaps}, nil
}

func checkCatalog(cat *catalog.Catalog, seg model.Segment) error {
	if err := scoring.CheckCatalog(cat, seg); err != nil {
		return err
	}
	return rootcause.CheckCatalog(cat)
}

// regenerateFindings rebuilds the six-pack from the current scores, gaps and
// classifications and replaces the stored findings.
func (s *Service) regenerateFindings(ctx context.Context, cat *catalog.Catalog, a *model.Assessment, scores []model.ProcessScore, answers []model.Answer, gaps []model.GapInstance) ([]model.Finding, error) {
	classes, err := s.store.ListClassifications(ctx, a.ID)
	if err != nil {
		return nil, eris.Wrap(err, "findings: load classifications")
	}
	fs, err := findings.Generate(cat, findings.Input{
		AssessmentID:    a.ID,
		Segment:         a.Segment,
		Scores:          scores,
		Answers:         answers,
		Gaps:            gaps,
		Classifications: classes,
	})
	if err != nil {
		if apperr.Is(err, apperr.CodeCatalogInvalid) {
			s.reportCatalogInvalid(ctx, a, err)
		}
		return nil, err
	}
	if err := s.store.ReplaceFindings(ctx, a.ID, fs); err != nil {
		return nil, eris.Wrap(err, "findings: persist")
	}
	return fs, nil
}

func (s *Service) reportCatalogInvalid(ctx context.Context, a *model.Assessment, err error) {
	detail := map[string]any{
		"catalog_version": s.catalogs.Current().Version,
		"error":           err.Error(),
	}
	if ae, ok := apperr.As(err); ok {
		if keys, ok := ae.Details["process_keys"]; ok {
			detail["process_keys"] = keys
		}
	}
	s.audit.Record(ctx, model.AuditCatalogInvalid, a.ID, a.CompanyID, detail)
}
