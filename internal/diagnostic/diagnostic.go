// Package diagnostic runs the answer-collection half of an assessment:
// finding or opening a company's active assessment, accepting answers while
// it is a DRAFT, submitting it through scoring, gap detection and the
// six-pack, and classifying gap root causes afterwards.
package diagnostic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
	"github.com/sells-group/raiox/internal/monitoring"
	"github.com/sells-group/raiox/internal/scoring"
	"github.com/sells-group/raiox/internal/snapshot"
	"github.com/sells-group/raiox/internal/store"
)

// Service implements the diagnostic operations.
type Service struct {
	store     store.Store
	catalogs  *catalog.Provider
	snapshots *snapshot.Service
	audit     *monitoring.Auditor
	now       func() time.Time
}

// New creates a diagnostic Service. audit may be nil.
func New(st store.Store, catalogs *catalog.Provider, snapshots *snapshot.Service, audit *monitoring.Auditor) *Service {
	return &Service{
		store:     st,
		catalogs:  catalogs,
		snapshots: snapshots,
		audit:     audit,
		now:       time.Now,
	}
}

// AnswerInput is one answer of a SaveAnswers request.
type AnswerInput struct {
	QuestionKey string
	Value       int
}

// View is the read model of an assessment.
type View struct {
	Assessment      *model.Assessment           `json:"assessment"`
	Completeness    scoring.Completeness        `json:"completeness"`
	Scores          []model.ProcessScore        `json:"scores"`
	RaiosX          model.SixPack               `json:"raios_x"`
	Gaps            []model.GapInstance         `json:"gaps"`
	Classifications []model.CauseClassification `json:"classifications"`
}

// Get loads an assessment, mapping a missing row to NOT_FOUND.
func (s *Service) Get(ctx context.Context, id string) (*model.Assessment, error) {
	a, err := s.store.GetAssessment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("assessment")
	}
	if err != nil {
		return nil, eris.Wrapf(err, "diagnostic: get assessment %s", id)
	}
	return a, nil
}

// GetOrCreate returns the company's most recent assessment, opening a DRAFT
// on first access. A CLOSED assessment is returned as is; a new cycle is
// opened explicitly.
func (s *Service) GetOrCreate(ctx context.Context, companyID string, seg model.Segment) (*model.Assessment, error) {
	if companyID == "" {
		return nil, apperr.Validation("company_id", "empresa obrigatória")
	}
	a, err := s.store.GetLatestAssessment(ctx, companyID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(err, "diagnostic: latest assessment for %s", companyID)
	}

	now := s.now().UTC()
	a = &model.Assessment{
		ID:             uuid.NewString(),
		CompanyID:      companyID,
		Segment:        seg,
		Status:         model.AssessmentDraft,
		CycleNo:        1,
		CatalogVersion: s.catalogs.Current().Version,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.store.CreateAssessment(ctx, a)
	if errors.Is(err, store.ErrConflict) {
		// Another request opened it first.
		a, err = s.store.GetLatestAssessment(ctx, companyID)
		return a, eris.Wrapf(err, "diagnostic: reload assessment for %s", companyID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "diagnostic: create assessment for %s", companyID)
	}
	zap.L().Info("diagnostic: assessment opened",
		zap.String("assessment_id", a.ID),
		zap.String("company_id", companyID),
		zap.String("segment", string(seg)),
	)
	return a, nil
}

// View assembles the assessment with its derived results.
func (s *Service) View(ctx context.Context, id string) (*View, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	answers, err := s.store.ListAnswers(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "diagnostic: view answers")
	}
	scores, err := s.store.ListScores(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "diagnostic: view scores")
	}
	fs, err := s.store.ListFindings(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "diagnostic: view findings")
	}
	gaps, err := s.store.ListGapInstances(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "diagnostic: view gaps")
	}
	classes, err := s.store.ListClassifications(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "diagnostic: view classifications")
	}
	if scores == nil {
		scores = []model.ProcessScore{}
	}
	if gaps == nil {
		gaps = []model.GapInstance{}
	}
	if classes == nil {
		classes = []model.CauseClassification{}
	}
	return &View{
		Assessment:      a,
		Completeness:    scoring.CheckCompleteness(s.catalogs.Current(), a.Segment, answers),
		Scores:          scores,
		RaiosX:          model.SplitFindings(fs),
		Gaps:            gaps,
		Classifications: classes,
	}, nil
}

// SaveAnswers validates and upserts answers for one process. Only a DRAFT
// accepts answers.
func (s *Service) SaveAnswers(ctx context.Context, id, processKey string, in []AnswerInput) (int, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if a.Status != model.AssessmentDraft {
		return 0, apperr.DiagAlreadySubmitted()
	}
	if len(in) == 0 {
		return 0, apperr.Validation("answers", "envie ao menos uma resposta")
	}

	cat := s.catalogs.Current()
	now := s.now().UTC()
	answers := make([]model.Answer, 0, len(in))
	for i, ai := range in {
		if err := scoring.ValidateAnswer(cat, a.Segment, processKey, ai.QuestionKey, ai.Value); err != nil {
			if ae, ok := apperr.As(err); ok {
				return 0, ae.With("index", i)
			}
			return 0, err
		}
		answers = append(answers, model.Answer{
			AssessmentID: id,
			ProcessKey:   processKey,
			QuestionKey:  ai.QuestionKey,
			Value:        ai.Value,
			UpdatedAt:    now,
		})
	}
	if err := s.store.UpsertAnswers(ctx, answers); err != nil {
		return 0, eris.Wrapf(err, "diagnostic: save answers for %s", processKey)
	}
	return len(answers), nil
}
