package diagnostic

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
	"github.com/sells-group/raiox/internal/rootcause"
)

// PendingGap is a gap whose cause questionnaire is still open.
type PendingGap struct {
	GapID       string                  `json:"gap_id"`
	ProcessKey  string                  `json:"process_key"`
	Title       string                  `json:"title"`
	Questions   []catalog.CauseQuestion `json:"questions"`
	AnsweredIDs []string                `json:"answered_ids"`
	Answers     map[string]string       `json:"answers"`
}

// PendingCauses lists the CAUSE_PENDING gaps with their questionnaires and
// the answers given so far.
func (s *Service) PendingCauses(ctx context.Context, id string) ([]PendingGap, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == model.AssessmentDraft {
		return nil, apperr.DiagNotReady()
	}
	gaps, err := s.store.ListGapInstances(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "cause: list gaps")
	}

	cat := s.catalogs.Current()
	out := []PendingGap{}
	for _, gi := range gaps {
		if gi.Status != model.GapCausePending {
			continue
		}
		g, ok := cat.Gap(gi.GapID)
		if !ok {
			continue
		}
		stored, err := s.store.ListCauseAnswers(ctx, id, gi.GapID)
		if err != nil {
			return nil, eris.Wrapf(err, "cause: list answers for %s", gi.GapID)
		}
		pg := PendingGap{
			GapID:       gi.GapID,
			ProcessKey:  gi.ProcessKey,
			Title:       g.Title,
			Questions:   g.Questions,
			AnsweredIDs: make([]string, 0, len(stored)),
			Answers:     make(map[string]string, len(stored)),
		}
		for _, ca := range stored {
			pg.AnsweredIDs = append(pg.AnsweredIDs, ca.QuestionID)
			pg.Answers[ca.QuestionID] = ca.Answer.String()
		}
		out = append(out, pg)
	}
	return out, nil
}

// AnswerCause stores Likert answers for a pending or classified gap and
// (re)classifies it once the questionnaire is complete. Partial answers are kept and reported as
// DIAG_INCOMPLETE with the missing question ids. A successful classification
// marks the gap CAUSE_CLASSIFIED and refreshes the six-pack.
func (s *Service) AnswerCause(ctx context.Context, id, gapID string, raw map[string]string) (*model.CauseClassification, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case model.AssessmentDraft:
		return nil, apperr.DiagNotReady()
	case model.AssessmentClosed:
		return nil, apperr.CycleClosed()
	}

	gi, err := s.openGap(ctx, id, gapID)
	if err != nil {
		return nil, err
	}
	cat := s.catalogs.Current()
	g, ok := cat.Gap(gapID)
	if !ok {
		return nil, apperr.GapNotPending(gapID)
	}

	parsed, err := parseCauseAnswers(g, raw)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if len(parsed) > 0 {
		rows := make([]model.CauseAnswer, 0, len(parsed))
		for _, q := range g.Questions {
			if v, ok := parsed[q.ID]; ok {
				rows = append(rows, model.CauseAnswer{AssessmentID: id, GapID: gapID, QuestionID: q.ID, Answer: v, UpdatedAt: now})
			}
		}
		if err := s.store.UpsertCauseAnswers(ctx, rows); err != nil {
			return nil, eris.Wrap(err, "cause: save answers")
		}
	}

	stored, err := s.store.ListCauseAnswers(ctx, id, gapID)
	if err != nil {
		return nil, eris.Wrap(err, "cause: load answers")
	}
	all := make(map[string]model.Likert, len(stored))
	for _, ca := range stored {
		all[ca.QuestionID] = ca.Answer
	}

	cl, err := rootcause.Classify(cat, id, gapID, all, now)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveClassification(ctx, cl); err != nil {
		return nil, eris.Wrap(err, "cause: save classification")
	}

	if err := s.refreshFindings(ctx, cat, a); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, model.AuditCauseClassified, a.ID, a.CompanyID, map[string]any{
		"gap_id":          gapID,
		"process_key":     gi.ProcessKey,
		"cause_primary":   cl.CausePrimary,
		"cause_secondary": cl.CauseSecondary,
	})
	zap.L().Info("diagnostic: cause classified",
		zap.String("assessment_id", a.ID),
		zap.String("gap_id", gapID),
		zap.String("cause_primary", cl.CausePrimary),
	)
	return cl, nil
}

// openGap returns the gap instance a cause answer applies to. Classified
// gaps stay open so the classification can be re-evaluated.
func (s *Service) openGap(ctx context.Context, id, gapID string) (*model.GapInstance, error) {
	gaps, err := s.store.ListGapInstances(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "cause: list gaps")
	}
	for i := range gaps {
		if gaps[i].GapID != gapID {
			continue
		}
		switch gaps[i].Status {
		case model.GapCausePending, model.GapCauseClassified:
			return &gaps[i], nil
		}
	}
	return nil, apperr.GapNotPending(gapID)
}

func parseCauseAnswers(g *catalog.Gap, raw map[string]string) (map[string]model.Likert, error) {
	known := make(map[string]bool, len(g.Questions))
	for _, q := range g.Questions {
		known[q.ID] = true
	}
	out := make(map[string]model.Likert, len(raw))
	for qid, v := range raw {
		if !known[qid] {
			return nil, apperr.Validation("question_id", "pergunta desconhecida "+qid)
		}
		l, ok := rootcause.ParseLikert(v)
		if !ok {
			return nil, apperr.Validation("answer", "resposta inválida para "+qid)
		}
		out[qid] = l
	}
	return out, nil
}

func (s *Service) refreshFindings(ctx context.Context, cat *catalog.Catalog, a *model.Assessment) error {
	scores, err := s.store.ListScores(ctx, a.ID)
	if err != nil {
		return eris.Wrap(err, "findings: load scores")
	}
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return eris.Wrap(err, "findings: load answers")
	}
	gaps, err := s.store.ListGapInstances(ctx, a.ID)
	if err != nil {
		return eris.Wrap(err, "findings: load gaps")
	}
	_, err = s.regenerateFindings(ctx, cat, a, scores, answers, gaps)
	return err
}
