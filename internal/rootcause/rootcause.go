// Package rootcause detects systemic gaps behind LOW-band processes and
// classifies their root cause from a Likert-5 questionnaire.
package rootcause

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
)

// SecondaryMinimum is the mean agreement a runner-up cause needs to be
// reported as secondary.
const SecondaryMinimum = 4.0

// processGaps maps LOW-band processes to their gap. OPERACAO has no gap.
var processGaps = map[string]string{
	"ADM_FIN":   "GAP_CAIXA_PREVISAO",
	"COMERCIAL": "GAP_VENDAS_FUNIL",
	"GESTAO":    "GAP_ROTINA_GERENCIAL",
}

// GapFor returns the gap mapped to a process.
func GapFor(processKey string) (string, bool) {
	g, ok := processGaps[processKey]
	return g, ok
}

// CheckCatalog verifies that every mapped gap exists in the catalog and
// belongs to the mapped process.
func CheckCatalog(cat *catalog.Catalog) error {
	keys := make([]string, 0, len(processGaps))
	for k := range processGaps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, proc := range keys {
		gapID := processGaps[proc]
		g, ok := cat.Gap(gapID)
		if !ok {
			return apperr.CatalogInvalid(eris.Errorf("rootcause: gap %s for %s missing from catalog", gapID, proc))
		}
		if g.ProcessKey != proc {
			return apperr.CatalogInvalid(eris.Errorf("rootcause: gap %s belongs to %s, expected %s", gapID, g.ProcessKey, proc))
		}
	}
	return nil
}

// DetectGaps returns a CAUSE_PENDING gap instance for every LOW-band process
// with a mapped gap, in score order, stamped with now.
func DetectGaps(assessmentID string, scores []model.ProcessScore, now time.Time) []model.GapInstance {
	var out []model.GapInstance
	for _, s := range scores {
		if s.Band != model.BandLow {
			continue
		}
		gapID, ok := GapFor(s.ProcessKey)
		if !ok {
			continue
		}
		out = append(out, model.GapInstance{
			AssessmentID: assessmentID,
			GapID:        gapID,
			ProcessKey:   s.ProcessKey,
			Status:       model.GapCausePending,
			CreatedAt:    now,
		})
	}
	return out
}

// MissingQuestions lists the gap questions without an answer, in catalog
// order.
func MissingQuestions(gap *catalog.Gap, answers map[string]model.Likert) []string {
	missing := []string{}
	for _, q := range gap.Questions {
		if v, ok := answers[q.ID]; !ok || !v.Valid() {
			missing = append(missing, q.ID)
		}
	}
	return missing
}

// Classify scores a complete questionnaire. It never classifies partially:
// any unanswered question yields DIAG_INCOMPLETE with the missing ids.
func Classify(cat *catalog.Catalog, assessmentID, gapID string, answers map[string]model.Likert, now time.Time) (*model.CauseClassification, error) {
	gap, ok := cat.Gap(gapID)
	if !ok {
		return nil, apperr.GapNotPending(gapID)
	}
	if missing := MissingQuestions(gap, answers); len(missing) > 0 {
		return nil, apperr.DiagIncomplete(map[string]any{
			"gap_id":  gapID,
			"missing": missing,
		})
	}

	primary, secondary, err := scoreCause(gap, answers)
	if err != nil {
		return nil, err
	}
	return &model.CauseClassification{
		AssessmentID:   assessmentID,
		GapID:          gapID,
		CausePrimary:   primary,
		CauseSecondary: secondary,
		Evidence:       evidence(gap, answers, primary, secondary),
		ClassifiedAt:   now.UTC(),
	}, nil
}

type causeMean struct {
	cause string
	mean  float64
	order int
}

// scoreCause ranks the gap's causes by mean agreement. Ties keep catalog
// order.
func scoreCause(gap *catalog.Gap, answers map[string]model.Likert) (string, string, error) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, q := range gap.Questions {
		sums[q.Cause] += float64(answers[q.ID])
		counts[q.Cause]++
	}

	var means []causeMean
	for i, gc := range gap.Causes {
		if counts[gc.Cause] == 0 {
			continue
		}
		means = append(means, causeMean{
			cause: gc.Cause,
			mean:  sums[gc.Cause] / float64(counts[gc.Cause]),
			order: i,
		})
	}
	if len(means) == 0 {
		return "", "", apperr.CatalogInvalid(eris.Errorf("rootcause: gap %s has no questions bound to a cause", gap.ID))
	}

	sort.SliceStable(means, func(i, j int) bool {
		if means[i].mean != means[j].mean {
			return means[i].mean > means[j].mean
		}
		return means[i].order < means[j].order
	})

	primary := means[0].cause
	secondary := ""
	if len(means) > 1 && means[1].mean >= SecondaryMinimum {
		secondary = means[1].cause
	}
	return primary, secondary, nil
}

func evidence(gap *catalog.Gap, answers map[string]model.Likert, primary, secondary string) []model.CauseEvidence {
	var out []model.CauseEvidence
	for _, q := range gap.Questions {
		if q.Cause != primary && (secondary == "" || q.Cause != secondary) {
			continue
		}
		out = append(out, model.CauseEvidence{
			QuestionID: q.ID,
			Answer:     answers[q.ID].String(),
			Label:      q.Label,
			Cause:      q.Cause,
		})
	}
	return out
}
