// Package scoring turns raw 0-10 answers into per-process scores and
// maturity bands using the dimension-floor rule.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
)

// Band thresholds.
const (
	lowBelow      = 4.0
	mediumBelow   = 7.0
	floorMinimum  = 5.0
	strongMinimum = 8.0
	strongExist   = 7.0
	strongOverall = 7.0
)

// ScoreToBand maps an overall score to a band: <4 LOW, <7 MEDIUM, else HIGH.
func ScoreToBand(score float64) model.Band {
	switch {
	case score < lowBelow:
		return model.BandLow
	case score < mediumBelow:
		return model.BandMedium
	default:
		return model.BandHigh
	}
}

// DeriveBand applies the banding rules in order and returns the band plus the
// name of the rule that decided it.
func DeriveBand(score float64, dims map[model.Dimension]*float64) (model.Band, model.BandRule) {
	rotina, dono, controle := dims[model.DimRotina], dims[model.DimDono], dims[model.DimControle]

	if weak(rotina) || weak(dono) || weak(controle) {
		if fb := ScoreToBand(score); fb != model.BandLow {
			return fb, model.RuleFallbackScore
		}
		return model.BandLow, model.RuleMissingOrWeakMinimum
	}

	existencia := dims[model.DimExistencia]
	if *rotina >= strongMinimum && *dono >= strongMinimum && *controle >= strongMinimum &&
		existencia != nil && *existencia >= strongExist && score >= strongOverall {
		return model.BandHigh, model.RuleAllMinimumStrong
	}

	return model.BandMedium, model.RuleIntermediate
}

func weak(v *float64) bool {
	return v == nil || *v < floorMinimum
}

// ScoreProcess scores one process. Answers to keys that are not in questions
// are ignored. The second return is false when no answer matched.
func ScoreProcess(assessmentID, processKey string, questions []catalog.Question, answers []model.Answer) (model.ProcessScore, bool) {
	dimOf := make(map[string]model.Dimension, len(questions))
	for _, q := range questions {
		dimOf[q.Key] = q.Dimension
	}

	var sum float64
	var n int
	dimSum := make(map[model.Dimension]float64)
	dimN := make(map[model.Dimension]int)
	for _, a := range answers {
		d, ok := dimOf[a.QuestionKey]
		if !ok {
			continue
		}
		sum += float64(a.Value)
		n++
		dimSum[d] += float64(a.Value)
		dimN[d]++
	}
	if n == 0 {
		return model.ProcessScore{}, false
	}

	dims := make(map[model.Dimension]*float64, 4)
	for _, d := range model.Dimensions() {
		if dimN[d] == 0 {
			dims[d] = nil
			continue
		}
		v := round2(dimSum[d] / float64(dimN[d]))
		dims[d] = &v
	}

	score := round2(sum / float64(n))
	band, rule := DeriveBand(score, dims)
	return model.ProcessScore{
		AssessmentID:    assessmentID,
		ProcessKey:      processKey,
		ScoreNumeric:    score,
		Band:            band,
		DimensionScores: dims,
		RuleUsed:        rule,
		AnswerCount:     n,
	}, true
}

// CheckCatalog returns CATALOG_INVALID when any process has no question for
// the segment. Scoring never degrades per process on a broken catalog.
func CheckCatalog(cat *catalog.Catalog, seg model.Segment) error {
	var empty []string
	for _, p := range cat.Processes {
		if len(cat.QuestionsFor(p.Key, seg)) == 0 {
			empty = append(empty, p.Key)
		}
	}
	if len(cat.Processes) == 0 {
		return apperr.CatalogInvalid(eris.New("scoring: catalog has no processes"))
	}
	if len(empty) > 0 {
		return apperr.CatalogInvalid(
			eris.Errorf("scoring: processes without questions for segment %s: %s", seg, strings.Join(empty, ", ")),
		).With("process_keys", empty)
	}
	return nil
}

// Score scores every catalog process that has at least one answer, in
// catalog order.
func Score(cat *catalog.Catalog, assessmentID string, seg model.Segment, answers []model.Answer) ([]model.ProcessScore, error) {
	if err := CheckCatalog(cat, seg); err != nil {
		return nil, err
	}
	byProcess := model.GroupAnswers(answers)
	var out []model.ProcessScore
	for _, p := range cat.Processes {
		ps, ok := ScoreProcess(assessmentID, p.Key, cat.QuestionsFor(p.Key, seg), byProcess[p.Key])
		if !ok {
			continue
		}
		out = append(out, ps)
	}
	return out, nil
}

// Missing describes the unanswered questions of one process.
type Missing struct {
	ProcessKey          string   `json:"process_key"`
	MissingQuestionKeys []string `json:"missing_question_keys"`
}

// Completeness is the answer coverage of an assessment.
type Completeness struct {
	Missing            []Missing `json:"missing"`
	MissingProcessKeys []string  `json:"missing_process_keys"`
	AnsweredCount      int       `json:"answered_count"`
	TotalExpected      int       `json:"total_expected"`
}

// Complete reports whether every question was answered.
func (c Completeness) Complete() bool {
	return c.AnsweredCount == c.TotalExpected && len(c.Missing) == 0
}

// Details renders the completeness report as error details.
func (c Completeness) Details() map[string]any {
	return map[string]any{
		"missing":              c.Missing,
		"missing_process_keys": c.MissingProcessKeys,
		"answered_count":       c.AnsweredCount,
		"total_expected":       c.TotalExpected,
	}
}

// CheckCompleteness compares answers against the segment's question list.
// A process is listed in MissingProcessKeys when none of its questions was
// answered.
func CheckCompleteness(cat *catalog.Catalog, seg model.Segment, answers []model.Answer) Completeness {
	answered := make(map[string]bool, len(answers))
	for _, a := range answers {
		answered[a.ProcessKey+"\x00"+a.QuestionKey] = true
	}
	c := Completeness{Missing: []Missing{}, MissingProcessKeys: []string{}}
	for _, p := range cat.Processes {
		qs := cat.QuestionsFor(p.Key, seg)
		c.TotalExpected += len(qs)
		var miss []string
		for _, q := range qs {
			if answered[p.Key+"\x00"+q.Key] {
				c.AnsweredCount++
				continue
			}
			miss = append(miss, q.Key)
		}
		if len(miss) == 0 {
			continue
		}
		c.Missing = append(c.Missing, Missing{ProcessKey: p.Key, MissingQuestionKeys: miss})
		if len(miss) == len(qs) {
			c.MissingProcessKeys = append(c.MissingProcessKeys, p.Key)
		}
	}
	return c
}

// ValidateAnswer checks a single answer against the catalog.
func ValidateAnswer(cat *catalog.Catalog, seg model.Segment, processKey, questionKey string, value int) error {
	if _, ok := cat.Process(processKey); !ok {
		return apperr.Validation("process_key", fmt.Sprintf("processo desconhecido %s", processKey))
	}
	q, ok := cat.Question(processKey, questionKey)
	if !ok || !q.AppliesTo(seg) {
		return apperr.Validation("question_key", fmt.Sprintf("pergunta desconhecida %s", questionKey))
	}
	if value < 0 || value > 10 {
		return apperr.Validation("answer_value", "o valor deve estar entre 0 e 10")
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
