package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
)

func fptr(v float64) *float64 { return &v }

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

// answersFor builds answers for a process in question order.
func answersFor(t *testing.T, c *catalog.Catalog, process string, values ...int) []model.Answer {
	t.Helper()
	qs := c.QuestionsFor(process, model.SegmentC)
	require.Len(t, values, len(qs))
	out := make([]model.Answer, len(qs))
	for i, q := range qs {
		out[i] = model.Answer{AssessmentID: "a1", ProcessKey: process, QuestionKey: q.Key, Value: values[i]}
	}
	return out
}

func TestScoreToBand(t *testing.T) {
	assert.Equal(t, model.BandLow, ScoreToBand(3.99))
	assert.Equal(t, model.BandMedium, ScoreToBand(4))
	assert.Equal(t, model.BandMedium, ScoreToBand(6.99))
	assert.Equal(t, model.BandHigh, ScoreToBand(7))
}

func TestDeriveBand(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		dims  map[model.Dimension]*float64
		band  model.Band
		rule  model.BandRule
	}{
		{
			name:  "strong everywhere",
			score: 8.5,
			dims: map[model.Dimension]*float64{
				model.DimExistencia: fptr(7), model.DimRotina: fptr(8), model.DimDono: fptr(9), model.DimControle: fptr(10),
			},
			band: model.BandHigh, rule: model.RuleAllMinimumStrong,
		},
		{
			name:  "weak rotina with high score falls back",
			score: 7.5,
			dims: map[model.Dimension]*float64{
				model.DimExistencia: fptr(10), model.DimRotina: fptr(4), model.DimDono: fptr(8), model.DimControle: fptr(8),
			},
			band: model.BandHigh, rule: model.RuleFallbackScore,
		},
		{
			name:  "weak minimum and low score",
			score: 3,
			dims: map[model.Dimension]*float64{
				model.DimExistencia: fptr(3), model.DimRotina: fptr(3), model.DimDono: fptr(3), model.DimControle: fptr(3),
			},
			band: model.BandLow, rule: model.RuleMissingOrWeakMinimum,
		},
		{
			name:  "missing controle",
			score: 5,
			dims: map[model.Dimension]*float64{
				model.DimExistencia: fptr(5), model.DimRotina: fptr(5), model.DimDono: fptr(5), model.DimControle: nil,
			},
			band: model.BandMedium, rule: model.RuleFallbackScore,
		},
		{
			name:  "floors met but not strong",
			score: 6,
			dims: map[model.Dimension]*float64{
				model.DimExistencia: fptr(6), model.DimRotina: fptr(6), model.DimDono: fptr(6), model.DimControle: fptr(6),
			},
			band: model.BandMedium, rule: model.RuleIntermediate,
		},
		{
			name:  "strong minimums but weak existencia",
			score: 7.5,
			dims: map[model.Dimension]*float64{
				model.DimExistencia: fptr(6), model.DimRotina: fptr(8), model.DimDono: fptr(8), model.DimControle: fptr(8),
			},
			band: model.BandMedium, rule: model.RuleIntermediate,
		},
		{
			name:  "missing existencia blocks HIGH",
			score: 9,
			dims: map[model.Dimension]*float64{
				model.DimRotina: fptr(9), model.DimDono: fptr(9), model.DimControle: fptr(9),
			},
			band: model.BandMedium, rule: model.RuleIntermediate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			band, rule := DeriveBand(tt.score, tt.dims)
			assert.Equal(t, tt.band, band)
			assert.Equal(t, tt.rule, rule)
		})
	}
}

func TestScoreProcess_BandMonotonicity(t *testing.T) {
	c := defaultCatalog(t)
	qs := c.QuestionsFor("COMERCIAL", model.SegmentC)

	// existe, rotina, dono, controle
	strong := answersFor(t, c, "COMERCIAL", 7, 8, 8, 8)
	ps, ok := ScoreProcess("a1", "COMERCIAL", qs, strong)
	require.True(t, ok)
	assert.Equal(t, model.BandHigh, ps.Band)

	for i := 1; i <= 3; i++ {
		weakened := answersFor(t, c, "COMERCIAL", 7, 8, 8, 8)
		weakened[i].Value = 4
		ps, ok := ScoreProcess("a1", "COMERCIAL", qs, weakened)
		require.True(t, ok)
		// score = (7+8+8+4)/4 = 6.75 -> fallback MEDIUM, never HIGH.
		assert.NotEqual(t, model.BandHigh, ps.Band)
		assert.Equal(t, model.RuleFallbackScore, ps.RuleUsed)
	}

	lowered := answersFor(t, c, "COMERCIAL", 3, 2, 3, 3)
	ps, ok = ScoreProcess("a1", "COMERCIAL", qs, lowered)
	require.True(t, ok)
	assert.Equal(t, model.BandLow, ps.Band)
}

func TestScoreProcess_Scenario(t *testing.T) {
	c := defaultCatalog(t)
	answers := answersFor(t, c, "ADM_FIN", 3, 3, 3, 3)

	ps, ok := ScoreProcess("a1", "ADM_FIN", c.QuestionsFor("ADM_FIN", model.SegmentC), answers)
	require.True(t, ok)
	assert.Equal(t, 3.0, ps.ScoreNumeric)
	assert.Equal(t, model.BandLow, ps.Band)
	assert.Equal(t, model.RuleMissingOrWeakMinimum, ps.RuleUsed)
	require.NotNil(t, ps.DimensionScores[model.DimRotina])
	assert.Equal(t, 3.0, *ps.DimensionScores[model.DimRotina])
	assert.Equal(t, 4, ps.AnswerCount)
}

func TestScoreProcess_Deterministic(t *testing.T) {
	c := defaultCatalog(t)
	qs := c.QuestionsFor("GESTAO", model.SegmentC)
	answers := answersFor(t, c, "GESTAO", 6, 9, 5, 7)

	first, _ := ScoreProcess("a1", "GESTAO", qs, answers)
	second, _ := ScoreProcess("a1", "GESTAO", qs, answers)
	assert.Equal(t, first, second)
}

func TestScoreProcess_IgnoresUnknownAndEmpty(t *testing.T) {
	c := defaultCatalog(t)
	qs := c.QuestionsFor("GESTAO", model.SegmentC)

	_, ok := ScoreProcess("a1", "GESTAO", qs, nil)
	assert.False(t, ok)

	_, ok = ScoreProcess("a1", "GESTAO", qs, []model.Answer{{ProcessKey: "GESTAO", QuestionKey: "nope", Value: 1}})
	assert.False(t, ok)
}

func TestScore_AllProcesses(t *testing.T) {
	c := defaultCatalog(t)
	var answers []model.Answer
	answers = append(answers, answersFor(t, c, "ADM_FIN", 3, 3, 3, 3)...)
	answers = append(answers, answersFor(t, c, "COMERCIAL", 7, 8, 8, 8)...)
	answers = append(answers, answersFor(t, c, "GESTAO", 6, 6, 6, 6)...)
	answers = append(answers, answersFor(t, c, "OPERACAO", 1, 2, 1, 2)...)

	scores, err := Score(c, "a1", model.SegmentC, answers)
	require.NoError(t, err)
	require.Len(t, scores, 4)

	idx := model.ScoreIndex(scores)
	assert.Equal(t, model.BandLow, idx["ADM_FIN"].Band)
	assert.Equal(t, model.BandHigh, idx["COMERCIAL"].Band)
	assert.Equal(t, model.BandMedium, idx["GESTAO"].Band)
	assert.Equal(t, model.BandLow, idx["OPERACAO"].Band)
}

func TestScore_CatalogInvalid(t *testing.T) {
	c, err := catalog.Parse([]byte(`
catalog:
  version: t
  processes:
    - key: P1
      typical_impact_band: LOW
      questions:
        - {key: q1, dimension: ROTINA}
    - key: P2
      typical_impact_band: LOW
`))
	require.NoError(t, err)

	_, err = Score(c, "a1", model.SegmentC, []model.Answer{{ProcessKey: "P1", QuestionKey: "q1", Value: 5}})
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeCatalogInvalid, e.Code)
	assert.Equal(t, []string{"P2"}, e.Details["process_keys"])
}

func TestCheckCompleteness(t *testing.T) {
	c := defaultCatalog(t)
	answers := answersFor(t, c, "ADM_FIN", 3, 3, 3, 3)
	answers = append(answers, answersFor(t, c, "COMERCIAL", 5, 5, 5, 5)[:2]...)

	comp := CheckCompleteness(c, model.SegmentC, answers)
	assert.False(t, comp.Complete())
	assert.Equal(t, 16, comp.TotalExpected)
	assert.Equal(t, 6, comp.AnsweredCount)
	assert.Equal(t, []string{"GESTAO", "OPERACAO"}, comp.MissingProcessKeys)
	require.Len(t, comp.Missing, 3)
	assert.Equal(t, "COMERCIAL", comp.Missing[0].ProcessKey)
	assert.Equal(t, []string{"funil_dono", "funil_controle"}, comp.Missing[0].MissingQuestionKeys)

	details := comp.Details()
	assert.Equal(t, 16, details["total_expected"])
}

func TestCheckCompleteness_SegmentQuestions(t *testing.T) {
	c := defaultCatalog(t)
	var answers []model.Answer
	for _, p := range c.ProcessKeys() {
		for _, q := range c.QuestionsFor(p, model.SegmentC) {
			answers = append(answers, model.Answer{ProcessKey: p, QuestionKey: q.Key, Value: 5})
		}
	}
	assert.True(t, CheckCompleteness(c, model.SegmentC, answers).Complete())

	comp := CheckCompleteness(c, model.SegmentI, answers)
	assert.False(t, comp.Complete())
	require.Len(t, comp.Missing, 1)
	assert.Equal(t, []string{"estoque_controle"}, comp.Missing[0].MissingQuestionKeys)
}

func TestValidateAnswer(t *testing.T) {
	c := defaultCatalog(t)
	assert.NoError(t, ValidateAnswer(c, model.SegmentC, "ADM_FIN", "fluxo_caixa_dono", 10))
	assert.True(t, apperr.Is(ValidateAnswer(c, model.SegmentC, "X", "fluxo_caixa_dono", 1), apperr.CodeValidation))
	assert.Error(t, ValidateAnswer(c, model.SegmentC, "ADM_FIN", "nope", 1))
	assert.Error(t, ValidateAnswer(c, model.SegmentC, "OPERACAO", "estoque_controle", 1))
	assert.NoError(t, ValidateAnswer(c, model.SegmentI, "OPERACAO", "estoque_controle", 1))
	assert.Error(t, ValidateAnswer(c, model.SegmentC, "ADM_FIN", "fluxo_caixa_dono", 11))
	assert.Error(t, ValidateAnswer(c, model.SegmentC, "ADM_FIN", "fluxo_caixa_dono", -1))
}
