package actionfit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
)

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func answers(process string, kv map[string]int) []model.Answer {
	var out []model.Answer
	for k, v := range kv {
		out = append(out, model.Answer{ProcessKey: process, QuestionKey: k, Value: v})
	}
	return out
}

func TestMatch_TwoSignalsSuggested(t *testing.T) {
	c := defaultCatalog(t)
	ans := answers("ADM_FIN", map[string]int{
		"fluxo_caixa_existe": 1, "fluxo_caixa_rotina": 2, "fluxo_caixa_dono": 7, "fluxo_caixa_controle": 6,
	})

	res := Match(c, ans, nil, nil)
	require.Len(t, res.Suggestions, 1)
	s := res.Suggestions[0]
	assert.Equal(t, "AF_FLUXO_13_SEMANAS", s.ActionKey)
	assert.Equal(t, 2, s.MatchCount)
	assert.ElementsMatch(t, []string{"fluxo_caixa_existe", "fluxo_caixa_rotina"}, s.MatchedSignals)
	require.Len(t, s.Evidence, 2)
	assert.Equal(t, "ADM_FIN", s.Evidence[0].ProcessKey)
	assert.NotEmpty(t, s.DoD)
	assert.Empty(t, res.ContentGaps)
}

func TestMatch_SingleSignalRejected(t *testing.T) {
	c := defaultCatalog(t)
	ans := answers("ADM_FIN", map[string]int{
		"fluxo_caixa_existe": 1, "fluxo_caixa_rotina": 6, "fluxo_caixa_dono": 7, "fluxo_caixa_controle": 6,
	})

	res := Match(c, ans, nil, nil)
	assert.Empty(t, res.Suggestions)
	require.Len(t, res.ContentGaps, 1)
	assert.Equal(t, ReasonBelowThreshold, res.ContentGaps[0].Reason)
	assert.Equal(t, []string{"fluxo_caixa_existe"}, res.ContentGaps[0].SignalsTrue)
}

func TestMatch_NoFallback(t *testing.T) {
	c := defaultCatalog(t)
	ans := answers("COMERCIAL", map[string]int{
		"funil_existe": 5, "funil_rotina": 9, "funil_dono": 5, "funil_controle": 7,
	})

	res := Match(c, ans, nil, nil)
	assert.Empty(t, res.Suggestions)
	require.Len(t, res.ContentGaps, 1)
	assert.Equal(t, "COMERCIAL", res.ContentGaps[0].ProcessKey)
	assert.Equal(t, ReasonNoFailureSignals, res.ContentGaps[0].Reason)
}

func TestMatch_ExcludedIsNotContentGap(t *testing.T) {
	c := defaultCatalog(t)
	ans := answers("ADM_FIN", map[string]int{
		"fluxo_caixa_existe": 1, "fluxo_caixa_rotina": 2, "fluxo_caixa_dono": 7, "fluxo_caixa_controle": 6,
	})

	res := Match(c, ans, nil, map[string]bool{"AF_FLUXO_13_SEMANAS": true})
	assert.Empty(t, res.Suggestions)
	assert.Empty(t, res.ContentGaps)
}

func TestMatch_Ranking(t *testing.T) {
	c := defaultCatalog(t)
	var ans []model.Answer
	ans = append(ans, answers("ADM_FIN", map[string]int{
		"fluxo_caixa_existe": 1, "fluxo_caixa_rotina": 1, "fluxo_caixa_dono": 1, "fluxo_caixa_controle": 1,
	})...)
	ans = append(ans, answers("COMERCIAL", map[string]int{
		"funil_existe": 0, "funil_rotina": 0, "funil_dono": 0, "funil_controle": 0,
	})...)
	scores := []model.ProcessScore{
		{ProcessKey: "ADM_FIN", ScoreNumeric: 1},
		{ProcessKey: "COMERCIAL", ScoreNumeric: 0},
	}

	res := Match(c, ans, scores, nil)
	assert.Equal(t, []string{
		"CM_FUNIL_ETAPAS", "CM_REUNIAO_PIPELINE", "CM_META_POR_VENDEDOR", "CM_CRM_MINIMO",
		"AF_FLUXO_13_SEMANAS", "AF_RITUAL_SEMANAL_CAIXA", "AF_DONO_CAIXA", "AF_CONCILIACAO_DIARIA",
	}, res.Keys())

	again := Match(c, ans, scores, nil)
	assert.Equal(t, res, again)
}

func TestMatch_UnansweredProcessIgnored(t *testing.T) {
	res := Match(defaultCatalog(t), nil, nil, nil)
	assert.Empty(t, res.Suggestions)
	assert.Empty(t, res.ContentGaps)
}

func TestMatch_NoCatalogActions(t *testing.T) {
	c, err := catalog.Parse([]byte(`
catalog:
  version: t
  processes:
    - key: P1
      typical_impact_band: LOW
      questions:
        - {key: q1, dimension: ROTINA}
`))
	require.NoError(t, err)

	res := Match(c, answers("P1", map[string]int{"q1": 0}), nil, nil)
	require.Len(t, res.ContentGaps, 1)
	assert.Equal(t, ReasonNoCatalogActions, res.ContentGaps[0].Reason)
}

func TestSignalsTrue(t *testing.T) {
	sig := SignalsTrue([]model.Answer{
		{ProcessKey: "P", QuestionKey: "a", Value: 2},
		{ProcessKey: "P", QuestionKey: "b", Value: 3},
		{ProcessKey: "Q", QuestionKey: "c", Value: 0},
	})
	assert.Equal(t, map[string]map[string]int{"P": {"a": 2}, "Q": {"c": 0}}, sig)
}
