package rootcause

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func TestGapFor(t *testing.T) {
	g, ok := GapFor("ADM_FIN")
	assert.True(t, ok)
	assert.Equal(t, "GAP_CAIXA_PREVISAO", g)

	_, ok = GapFor("OPERACAO")
	assert.False(t, ok)
}

func TestCheckCatalog(t *testing.T) {
	assert.NoError(t, CheckCatalog(defaultCatalog(t)))

	c, err := catalog.Parse([]byte("catalog:\n  version: t\n"))
	require.NoError(t, err)
	err = CheckCatalog(c)
	assert.True(t, apperr.Is(err, apperr.CodeCatalogInvalid))
}

func TestDetectGaps(t *testing.T) {
	scores := []model.ProcessScore{
		{ProcessKey: "ADM_FIN", Band: model.BandLow},
		{ProcessKey: "COMERCIAL", Band: model.BandMedium},
		{ProcessKey: "GESTAO", Band: model.BandLow},
		{ProcessKey: "OPERACAO", Band: model.BandLow},
	}
	gaps := DetectGaps("a1", scores, fixedNow)
	require.Len(t, gaps, 2)
	assert.Equal(t, "GAP_CAIXA_PREVISAO", gaps[0].GapID)
	assert.Equal(t, model.GapCausePending, gaps[0].Status)
	assert.Equal(t, fixedNow, gaps[0].CreatedAt)
	assert.Equal(t, "GAP_ROTINA_GERENCIAL", gaps[1].GapID)
}

func TestClassify_Incomplete(t *testing.T) {
	c := defaultCatalog(t)
	answers := map[string]model.Likert{"CX_1": 5, "CX_3": 2, "CX_4": 9}

	_, err := Classify(c, "a1", "GAP_CAIXA_PREVISAO", answers, fixedNow)
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeDiagIncomplete, e.Code)
	assert.Equal(t, []string{"CX_2", "CX_4", "CX_5"}, e.Details["missing"])
}

func TestClassify_UnknownGap(t *testing.T) {
	_, err := Classify(defaultCatalog(t), "a1", "GAP_X", nil, fixedNow)
	assert.True(t, apperr.Is(err, apperr.CodeGapNotPending))
}

func TestClassify(t *testing.T) {
	c := defaultCatalog(t)
	tests := []struct {
		name      string
		answers   map[string]model.Likert
		primary   string
		secondary string
		evidence  []string
	}{
		{
			name:      "primary with secondary",
			answers:   map[string]model.Likert{"CX_1": 5, "CX_2": 4, "CX_3": 2, "CX_4": 4, "CX_5": 4},
			primary:   "SEM_ROTINA",
			secondary: "SEM_INFORMACAO",
			evidence:  []string{"CX_1", "CX_2", "CX_4", "CX_5"},
		},
		{
			name:     "tie keeps catalog order",
			answers:  map[string]model.Likert{"CX_1": 3, "CX_2": 3, "CX_3": 3, "CX_4": 3, "CX_5": 3},
			primary:  "SEM_ROTINA",
			evidence: []string{"CX_1", "CX_2"},
		},
		{
			name:     "single strong cause",
			answers:  map[string]model.Likert{"CX_1": 1, "CX_2": 1, "CX_3": 5, "CX_4": 2, "CX_5": 1},
			primary:  "SEM_DONO",
			evidence: []string{"CX_3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cl, err := Classify(c, "a1", "GAP_CAIXA_PREVISAO", tt.answers, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.primary, cl.CausePrimary)
			assert.Equal(t, tt.secondary, cl.CauseSecondary)
			var ids []string
			for _, ev := range cl.Evidence {
				ids = append(ids, ev.QuestionID)
				assert.NotEmpty(t, ev.Label)
			}
			assert.Equal(t, tt.evidence, ids)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := defaultCatalog(t)
	answers := map[string]model.Likert{"FN_1": 2, "FN_2": 3, "FN_3": 4, "FN_4": 5, "FN_5": 5}

	first, err := Classify(c, "a1", "GAP_VENDAS_FUNIL", answers, fixedNow)
	require.NoError(t, err)
	second, err := Classify(c, "a1", "GAP_VENDAS_FUNIL", answers, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "SEM_COMPETENCIA", first.CausePrimary)
	assert.Equal(t, "SEM_DONO", first.CauseSecondary)
	assert.Equal(t, "CONCORDO_PLENAMENTE", first.Evidence[len(first.Evidence)-1].Answer)
}

func TestParseLikert(t *testing.T) {
	tests := []struct {
		in   string
		want model.Likert
		ok   bool
	}{
		{"5", model.LikertConcordoPlenamente, true},
		{" 1 ", model.LikertDiscordoPlenamente, true},
		{"0", 0, false},
		{"CONCORDO", model.LikertConcordo, true},
		{"concordo plenamente", model.LikertConcordoPlenamente, true},
		{"Discordo-Plenamente", model.LikertDiscordoPlenamente, true},
		{"neutro", model.LikertNeutro, true},
		{"NÊUTRO", model.LikertNeutro, true},
		{"talvez", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLikert(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
