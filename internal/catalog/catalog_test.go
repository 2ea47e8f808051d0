package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/raiox/internal/model"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "2025.1", c.Version)
	assert.Equal(t, []string{"ADM_FIN", "COMERCIAL", "GESTAO", "OPERACAO"}, c.ProcessKeys())

	p, ok := c.Process("ADM_FIN")
	require.True(t, ok)
	assert.Equal(t, model.BandHigh, p.TypicalImpactBand)
	assert.Len(t, c.QuestionsFor("ADM_FIN", model.SegmentC), 4)

	g, ok := c.Gap("GAP_CAIXA_PREVISAO")
	require.True(t, ok)
	assert.Len(t, g.Questions, 5)

	assert.Equal(t, []string{"AF_RITUAL_SEMANAL_CAIXA", "AF_FLUXO_13_SEMANAS"},
		c.MechanismActionKeys("GAP_CAIXA_PREVISAO", "SEM_ROTINA"))
	assert.Nil(t, c.MechanismActionKeys("GAP_CAIXA_PREVISAO", "SEM_COMPETENCIA"))
}

func TestQuestionsFor_Segment(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Len(t, c.QuestionsFor("OPERACAO", model.SegmentC), 4)
	assert.Len(t, c.QuestionsFor("OPERACAO", model.SegmentI), 5)
	assert.Equal(t, 16, c.TotalQuestions(model.SegmentC))
	assert.Equal(t, 17, c.TotalQuestions(model.SegmentI))
	assert.Nil(t, c.QuestionsFor("NOPE", model.SegmentC))
}

func TestActionLookups(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	a, ok := c.Action("CM_REUNIAO_PIPELINE")
	require.True(t, ok)
	assert.Equal(t, "COMERCIAL", a.ProcessKey)
	assert.Equal(t, Dependencies{"CM_FUNIL_ETAPAS"}, a.Dependencies)

	assert.Len(t, c.ActionsForProcess("ADM_FIN"), 4)
	assert.Equal(t, 0, c.ActionOrder("AF_FLUXO_13_SEMANAS"))
	assert.Equal(t, -1, c.ActionOrder("UNKNOWN"))

	cc, ok := c.CauseClass("SEM_DONO")
	require.True(t, ok)
	assert.Equal(t, "Falta de dono", cc.Label)

	assert.NotEmpty(t, c.Recommendations("GESTAO", model.BandLow))
}

func TestValidate_Errors(t *testing.T) {
	doc := `
catalog:
  version: ""
  cause_classes:
    - key: SEM_ROTINA
  processes:
    - key: P1
      typical_impact_band: HUGE
      questions:
        - key: q1
          dimension: ROTINA
        - key: q1
          dimension: SIZE
  actions:
    - key: A1
      process_key: P1
      signals: [q1, q9]
    - key: A2
      process_key: P2
      dod: [x]
  gaps:
    - id: G1
      process_key: P1
      questions:
        - id: X1
          cause: SEM_DONO
      causes:
        - cause: SEM_ROTINA
          mechanism:
            action_keys: [A9]
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "version is required")
	assert.Contains(t, msg, "invalid typical_impact_band")
	assert.Contains(t, msg, "duplicate question q1")
	assert.Contains(t, msg, "invalid dimension")
	assert.Contains(t, msg, "signal q9")
	assert.Contains(t, msg, "dod checklist is empty")
	assert.Contains(t, msg, "unknown process P2")
	assert.Contains(t, msg, "unknown mechanism action A9")
	assert.Contains(t, msg, "outside the gap")
}

func TestParse_ZeroQuestionProcessAccepted(t *testing.T) {
	doc := `
catalog:
  version: "t1"
  processes:
    - key: EMPTY
      typical_impact_band: LOW
`
	c, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Empty(t, c.QuestionsFor("EMPTY", model.SegmentC))
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("catalog: [unterminated"))
	assert.Error(t, err)
}

func TestDependencies_Shapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Dependencies
	}{
		{"list", `deps: [A, B]`, Dependencies{"A", "B"}},
		{"string", `deps: A`, Dependencies{"A"}},
		{"csv", `deps: "A, B ,"`, Dependencies{"A", "B"}},
		{"requires", `deps: {requires: [A]}`, Dependencies{"A"}},
		{"other map", `deps: {after: [A]}`, nil},
		{"number", `deps: 7`, nil},
		{"null", `deps: null`, nil},
		{"mixed list", `deps: [A, 3, {x: y}]`, Dependencies{"A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v struct {
				Deps Dependencies `yaml:"deps"`
			}
			require.NoError(t, yaml.Unmarshal([]byte(tt.doc), &v))
			assert.Equal(t, tt.want, v.Deps)
		})
	}
}

func TestDependencies_JSON(t *testing.T) {
	var d Dependencies
	require.NoError(t, d.UnmarshalJSON([]byte(`{"requires":"A,B"}`)))
	assert.Equal(t, Dependencies{"A", "B"}, d)

	require.NoError(t, d.UnmarshalJSON([]byte(`not json`)))
	assert.Nil(t, d)
}

func TestProvider_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("catalog:\n  version: v1\n"), 0o600))

	p, err := NewProvider(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", p.Current().Version)

	require.NoError(t, os.WriteFile(path, []byte("catalog:\n  version: v2\n"), 0o600))
	c, err := p.Reload()
	require.NoError(t, err)
	assert.Equal(t, "v2", c.Version)
	assert.Equal(t, "v2", p.Current().Version)

	// A broken file keeps the previous catalog.
	require.NoError(t, os.WriteFile(path, []byte("catalog:\n  version: \"\"\n"), 0o600))
	_, err = p.Reload()
	assert.Error(t, err)
	assert.Equal(t, "v2", p.Current().Version)
}

func TestProvider_Default(t *testing.T) {
	p, err := NewProvider("")
	require.NoError(t, err)
	assert.Equal(t, "2025.1", p.Current().Version)
}
