package diagnostic

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/catalog"
	"github.com/sells-group/raiox/internal/model"
	"github.com/sells-group/raiox/internal/monitoring"
	"github.com/sells-group/raiox/internal/snapshot"
	"github.com/sells-group/raiox/internal/store"
)

var fixedNow = time.Date(2025, 5, 2, 14, 0, 0, 0, time.UTC)

type fixture struct {
	svc *Service
	st  store.Store
	cat *catalog.Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "diag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	cat, err := catalog.Default()
	require.NoError(t, err)
	provider := catalog.NewStaticProvider(cat)

	svc := New(st, provider, snapshot.New(st, provider), monitoring.NewAuditor(st, nil))
	svc.now = func() time.Time { return fixedNow }
	return &fixture{svc: svc, st: st, cat: cat}
}

// answerAll answers every segment-C question, using values[process] for
// the process or 6 when absent.
func (f *fixture) answerAll(t *testing.T, id string, values map[string]int) {
	t.Helper()
	for _, p := range f.cat.Processes {
		v, ok := values[p.Key]
		if !ok {
			v = 6
		}
		var in []AnswerInput
		for _, q := range f.cat.QuestionsFor(p.Key, model.SegmentC) {
			in = append(in, AnswerInput{QuestionKey: q.Key, Value: v})
		}
		_, err := f.svc.SaveAnswers(context.Background(), id, p.Key, in)
		require.NoError(t, err)
	}
}

func TestGetOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.GetOrCreate(ctx, "c1", model.SegmentC)
	require.NoError(t, err)
	assert.Equal(t, model.AssessmentDraft, a.Status)
	assert.Equal(t, 1, a.CycleNo)
	assert.Equal(t, "2025.1", a.CatalogVersion)

	again, err := f.svc.GetOrCreate(ctx, "c1", model.SegmentC)
	require.NoError(t, err)
	assert.Equal(t, a.ID, again.ID)

	_, err = f.svc.GetOrCreate(ctx, "", model.SegmentC)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestSaveAnswers_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.GetOrCreate(ctx, "c1", model.SegmentC)
	require.NoError(t, err)

	n, err := f.svc.SaveAnswers(ctx, a.ID, "ADM_FIN", []AnswerInput{{QuestionKey: "fluxo_caixa_existe", Value: 7}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.SaveAnswers(ctx, a.ID, "ADM_FIN", []AnswerInput{{QuestionKey: "fluxo_caixa_existe", Value: 11}})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = f.svc.SaveAnswers(ctx, a.ID, "VENDAS", []AnswerInput{{QuestionKey: "x", Value: 1}})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	// Segment I only.
	_, err = f.svc.SaveAnswers(ctx, a.ID, "OPERACAO", []AnswerInput{{QuestionKey: "estoque_controle", Value: 1}})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = f.svc.SaveAnswers(ctx, a.ID, "ADM_FIN", nil)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestSaveAnswers_OverwritesSameQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.GetOrCreate(ctx, "c1", model.SegmentC)
	require.NoError(t, err)

	_, err = f.svc.SaveAnswers(ctx, a.ID, "ADM_FIN", []AnswerInput{{QuestionKey: "fluxo_caixa_existe", Value: 2}})
	require.NoError(t, err)
	_, err = f.svc.SaveAnswers(ctx, a.ID, "ADM_FIN", []AnswerInput{{QuestionKey: "fluxo_caixa_existe", Value: 9}})
	require.NoError(t, err)

	answers, err := f.st.ListAnswers(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, 9, answers[0].Value)
}

func TestSubmit_Incomplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.GetOrCreate(ctx, "c1", model.SegmentC)
	require.NoError(t, err)
	_, err = f.svc.SaveAnswers(ctx, a.ID, "ADM_FIN", []AnswerInput{{QuestionKey: "fluxo_caixa_existe", Value: 5}})
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, a.ID)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeDiagIncomplete, ae.Code)
	assert.Equal(t, 1, ae.Details["answered_count"])
	assert.Equal(t, 16, ae.Details["total_expected"])
	assert.ElementsMatch(t, []string{"COMERCIAL", "GESTAO", "OPERACAO"}, ae.Details["missing_process_keys"])

	got, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssessmentDraft, got.Status)
}

func TestSubmit_LowAdmFinOpensGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.GetOrCreate(ctx, "c1", model.SegmentC)
	require.NoError(t, err)
	f.answerAll(t, a.ID, map[string]int{"ADM_FIN": 3})

	res, err := f.svc.Submit(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssessmentSubmitted, res.Assessment.Status)
	require.NotNil(t, res.Assessment.SubmittedAt)

	scores := model.ScoreIndex(res.Scores)
	assert.Equal(t, model.BandLow, scores["ADM_FIN"].Band)
	assert.Equal(t, model.RuleMissingOrWeakMinimum, scores["ADM_FIN"].RuleUsed)
	assert.Equal(t, model.BandMedium, scores["COMERCIAL"].Band)

	require.Len(t, res.Gaps, 1)
	assert.Equal(t, "GAP_CAIXA_PREVISAO", res.Gaps[0].GapID)
	assert.Equal(t, model.GapCausePending, res.Gaps[0].Status)

	view, err := f.svc.View(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, view.RaiosX.Vazamentos, 1)
	assert.True(t, view.RaiosX.Vazamentos[0].IsFallback)
	assert.Equal(t, model.GapReasonNotClassified, view.RaiosX.Vazamentos[0].Payload.GapReason)
	assert.Len(t, view.RaiosX.Alavancas, 3)
	assert.True(t, view.Completeness.Complete())

	snaps, err := f.st.ListSnapshots(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "2025.1.c1", snaps[0].FullVersion)

	_, err = f.svc.Submit(ctx, a.ID)
	assert.True(t, apperr.Is(err, apperr.CodeDiagAlreadySubmitted))

	_, err = f.svc.SaveAnswers(ctx, a.ID, "ADM_FIN", []AnswerInput{{QuestionKey: "fluxo_caixa_existe", Value: 5}})
	assert.True(t, apperr.Is(err, apperr.CodeDiagAlreadySubmitted))
}

func TestSubmit_CatalogInvalidRecordsAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.GetOrCreate(ctx, "c1", model.SegmentC)
	require.NoError(t, err)

	broken := *f.cat
	broken.Processes = append([]catalog.Process(nil), f.cat.Processes...)
	broken.Processes[0].Questions = nil
	f.svc.catalogs = catalog.NewStaticProvider(&broken)

	_, err = f.svc.Submit(ctx, a.ID)
	require.True(t, apperr.Is(err, apperr.CodeCatalogInvalid))
	assert.Equal(t, 500, apperr.HTTPStatus(err))

	events, err := f.st.ListAuditEvents(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.AuditCatalogInvalid, events[0].Kind)
}
