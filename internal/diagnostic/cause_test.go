package diagnostic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/model"
)

func submittedWithGap(t *testing.T, f *fixture) *model.Assessment {
	t.Helper()
	ctx := context.Background()
	a, err := f.svc.GetOrCreate(ctx, "c1", model.SegmentC)
	require.NoError(t, err)
	f.answerAll(t, a.ID, map[string]int{"ADM_FIN": 3})
	res, err := f.svc.Submit(ctx, a.ID)
	require.NoError(t, err)
	return res.Assessment
}

func TestPendingCauses_RequiresSubmit(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.GetOrCreate(context.Background(), "c1", model.SegmentC)
	require.NoError(t, err)

	_, err = f.svc.PendingCauses(context.Background(), a.ID)
	assert.True(t, apperr.Is(err, apperr.CodeDiagNotReady))
}

func TestAnswerCause_PartialThenComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := submittedWithGap(t, f)

	pending, err := f.svc.PendingCauses(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "GAP_CAIXA_PREVISAO", pending[0].GapID)
	assert.Len(t, pending[0].Questions, 5)
	assert.Empty(t, pending[0].AnsweredIDs)

	_, err = f.svc.AnswerCause(ctx, a.ID, "GAP_CAIXA_PREVISAO", map[string]string{
		"CX_1": "concordo plenamente",
		"CX_2": "5",
	})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeDiagIncomplete, ae.Code)
	assert.Equal(t, []string{"CX_3", "CX_4", "CX_5"}, ae.Details["missing"])

	pending, err = f.svc.PendingCauses(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, []string{"CX_1", "CX_2"}, pending[0].AnsweredIDs)
	assert.Equal(t, "CONCORDO_PLENAMENTE", pending[0].Answers["CX_1"])

	cl, err := f.svc.AnswerCause(ctx, a.ID, "GAP_CAIXA_PREVISAO", map[string]string{
		"CX_3": "Discordo",
		"CX_4": "Concordo",
		"CX_5": "CONCORDO",
	})
	require.NoError(t, err)
	assert.Equal(t, "SEM_ROTINA", cl.CausePrimary)
	assert.Equal(t, "SEM_INFORMACAO", cl.CauseSecondary)
	assert.Len(t, cl.Evidence, 4)

	gaps, err := f.st.ListGapInstances(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	assert.Equal(t, model.GapCauseClassified, gaps[0].Status)
	assert.False(t, gaps[0].CreatedAt.IsZero(), "gap instances carry their detection time")

	view, err := f.svc.View(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, view.RaiosX.Vazamentos, 1)
	leak := view.RaiosX.Vazamentos[0]
	assert.False(t, leak.IsFallback)
	assert.Equal(t, "SEM_ROTINA", leak.Payload.CausePrimary)
	assert.Equal(t, "MEC_CAIXA_RITUAL", leak.Payload.MechanismKey)
	assert.NotEmpty(t, leak.Payload.PrimeiroPasso)

	pending, err = f.svc.PendingCauses(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	events, err := f.st.ListAuditEvents(ctx, a.ID)
	require.NoError(t, err)
	var kinds []model.AuditKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, model.AuditCauseClassified)
}

func TestAnswerCause_Reclassify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := submittedWithGap(t, f)
	answers := map[string]string{"CX_1": "3", "CX_2": "3", "CX_3": "3", "CX_4": "3", "CX_5": "3"}

	first, err := f.svc.AnswerCause(ctx, a.ID, "GAP_CAIXA_PREVISAO", answers)
	require.NoError(t, err)

	again, err := f.svc.AnswerCause(ctx, a.ID, "GAP_CAIXA_PREVISAO", answers)
	require.NoError(t, err)
	assert.Equal(t, first.CausePrimary, again.CausePrimary)
	assert.Equal(t, first.CauseSecondary, again.CauseSecondary)

	changed, err := f.svc.AnswerCause(ctx, a.ID, "GAP_CAIXA_PREVISAO", map[string]string{
		"CX_1": "5", "CX_2": "5", "CX_3": "2", "CX_4": "4", "CX_5": "4",
	})
	require.NoError(t, err)
	assert.Equal(t, "SEM_ROTINA", changed.CausePrimary)
	assert.Equal(t, "SEM_INFORMACAO", changed.CauseSecondary)

	stored, err := f.st.ListClassifications(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "SEM_INFORMACAO", stored[0].CauseSecondary)
}

func TestAnswerCause_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := submittedWithGap(t, f)

	_, err := f.svc.AnswerCause(ctx, a.ID, "GAP_CAIXA_PREVISAO", map[string]string{"FN_1": "5"})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = f.svc.AnswerCause(ctx, a.ID, "GAP_CAIXA_PREVISAO", map[string]string{"CX_1": "talvez"})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = f.svc.AnswerCause(ctx, a.ID, "GAP_VENDAS_FUNIL", map[string]string{"FN_1": "5"})
	assert.True(t, apperr.Is(err, apperr.CodeGapNotPending))
}

func TestAnswerCause_DraftNotReady(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.GetOrCreate(context.Background(), "c1", model.SegmentC)
	require.NoError(t, err)

	_, err = f.svc.AnswerCause(context.Background(), a.ID, "GAP_CAIXA_PREVISAO", map[string]string{"CX_1": "5"})
	assert.True(t, apperr.Is(err, apperr.CodeDiagNotReady))
}
