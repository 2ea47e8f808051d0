package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("x", "bad"), http.StatusBadRequest},
		{"cycle closed", CycleClosed(), http.StatusConflict},
		{"write once", EvidenceWriteOnce("A"), http.StatusConflict},
		{"access denied", AccessDenied(), http.StatusNotFound},
		{"catalog", CatalogInvalid(errors.New("boom")), http.StatusInternalServerError},
		{"wrapped", eris.Wrap(DiagNotReady(), "plan: suggestions"), http.StatusBadRequest},
		{"plain", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWith_CopiesDetails(t *testing.T) {
	base := New(CodeValidation, http.StatusBadRequest, "x").With("a", 1)
	derived := base.With("b", 2)

	assert.Len(t, base.Details, 1)
	assert.Len(t, derived.Details, 2)
}

func TestAsAndIs(t *testing.T) {
	err := eris.Wrap(MechanismActionRequired([]string{"A", "B"}), "plan: select")

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, CodeMechanismRequired, e.Code)
	assert.Equal(t, []string{"A", "B"}, e.Details["mechanism_action_keys"])
	assert.True(t, Is(err, CodeMechanismRequired))
	assert.False(t, Is(errors.New("x"), CodeMechanismRequired))
}

func TestDiagIncomplete_MergesDetails(t *testing.T) {
	e := DiagIncomplete(map[string]any{"missing": []string{"CX_1"}, "answered_count": 4})
	assert.Equal(t, []string{"CX_1"}, e.Details["missing"])
	assert.Equal(t, 4, e.Details["answered_count"])
}

func TestError_Message(t *testing.T) {
	assert.Contains(t, CatalogInvalid(errors.New("no questions")).Error(), "no questions")
	assert.Contains(t, CycleClosed().Error(), string(CodeCycleClosed))
}
