package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/raiox/internal/apperr"
)

func routedRequest(method, path string, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	req := httptest.NewRequest(method, path, nil)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestErrorStep(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"external cause", eris.Wrap(errors.New("disk full"), "submit: persist scores"), "submit: persist scores"},
		{"nested wraps", eris.Wrap(eris.Wrap(eris.New("locked"), "sqlite: replace plan"), "plan: replace"), "plan: replace"},
		{"plain error", errors.New("boom"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorStep(tt.err))
		})
	}
}

func TestWriteError_InternalLogFields(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	req := routedRequest(http.MethodPost, "/v1/assessments/a1/submit", map[string]string{"id": "a1"})
	req = req.WithContext(withCompany(req.Context(), "c9"))
	rec := httptest.NewRecorder()

	writeError(rec, req, eris.Wrap(errors.New("disk full"), "submit: persist scores"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")

	entries := logs.FilterMessage("api: internal error").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "a1", fields["assessment_id"])
	assert.Equal(t, "c9", fields["company_id"])
	assert.Equal(t, "submit: persist scores", fields["step"])
	assert.NotEmpty(t, fields["correlation_id"])
}

func TestWriteError_CatalogInvalidLogFields(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	req := routedRequest(http.MethodGet, "/v1/companies/c7/assessment", map[string]string{"companyID": "c7"})
	rec := httptest.NewRecorder()

	writeError(rec, req, apperr.CatalogInvalid(eris.New("scoring: process OPERACAO has no questions")))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	entries := logs.FilterMessage("api: request failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "c7", fields["company_id"])
	assert.Equal(t, "scoring: process OPERACAO has no questions", fields["step"])
}
