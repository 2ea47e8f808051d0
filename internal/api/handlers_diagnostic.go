package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/diagnostic"
	"github.com/sells-group/raiox/internal/model"
)

type answersRequest struct {
	ProcessKey string       `json:"process_key" validate:"required"`
	Answers    []answerItem `json:"answers" validate:"required,min=1,dive"`
}

type answerItem struct {
	QuestionKey string `json:"question_key" validate:"required"`
	AnswerValue *int   `json:"answer_value" validate:"required,min=0,max=10"`
}

type causeAnswerRequest struct {
	GapID   string         `json:"gap_id" validate:"required"`
	Answers map[string]any `json:"answers" validate:"required,min=1"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Pinger.Ping(ctx); err != nil {
			zap.L().Warn("api: health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCompanyAssessment(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	if h := r.Header.Get(CompanyHeader); h != "" && h != companyID {
		writeError(w, r, apperr.AccessDenied())
		return
	}
	seg, ok := model.ParseSegment(r.URL.Query().Get("segment"))
	if !ok {
		writeError(w, r, apperr.Validation("segment", "segmento deve ser C, I ou S"))
		return
	}
	a, err := s.deps.Diagnostic.GetOrCreate(r.Context(), companyID, seg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Diagnostic.View(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSaveAnswers(w http.ResponseWriter, r *http.Request) {
	var req answersRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in := make([]diagnostic.AnswerInput, len(req.Answers))
	for i, a := range req.Answers {
		in[i] = diagnostic.AnswerInput{QuestionKey: a.QuestionKey, Value: *a.AnswerValue}
	}
	n, err := s.deps.Diagnostic.SaveAnswers(r.Context(), chi.URLParam(r, "id"), req.ProcessKey, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "count": n})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Diagnostic.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"status":     res.Assessment.Status,
		"assessment": res.Assessment,
		"scores":     res.Scores,
		"gaps":       res.Gaps,
	})
}

func (s *Server) handlePendingCauses(w http.ResponseWriter, r *http.Request) {
	pending, err := s.deps.Diagnostic.PendingCauses(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (s *Server) handleAnswerCause(w http.ResponseWriter, r *http.Request) {
	var req causeAnswerRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	raw, err := likertStrings(req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cl, err := s.deps.Diagnostic.AnswerCause(r.Context(), chi.URLParam(r, "id"), req.GapID, raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "classification": cl})
}

// likertStrings accepts Likert answers given either as labels or as 1-5
// numbers.
func likertStrings(in map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for id, v := range in {
		switch tv := v.(type) {
		case string:
			out[id] = tv
		case float64:
			out[id] = strconv.FormatFloat(tv, 'f', -1, 64)
		default:
			return nil, apperr.Validation("answers", "resposta inválida").With("question_id", id)
		}
	}
	return out, nil
}
