package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/raiox/internal/apperr"
	"github.com/sells-group/raiox/internal/plan"
)

type planRequest struct {
	Actions []planItem `json:"actions" validate:"required,dive"`
}

type planItem struct {
	ActionKey      string `json:"action_key" validate:"required"`
	Position       int    `json:"position"`
	OwnerName      string `json:"owner_name"`
	MetricText     string `json:"metric_text"`
	CheckpointDate string `json:"checkpoint_date"`
}

type statusRequest struct {
	Status        string `json:"status" validate:"required"`
	DroppedReason string `json:"dropped_reason"`
}

type dodRequest struct {
	ConfirmedItems []string `json:"confirmed_items" validate:"required"`
}

type evidenceRequest struct {
	ActionKey      string `json:"action_key,omitempty"`
	EvidenceText   string `json:"evidence_text"`
	BeforeBaseline string `json:"before_baseline" validate:"required"`
	AfterResult    string `json:"after_result" validate:"required"`
	DeclaredGain   string `json:"declared_gain"`
}

func (e evidenceRequest) input() plan.EvidenceInput {
	return plan.EvidenceInput{
		EvidenceText:   e.EvidenceText,
		BeforeBaseline: e.BeforeBaseline,
		AfterResult:    e.AfterResult,
		DeclaredGain:   e.DeclaredGain,
	}
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Plan.Actions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCurrentPlan(w http.ResponseWriter, r *http.Request) {
	current, err := s.deps.Plan.Current(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": current})
}

func (s *Server) handleSelectPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	items := make([]plan.SelectionItem, len(req.Actions))
	for i, a := range req.Actions {
		items[i] = plan.SelectionItem{
			ActionKey:      a.ActionKey,
			Position:       a.Position,
			OwnerName:      a.OwnerName,
			MetricText:     a.MetricText,
			CheckpointDate: a.CheckpointDate,
		}
	}
	selected, err := s.deps.Plan.Select(r.Context(), chi.URLParam(r, "id"), items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "plan": selected})
}

func (s *Server) handleActionStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	act, err := s.deps.Plan.SetStatus(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "actionKey"), req.Status, req.DroppedReason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "action": act})
}

func (s *Server) handleConfirmDoD(w http.ResponseWriter, r *http.Request) {
	var req dodRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.deps.Plan.ConfirmDoD(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "actionKey"), req.ConfirmedItems)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleActionEvidence is the strict write-once endpoint: a repeat is a
// 409 and the stored evidence is not returned.
func (s *Server) handleActionEvidence(w http.ResponseWriter, r *http.Request) {
	var req evidenceRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actionKey := chi.URLParam(r, "actionKey")
	ev, created, err := s.deps.Plan.SubmitEvidence(r.Context(), chi.URLParam(r, "id"), actionKey, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !created {
		writeError(w, r, apperr.EvidenceWriteOnce(actionKey))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "evidence": ev})
}

// handlePlanEvidence is the lenient write-once endpoint: a repeat answers
// 200 with the first writer's evidence.
func (s *Server) handlePlanEvidence(w http.ResponseWriter, r *http.Request) {
	var req evidenceRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ActionKey == "" {
		writeError(w, r, apperr.Validation("action_key", "ação obrigatória"))
		return
	}
	ev, created, err := s.deps.Plan.SubmitEvidence(r.Context(), chi.URLParam(r, "id"), req.ActionKey, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"ok": true, "already_exists": !created, "evidence": ev})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Plan.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"status":     res.Assessment.Status,
		"assessment": res.Assessment,
		"snapshot":   res.Snapshot,
	})
}

func (s *Server) handleNewCycle(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Plan.NewCycle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "assessment": a})
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Diagnostic.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	snaps, err := s.deps.Snapshots.List(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.deps.Plan.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}
