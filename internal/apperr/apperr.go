// Package apperr defines the client-facing error taxonomy. Every error that
// crosses the HTTP boundary is either an *Error or is reported as an
// INTERNAL_ERROR with a correlation id.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error code.
type Code string

const (
	// Validation.
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeInvalidSelectionCount Code = "INVALID_SELECTION_COUNT"
	CodeDuplicateAction       Code = "DUPLICATE_ACTION"
	CodeDuplicatePosition     Code = "DUPLICATE_POSITION"
	CodeInvalidPosition       Code = "INVALID_POSITION"
	CodeActionNotEligible     Code = "ACTION_NOT_ELIGIBLE"
	CodeInvalidDoDItem        Code = "INVALID_DOD_ITEM"
	CodeMechanismRequired     Code = "MECHANISM_ACTION_REQUIRED"

	// State preconditions.
	CodeDiagNotReady         Code = "DIAG_NOT_READY"
	CodeDiagAlreadySubmitted Code = "DIAG_ALREADY_SUBMITTED"
	CodeCycleClosed          Code = "CYCLE_CLOSED"
	CodeCycleNotClosed       Code = "CYCLE_NOT_CLOSED"
	CodeGapNotPending        Code = "GAP_NOT_PENDING"
	CodeInvalidTransition    Code = "INVALID_TRANSITION"
	CodeActionNotInPlan      Code = "ACTION_NOT_IN_PLAN"
	CodeNotFound             Code = "NOT_FOUND"

	// Completeness.
	CodeDiagIncomplete      Code = "DIAG_INCOMPLETE"
	CodeChecklistIncomplete Code = "CHECKLIST_INCOMPLETE"
	CodeEvidenceRequired    Code = "EVIDENCE_REQUIRED"
	CodeDropReasonRequired  Code = "DROP_REASON_REQUIRED"
	CodeActionsPending      Code = "ACTIONS_PENDING"

	// Integrity.
	CodeCatalogInvalid Code = "CATALOG_INVALID"

	// Authorization.
	CodeAccessDenied Code = "ACCESS_DENIED"
	CodeForbidden    Code = "FORBIDDEN"

	// Write-once.
	CodeEvidenceWriteOnce Code = "EVIDENCE_WRITE_ONCE"

	CodeInternal    Code = "INTERNAL_ERROR"
	CodeRateLimited Code = "RATE_LIMITED"
)

// Error is a classified error with a user-facing message and structured
// details that are merged into the response body.
type Error struct {
	Code        Code
	Status      int
	MessageUser string
	Details     map[string]any
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.MessageUser)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// With returns a copy of e carrying an extra detail.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Wrap attaches an underlying cause.
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// New builds an Error.
func New(code Code, status int, messageUser string) *Error {
	return &Error{Code: code, Status: status, MessageUser: messageUser}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// HTTPStatus returns the HTTP status code for an error.
func HTTPStatus(err error) int {
	if e, ok := As(err); ok && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Validation reports an invalid request field.
func Validation(field, msg string) *Error {
	return New(CodeValidation, http.StatusBadRequest, "Dados inválidos: "+msg).
		With("field", field)
}

// NotFound reports a missing resource.
func NotFound(what string) *Error {
	return New(CodeNotFound, http.StatusNotFound, "Registro não encontrado.").
		With("resource", what)
}

// AccessDenied hides resources owned by another company.
func AccessDenied() *Error {
	return New(CodeAccessDenied, http.StatusNotFound, "Registro não encontrado.")
}

// DiagNotReady reports an assessment that has not been submitted yet.
func DiagNotReady() *Error {
	return New(CodeDiagNotReady, http.StatusBadRequest, "O diagnóstico ainda não foi concluído.")
}

// DiagAlreadySubmitted reports a write to a non-DRAFT assessment.
func DiagAlreadySubmitted() *Error {
	return New(CodeDiagAlreadySubmitted, http.StatusBadRequest, "O diagnóstico já foi enviado e não pode ser alterado.")
}

// CycleClosed reports a mutation on a CLOSED assessment.
func CycleClosed() *Error {
	return New(CodeCycleClosed, http.StatusConflict, "Este ciclo já foi encerrado.")
}

// CycleNotClosed reports a new-cycle request on an open assessment.
func CycleNotClosed() *Error {
	return New(CodeCycleNotClosed, http.StatusBadRequest, "Encerre o ciclo atual antes de iniciar um novo.")
}

// GapNotPending reports a cause answer for a gap that is not open.
func GapNotPending(gapID string) *Error {
	return New(CodeGapNotPending, http.StatusConflict, "Este diagnóstico de causa não está disponível.").
		With("gap_id", gapID)
}

// InvalidTransition reports an illegal action status change.
func InvalidTransition(from, to string) *Error {
	return New(CodeInvalidTransition, http.StatusConflict, "Mudança de status não permitida.").
		With("from", from).With("to", to)
}

// ActionNotInPlan reports an action key absent from the current plan.
func ActionNotInPlan(actionKey string) *Error {
	return New(CodeActionNotInPlan, http.StatusNotFound, "Ação não faz parte do plano atual.").
		With("action_key", actionKey)
}

// DiagIncomplete reports missing answers.
func DiagIncomplete(details map[string]any) *Error {
	e := New(CodeDiagIncomplete, http.StatusBadRequest, "Responda todas as perguntas antes de continuar.")
	for k, v := range details {
		e = e.With(k, v)
	}
	return e
}

// ChecklistIncomplete reports unconfirmed DoD items.
func ChecklistIncomplete(missing []string) *Error {
	return New(CodeChecklistIncomplete, http.StatusBadRequest, "Confirme todos os itens do checklist antes de concluir a ação.").
		With("missing_items", missing)
}

// EvidenceRequired reports a DONE request without evidence.
func EvidenceRequired() *Error {
	return New(CodeEvidenceRequired, http.StatusBadRequest, "Registre a evidência antes de concluir a ação.")
}

// DropReasonRequired reports a missing or short drop reason.
func DropReasonRequired(minLength int) *Error {
	return New(CodeDropReasonRequired, http.StatusBadRequest,
		fmt.Sprintf("Informe o motivo da desistência com pelo menos %d caracteres.", minLength)).
		With("min_length", minLength)
}

// ActionsPending reports a close attempt with non-terminal actions.
func ActionsPending(pending []string) *Error {
	return New(CodeActionsPending, http.StatusBadRequest, "Conclua ou descarte todas as ações antes de encerrar o ciclo.").
		With("pending", pending)
}

// CatalogInvalid reports a broken catalog. It is not user-fixable.
func CatalogInvalid(err error) *Error {
	return New(CodeCatalogInvalid, http.StatusInternalServerError, "Configuração do diagnóstico inválida. Nossa equipe foi avisada.").
		Wrap(err)
}

// EvidenceWriteOnce reports a second evidence write.
func EvidenceWriteOnce(actionKey string) *Error {
	return New(CodeEvidenceWriteOnce, http.StatusConflict, "A evidência desta ação já foi registrada e não pode ser alterada.").
		With("action_key", actionKey)
}

// InvalidSelectionCount reports a plan with the wrong number of actions.
func InvalidSelectionCount(required, got int) *Error {
	return New(CodeInvalidSelectionCount, http.StatusBadRequest,
		fmt.Sprintf("Selecione exatamente %d ações.", required)).
		With("required_count", required).With("received_count", got)
}

// DuplicateAction reports the same action selected twice.
func DuplicateAction(actionKey string) *Error {
	return New(CodeDuplicateAction, http.StatusBadRequest, "Cada ação só pode ser selecionada uma vez.").
		With("action_key", actionKey)
}

// DuplicatePosition reports two actions sharing a position.
func DuplicatePosition(position int) *Error {
	return New(CodeDuplicatePosition, http.StatusBadRequest, "Cada posição só pode ser usada uma vez.").
		With("position", position)
}

// InvalidPosition reports a position outside [1, required].
func InvalidPosition(position, required int) *Error {
	return New(CodeInvalidPosition, http.StatusBadRequest, "Posição inválida.").
		With("position", position).With("required_count", required)
}

// ActionNotEligible reports selected keys outside the eligible pool.
func ActionNotEligible(keys []string) *Error {
	return New(CodeActionNotEligible, http.StatusBadRequest, "Há ações que não podem ser selecionadas neste ciclo.").
		With("action_keys", keys)
}

// InvalidDoDItem reports DoD items outside the action checklist.
func InvalidDoDItem(items []string) *Error {
	return New(CodeInvalidDoDItem, http.StatusBadRequest, "Itens de checklist desconhecidos.").
		With("invalid_items", items)
}

// MechanismActionRequired reports a plan that ignores a classified root cause.
func MechanismActionRequired(keys []string) *Error {
	return New(CodeMechanismRequired, http.StatusBadRequest,
		"Inclua ao menos uma ação que ataque a causa identificada.").
		With("mechanism_action_keys", keys)
}

// RateLimited reports a throttled client.
func RateLimited() *Error {
	return New(CodeRateLimited, http.StatusTooManyRequests, "Muitas requisições. Tente novamente em instantes.")
}
