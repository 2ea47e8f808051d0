package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/apperr"
)

const maxBodyBytes = 1 << 20

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// writeError renders err as {code, message_user, error, ...details}.
// Errors outside the taxonomy become INTERNAL_ERROR with a correlation id;
// their text is logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		correlationID := uuid.NewString()
		zap.L().Error("api: internal error",
			zap.String("correlation_id", correlationID),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("route", routePattern(r)),
			zap.String("assessment_id", chi.URLParam(r, "id")),
			zap.String("company_id", companyFrom(r)),
			zap.String("step", errorStep(err)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"code":           apperr.CodeInternal,
			"message_user":   "Erro inesperado. Tente novamente em instantes.",
			"error":          errorSlug(apperr.CodeInternal),
			"correlation_id": correlationID,
		})
		return
	}

	if ae.Status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("code", string(ae.Code)),
			zap.String("route", routePattern(r)),
			zap.String("assessment_id", chi.URLParam(r, "id")),
			zap.String("company_id", companyFrom(r)),
			zap.String("step", errorStep(ae.Err)),
			zap.Error(err),
		)
	}
	body := make(map[string]any, len(ae.Details)+3)
	for k, v := range ae.Details {
		body[k] = v
	}
	body["code"] = ae.Code
	body["message_user"] = ae.MessageUser
	body["error"] = errorSlug(ae.Code)
	writeJSON(w, apperr.HTTPStatus(ae), body)
}

// errorStep returns the outermost eris wrap message, which names the step
// that failed ("submit: persist scores").
func errorStep(err error) string {
	if err == nil {
		return ""
	}
	up := eris.Unpack(err)
	if n := len(up.ErrChain); n > 0 {
		return up.ErrChain[n-1].Msg
	}
	return up.ErrRoot.Msg
}

func errorSlug(code apperr.Code) string {
	return strings.ToLower(string(code))
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// decodeBody reads a JSON body into dst and runs struct validation.
func (s *Server) decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("body", "corpo da requisição vazio")
		}
		return apperr.Validation("body", "JSON inválido")
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError reports the first failing field by its JSON path.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		return apperr.Validation(field, "campo "+field+" inválido ("+fe.Tag()+")").
			With("rule", fe.Tag())
	}
	return apperr.Validation("body", "requisição inválida")
}
