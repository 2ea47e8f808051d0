package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/raiox/internal/model"
)

// AuditWriter persists audit events.
type AuditWriter interface {
	InsertAuditEvent(ctx context.Context, ev *model.AuditEvent) error
}

// Auditor records domain audit events: a structured log line, a row in the
// audit table and, for integrity failures, an operator alert.
type Auditor struct {
	writer  AuditWriter
	alerter *Alerter
	now     func() time.Time
}

// NewAuditor creates an Auditor. writer and alerter may be nil.
func NewAuditor(writer AuditWriter, alerter *Alerter) *Auditor {
	return &Auditor{writer: writer, alerter: alerter, now: func() time.Time { return time.Now().UTC() }}
}

// Record logs and stores one audit event. It never fails the caller.
func (a *Auditor) Record(ctx context.Context, kind model.AuditKind, assessmentID, companyID string, detail map[string]any) {
	if a == nil {
		return
	}
	ev := &model.AuditEvent{
		ID:           uuid.NewString(),
		AssessmentID: assessmentID,
		CompanyID:    companyID,
		Kind:         kind,
		Detail:       detail,
		CreatedAt:    a.now(),
	}
	if ev.Detail == nil {
		ev.Detail = map[string]any{}
	}

	zap.L().Info("audit event",
		zap.Bool("audit", true),
		zap.String("kind", string(kind)),
		zap.String("assessment_id", assessmentID),
		zap.String("company_id", companyID),
		zap.Any("detail", ev.Detail),
	)

	if a.writer != nil {
		if err := a.writer.InsertAuditEvent(ctx, ev); err != nil {
			zap.L().Error("monitoring: persist audit event", zap.String("kind", string(kind)), zap.Error(err))
		}
	}

	if kind == model.AuditCatalogInvalid && a.alerter != nil {
		a.alerter.Send(ctx, Alert{
			Type:      AlertCatalogInvalid,
			Severity:  "high",
			Message:   fmt.Sprintf("catalog integrity failure on assessment %s", assessmentID),
			Details:   ev.Detail,
			Timestamp: ev.CreatedAt,
		})
	}
}
