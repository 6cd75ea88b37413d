package circulation

import (
	"context"

	"github.com/google/uuid"
)

// TemplateKind selects the message template a dispatcher renders for the
// user. The circulation core only names the kinds; rendering and delivery
// (SMS, email) are external.
type TemplateKind string

const (
	TemplateLoanCreated      TemplateKind = "loan_created"
	TemplateLoanReturned     TemplateKind = "loan_returned"
	TemplateLoanOverdue      TemplateKind = "loan_overdue"
	TemplateRenewalApproved  TemplateKind = "renewal_approved"
	TemplateRenewalDenied    TemplateKind = "renewal_denied"
	TemplateReservationReady TemplateKind = "reservation_ready"
)

// Notifier is the outbound port to the notification dispatcher.
// Calls are best-effort: failures are logged by the caller, never retried,
// and must never affect the outcome of the ledger operation that triggered
// them.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind TemplateKind, payload map[string]string) error
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(ctx context.Context, userID uuid.UUID, kind TemplateKind, payload map[string]string) error

// Notify calls the wrapped function.
func (f NotifierFunc) Notify(ctx context.Context, userID uuid.UUID, kind TemplateKind, payload map[string]string) error {
	return f(ctx, userID, kind, payload)
}
