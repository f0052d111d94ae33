package services

import (
	"context"

	"github.com/avdeyev/authcore/internal/logging"
)

// Mailer delivers verification codes. Delivery is best-effort from the
// core's perspective: a failure is logged and never rolls back the
// already-committed verification record.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, code string) error
}

// LogMailer is the development Mailer: it logs the delivery instead of
// sending it. The plaintext code appears only at debug level.
type LogMailer struct {
	log logging.Logger
}

func NewLogMailer(log logging.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) SendVerificationEmail(ctx context.Context, email, code string) error {
	m.log.Info(ctx, "sending verification email", "email", email)
	m.log.Debug(ctx, "verification code issued", "email", email, "code", code)
	return nil
}
