package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/spawn"
)

// DefaultSendmail is the sendmail binary used by Email.
const DefaultSendmail = "/usr/sbin/sendmail"

// Email sends texts through sendmail.
type Email struct {
	To       string
	Subject  string // "{}" is replaced by the text
	Sendmail string

	runner spawn.Runner
	log    *zap.Logger
}

// NewEmail creates an email recipient. An empty subject sends the text as
// the subject.
func NewEmail(to, subject string, runner spawn.Runner, log *zap.Logger) *Email {
	if subject == "" {
		subject = "{}"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Email{To: to, Subject: subject, Sendmail: DefaultSendmail, runner: runner, log: log}
}

// Notify runs sendmail with the message on stdin.
func (m *Email) Notify(ctx context.Context, text string) error {
	subject := MaybeFormat(m.Subject, text)
	m.log.Info("sending email", zap.String("to", m.To), zap.String("subject", subject))

	cmd := spawn.Command{Name: m.Sendmail, Args: []string{m.To}}.
		WithInput(fmt.Sprintf("Subject: %s\n\n%s", subject, text)).
		Captured()
	res, err := m.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("email to %s: %w", m.To, err)
	}
	if !res.Success() {
		return fmt.Errorf("email to %s: sendmail exited with status %d: %s", m.To, res.ExitCode, res.ErrorOutput)
	}
	return nil
}

func (m *Email) String() string {
	return "email:" + m.To
}
