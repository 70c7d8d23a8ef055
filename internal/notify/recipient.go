package notify

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/spawn"
)

// Recipient types accepted in alarm definitions.
const (
	TypeEmail    = "email"
	TypeSMS      = "sms"
	TypeTelegram = "telegram"
	TypeWebhook  = "webhook"
)

// RecipientSpec is a recipient as written in a definitions file.
type RecipientSpec struct {
	Type    string            `json:"type"`
	To      string            `json:"to,omitempty"`
	Subject string            `json:"subject,omitempty"`
	Command string            `json:"command,omitempty"`
	Token   string            `json:"token,omitempty"`
	ChatID  string            `json:"chatId,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Validate checks the fields required by the recipient type.
func (s RecipientSpec) Validate() error {
	switch s.Type {
	case TypeEmail, TypeSMS:
		if s.To == "" {
			return fmt.Errorf("%s recipient without 'to'", s.Type)
		}
	case TypeTelegram:
		if s.ChatID == "" {
			return fmt.Errorf("telegram recipient without 'chatId'")
		}
	case TypeWebhook:
		if s.URL == "" {
			return fmt.Errorf("webhook recipient without 'url'")
		}
	default:
		return fmt.Errorf("invalid recipient type %q", s.Type)
	}
	return nil
}

// String identifies the recipient in logs and traces.
func (s RecipientSpec) String() string {
	switch s.Type {
	case TypeTelegram:
		return "telegram:" + s.ChatID
	case TypeWebhook:
		return "webhook:" + s.URL
	default:
		return s.Type + ":" + s.To
	}
}

// Options carries the process-wide settings recipients are built with.
type Options struct {
	Runner      spawn.Runner
	Sendmail    string
	SMSCommand  string
	TelegramURL string
	// TelegramToken is used by telegram recipients that carry no token.
	TelegramToken string
	Log           *zap.Logger
}

// Build creates the Notifier for spec.
func Build(spec RecipientSpec, opts Options) (Notifier, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = spawn.NewExecRunner(log)
	}

	switch spec.Type {
	case TypeEmail:
		m := NewEmail(spec.To, spec.Subject, runner, log)
		if opts.Sendmail != "" {
			m.Sendmail = opts.Sendmail
		}
		return m, nil
	case TypeSMS:
		command := spec.Command
		if command == "" {
			command = opts.SMSCommand
		}
		return NewSMS(spec.To, command, runner, log), nil
	case TypeTelegram:
		token := spec.Token
		if token == "" {
			token = opts.TelegramToken
		}
		if token == "" {
			return nil, fmt.Errorf("telegram recipient %s: no bot token", spec.ChatID)
		}
		return NewTelegram(opts.TelegramURL, token, spec.ChatID, log), nil
	default:
		return NewWebhook(spec.URL, spec.Headers, log), nil
	}
}
