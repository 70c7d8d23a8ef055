package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/spawn"
)

// DefaultSMSCommand sends an SMS through the modem. The text is passed on
// stdin.
const DefaultSMSCommand = "wb-gsm restart_if_broken && gammu sendsms TEXT '{}' -unicode"

// SMS sends texts by running a shell command. A command with two "{}"
// placeholders gets the number and the text; otherwise only the number is
// substituted and the text goes to stdin.
//
// Sends from all SMS recipients are serialized: there is one modem.
type SMS struct {
	To      string
	Command string

	runner spawn.Runner
	log    *zap.Logger
}

var modemLock sync.Mutex

// NewSMS creates an SMS recipient. An empty command uses DefaultSMSCommand.
func NewSMS(to, command string, runner spawn.Runner, log *zap.Logger) *SMS {
	if command == "" {
		command = DefaultSMSCommand
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SMS{To: to, Command: command, runner: runner, log: log}
}

// Notify runs the SMS command and waits for it.
func (s *SMS) Notify(ctx context.Context, text string) error {
	modemLock.Lock()
	defer modemLock.Unlock()

	s.log.Info("sending sms", zap.String("to", s.To), zap.String("text", text))
	cmd := s.command(text)
	res, err := s.runner.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("sms to %s: %w", s.To, err)
	}
	if !res.Success() {
		return fmt.Errorf("sms to %s: command exited with status %d: %s", s.To, res.ExitCode, res.ErrorOutput)
	}
	return nil
}

func (s *SMS) command(text string) spawn.Command {
	if strings.Count(s.Command, "{}") == 2 {
		return spawn.ShellCommand(Format(s.Command, s.To, text)).Captured()
	}
	return spawn.ShellCommand(Format(s.Command, s.To)).WithInput(text).Captured()
}

func (s *SMS) String() string {
	return "sms:" + s.To
}
