package testutil

import (
	"context"
	"sync"

	"github.com/roach88/cellrules/internal/spawn"
)

// Notification is a message captured by RecordingNotifier.
type Notification struct {
	Recipient string
	Text      string
}

// RecordingNotifier captures notifications instead of sending them.
// It satisfies notify.Notifier.
type RecordingNotifier struct {
	mu   sync.Mutex
	name string
	sent []Notification
	err  error
}

// NewRecordingNotifier creates a notifier labelled name.
func NewRecordingNotifier(name string) *RecordingNotifier {
	return &RecordingNotifier{name: name}
}

// FailWith makes subsequent Notify calls record and return err.
func (n *RecordingNotifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Notify records text.
func (n *RecordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, Notification{Recipient: n.name, Text: text})
	return n.err
}

// String names the recipient.
func (n *RecordingNotifier) String() string {
	return n.name
}

// Sent returns a copy of the recorded notifications.
func (n *RecordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

// Texts returns just the recorded texts.
func (n *RecordingNotifier) Texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.Text
	}
	return out
}

// RecordingRunner captures commands and answers with a canned result.
// It satisfies spawn.Runner.
type RecordingRunner struct {
	mu       sync.Mutex
	commands []spawn.Command
	result   spawn.Result
	err      error
}

// NewRecordingRunner creates a runner that returns result for every run.
func NewRecordingRunner(result spawn.Result, err error) *RecordingRunner {
	return &RecordingRunner{result: result, err: err}
}

// Run records cmd.
func (r *RecordingRunner) Run(_ context.Context, cmd spawn.Command) (spawn.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	return r.result, r.err
}

// Commands returns a copy of the recorded commands.
func (r *RecordingRunner) Commands() []spawn.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]spawn.Command, len(r.commands))
	copy(out, r.commands)
	return out
}
