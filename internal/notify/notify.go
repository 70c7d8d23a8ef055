// Package notify delivers alarm texts to recipients: email and SMS through
// external commands, Telegram and generic webhooks over HTTP.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/cellrules/internal/cell"
)

// Notifier sends a text to one recipient.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Format substitutes args into the "{}" placeholders of template in order.
// Missing args become empty strings and `\{` yields a literal brace.
func Format(template string, args ...any) string {
	parts := strings.Split(template, `\{`)
	i := 0
	for n, part := range parts {
		var b strings.Builder
		for {
			idx := strings.Index(part, "{}")
			if idx < 0 {
				b.WriteString(part)
				break
			}
			b.WriteString(part[:idx])
			if i < len(args) {
				b.WriteString(cell.Format(args[i]))
				i++
			}
			part = part[idx+2:]
		}
		parts[n] = b.String()
	}
	return strings.Join(parts, "{")
}

// MaybeFormat formats template only when it has a placeholder.
func MaybeFormat(template string, args ...any) string {
	if !strings.Contains(template, "{}") {
		return template
	}
	return Format(template, args...)
}

// Async decouples a Notifier from its caller: texts are queued and sent one
// at a time by a worker goroutine. Used to keep slow recipients off the rule
// engine loop.
type Async struct {
	next   Notifier
	name   string
	log    *zap.Logger
	queue  chan string
	done   chan struct{}
	cancel context.CancelFunc
}

// NewAsync starts a worker for next with room for size queued texts.
func NewAsync(next Notifier, name string, size int, log *zap.Logger) *Async {
	if log == nil {
		log = zap.NewNop()
	}
	if size <= 0 {
		size = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		next:   next,
		name:   name,
		log:    log,
		queue:  make(chan string, size),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go a.worker(ctx)
	return a
}

// Notify queues text. It fails only when the queue is full.
func (a *Async) Notify(_ context.Context, text string) error {
	select {
	case a.queue <- text:
		return nil
	default:
		return fmt.Errorf("%s: notification queue full", a.name)
	}
}

// Close sends what is already queued and stops the worker.
func (a *Async) Close() {
	close(a.queue)
	<-a.done
	a.cancel()
}

func (a *Async) worker(ctx context.Context) {
	defer close(a.done)
	for text := range a.queue {
		if err := a.next.Notify(ctx, text); err != nil {
			a.log.Error("notification failed", zap.String("recipient", a.name), zap.Error(err))
		}
	}
}

// String names the wrapped recipient.
func (a *Async) String() string {
	return a.name
}
