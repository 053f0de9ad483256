// Package notify delivers short, non-blocking user notifications (toasts).
// Sinks are fire-and-forget: a slow or missing sink never changes the
// outcome of the operation that raised the notification.
package notify

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	Level   Level
	Message string
}

type Notifier interface {
	Notify(n Notification)
}

// Func adapts a plain function to a Notifier.
type Func func(n Notification)

func (f Func) Notify(n Notification) { f(n) }

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(Notification) {}

// Log writes notifications to the global zerolog logger.
type Log struct{}

func (Log) Notify(n Notification) {
	if n.Level == LevelError {
		log.Warn().Str("toast", string(n.Level)).Msg(n.Message)
		return
	}
	log.Info().Str("toast", string(n.Level)).Msg(n.Message)
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

// All returns a copy of the recorded notifications in arrival order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// Errors returns the messages of recorded error notifications.
func (r *Recorder) Errors() []string {
	var out []string
	for _, n := range r.All() {
		if n.Level == LevelError {
			out = append(out, n.Message)
		}
	}
	return out
}

// Success sends a success notification, tolerating a nil sink and recovering
// from a panicking one.
func Success(n Notifier, msg string) {
	send(n, Notification{Level: LevelSuccess, Message: msg})
}

// Error sends an error notification with the same guarantees as Success.
func Error(n Notifier, msg string) {
	send(n, Notification{Level: LevelError, Message: msg})
}

func send(n Notifier, note Notification) {
	if n == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Notification sink panicked")
		}
	}()
	n.Notify(note)
}
