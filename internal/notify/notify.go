// Package notify abstracts transient user-facing notifications. REST
// failures in the session and chat layers are handled at the call site and
// surfaced through a Notifier rather than propagated.
package notify

import "log"

// Notifier receives transient, toast-style notifications.
type Notifier interface {
	Success(msg string)
	Error(msg string)
	Info(msg string)
}

// LogNotifier writes notifications to the process log. It is the default
// when no UI-backed notifier is injected.
type LogNotifier struct{}

func (LogNotifier) Success(msg string) { log.Printf("Notify (success): %s", msg) }
func (LogNotifier) Error(msg string)   { log.Printf("Notify (error): %s", msg) }
func (LogNotifier) Info(msg string)    { log.Printf("Notify (info): %s", msg) }
