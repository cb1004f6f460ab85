package app

import (
	"github.com/rs/zerolog/log"
)

// Notifier is the host hook every alert query passes through. The value it
// returns is what QueryAlert hands back to the caller.
type Notifier interface {
	Notify(status string) string
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(status string) string

// Notify calls f(status).
func (f NotifierFunc) Notify(status string) string { return f(status) }

// LogNotifier logs the status and returns it unchanged.
type LogNotifier struct{}

// Notify logs status at debug level and echoes it.
func (LogNotifier) Notify(status string) string {
	log.Debug().Str("status", status).Msg("Alert queried")
	return status
}

// Chain passes the status through each notifier in turn, feeding every
// notifier the previous one's result. Nil entries are skipped.
func Chain(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(status string) string {
		for _, n := range notifiers {
			if n != nil {
				status = n.Notify(status)
			}
		}
		return status
	})
}
