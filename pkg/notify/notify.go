// Package notify is the toast/notification boundary. The engine only
// ever calls Notify(title, body); the hosting surface decides what a
// toast looks like.
package notify

import (
	"golang.org/x/time/rate"

	"chatsync/pkg/logger"
)

// Notifier receives user-facing notifications.
type Notifier interface {
	Notify(title, body string)
}

// Func adapts a plain function to the Notifier interface.
type Func func(title, body string)

// Notify implements Notifier.
func (f Func) Notify(title, body string) { f(title, body) }

// Discard swallows all notifications.
var Discard Notifier = Func(func(string, string) {})

// Throttled rate-limits a noisy notifier so bursts of inbound messages
// do not stack toasts. Dropped notifications are logged at debug.
type Throttled struct {
	next Notifier
	lim  *rate.Limiter
}

// NewThrottled wraps next with a perSecond/burst token bucket.
func NewThrottled(next Notifier, perSecond float64, burst int) *Throttled {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 3
	}
	return &Throttled{next: next, lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Notify forwards when the bucket allows, otherwise drops.
func (t *Throttled) Notify(title, body string) {
	if !t.lim.Allow() {
		logger.Debug("notification_throttled", "title", title)
		return
	}
	t.next.Notify(title, body)
}
