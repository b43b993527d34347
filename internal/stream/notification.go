package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"signal-monitor/internal/signal"
)

// Kind tags a notification for the view layer.
type Kind string

const (
	KindConnected        Kind = "connected"
	KindDisconnected     Kind = "disconnected"
	KindConnectionError  Kind = "connection_error"
	KindConnectionFailed Kind = "connection_failed" // retry budget exhausted
	KindNewSignal        Kind = "new_signal"
)

// Notification is a fire-and-forget event for the hosting view: render it as
// a toast or a status change and move on.
type Notification struct {
	ID      string        `json:"id"`
	Kind    Kind          `json:"kind"`
	Message string        `json:"message"`
	Signal  *signal.Event `json:"signal,omitempty"`
	At      time.Time     `json:"at"`
}

func newNotification(kind Kind, message string) Notification {
	return Notification{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: message,
		At:      time.Now().UTC(),
	}
}

func newSignalNotification(ev signal.Event) Notification {
	n := newNotification(KindNewSignal,
		fmt.Sprintf("%s %s @ %s", ev.Symbol, strings.ToUpper(string(ev.Type)), ev.Price))
	n.Signal = &ev
	return n
}
