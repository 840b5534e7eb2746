// Package notify carries user-facing notifications from the components that
// produce them to whoever renders them.
package notify

import (
	"sync"
	"time"

	"github.com/soyeahso/voicesquad/internal/logging"
)

// Variant selects how a notification is presented.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a single user-visible message.
type Notification struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Variant     Variant   `json:"variant"`
	At          time.Time `json:"at"`
}

// Info builds a default notification.
func Info(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDefault, At: time.Now()}
}

// Destructive builds a destructive notification.
func Destructive(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDestructive, At: time.Now()}
}

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

// Notify calls f(n).
func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Hub fans notifications out to named subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs []subscriber
	log  *logging.Logger
}

type subscriber struct {
	name string
	fn   func(Notification)
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{log: log.Sub("notify")}
}

// On registers a subscriber. Subscribers are called in registration order.
func (h *Hub) On(name string, fn func(Notification)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, subscriber{name: name, fn: fn})
}

// Off removes every subscriber registered under name.
func (h *Hub) Off(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	filtered := h.subs[:0:0]
	for _, s := range h.subs {
		if s.name != name {
			filtered = append(filtered, s)
		}
	}
	h.subs = filtered
}

// Count returns the number of subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Notify delivers n to all subscribers synchronously.
func (h *Hub) Notify(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	if n.Variant == "" {
		n.Variant = VariantDefault
	}

	h.mu.RLock()
	subs := make([]subscriber, len(h.subs))
	copy(subs, h.subs)
	h.mu.RUnlock()

	ev := h.log.Debug()
	if n.Variant == VariantDestructive {
		ev = h.log.Warn()
	}
	ev.Str("title", n.Title).Str("variant", string(n.Variant)).Msg(n.Description)

	for _, s := range subs {
		s.fn(n)
	}
}

// Recorder keeps every notification it receives.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify records n.
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Titles returns the recorded titles in order.
func (r *Recorder) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.items))
	for i, n := range r.items {
		out[i] = n.Title
	}
	return out
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
