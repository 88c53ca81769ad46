package notify

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Toast is a user-visible notification.
type Toast struct {
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	At       time.Time `json:"at"`
}

// Sink receives notifications. Notify must not block.
type Sink interface {
	Notify(title, message string, severity Severity)
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(string, string, Severity) {}

// Hub logs every toast and fans it out to subscribers. Slow subscribers lose
// toasts rather than stall the caller.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Toast]struct{}
	recent []Toast
	keep   int
}

// NewHub creates a hub remembering the last keep toasts for new subscribers.
func NewHub(keep int) *Hub {
	return &Hub{subs: make(map[chan Toast]struct{}), keep: keep}
}

func (h *Hub) Notify(title, message string, severity Severity) {
	t := Toast{Title: title, Message: message, Severity: severity, At: time.Now().UTC()}

	entry := log.WithFields(log.Fields{"title": title, "severity": severity})
	switch severity {
	case SeverityError:
		entry.Error(message)
	case SeverityWarning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.keep > 0 {
		h.recent = append(h.recent, t)
		if len(h.recent) > h.keep {
			h.recent = h.recent[len(h.recent)-h.keep:]
		}
	}
	for ch := range h.subs {
		select {
		case ch <- t:
		default:
		}
	}
}

// Recent returns the remembered toasts, oldest first.
func (h *Hub) Recent() []Toast {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Toast, len(h.recent))
	copy(out, h.recent)
	return out
}

// Subscribe registers a listener. The returned cancel func must be called to
// release it.
func (h *Hub) Subscribe(buffer int) (<-chan Toast, func()) {
	ch := make(chan Toast, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}
