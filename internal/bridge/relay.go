package bridge

import (
	"context"
	"sync"
)

// Relay event types reported by the opener page.
const (
	EventOpened      = "opened"
	EventBlocked     = "blocked"
	EventLocation    = "location"
	EventCrossOrigin = "cross_origin"
	EventClosed      = "closed"
	EventMessage     = "message"
)

// Event is a report from the opener page about its popup.
type Event struct {
	Type        string `json:"type"`
	URL         string `json:"url,omitempty"`
	Origin      string `json:"origin,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RelayStatus is what the opener page needs to drive its popup.
type RelayStatus struct {
	LoginURL       string   `json:"login_url,omitempty"`
	Features       string   `json:"features,omitempty"`
	WatcherScript  string   `json:"watcher_script,omitempty"`
	CloseRequested bool     `json:"close_requested"`
	Size           Features `json:"size"`
}

// Relay is a single-attempt Host and Window whose state is fed by the browser
// that actually owns the popup. The browser opens the popup, reports what it can
// observe, and reads back close requests and the watcher script.
type Relay struct {
	mu             sync.Mutex
	opened         chan struct{}
	loginURL       string
	features       Features
	script         string
	location       string
	readable       bool
	closed         bool
	blocked        bool
	closeRequested bool

	listeners map[int]func(Message)
	nextID    int
	listened  bool
	// Messages reported before anyone listens, delivered to the first listener.
	pending []Message
}

// maxPending caps messages buffered before the bridge listens.
const maxPending = 16

// NewRelay creates an unopened relay.
func NewRelay() *Relay {
	return &Relay{
		opened:    make(chan struct{}),
		listeners: make(map[int]func(Message)),
	}
}

// Open implements Host. The relay itself is the window.
func (r *Relay) Open(_ context.Context, url string, features Features) (Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loginURL = url
	r.features = features
	select {
	case <-r.opened:
	default:
		close(r.opened)
	}
	return r, nil
}

// Opened is closed once the bridge has asked the relay to open the popup.
func (r *Relay) Opened() <-chan struct{} {
	return r.opened
}

// Listen implements Host.
func (r *Relay) Listen(fn func(Message)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.listened = true
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, m := range pending {
		fn(m)
	}

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Location implements Window.
func (r *Relay) Location() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.readable || r.location == "" {
		return "", ErrCrossOrigin
	}
	return r.location, nil
}

// Closed implements Window.
func (r *Relay) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Blocked implements BlockReporter.
func (r *Relay) Blocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blocked
}

// Close implements Window by asking the browser to close the popup.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeRequested = true
	r.closed = true
	return nil
}

// Inject implements Window. The browser attempts the injection itself.
func (r *Relay) Inject(script string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script = script
	return nil
}

// Report applies an event from the browser.
func (r *Relay) Report(ev Event) {
	r.mu.Lock()
	switch ev.Type {
	case EventBlocked:
		r.blocked = true
		r.closed = true
	case EventClosed:
		r.closed = true
	case EventLocation:
		r.readable = true
		r.location = ev.URL
	case EventCrossOrigin:
		r.readable = false
	case EventMessage:
		msg := Message{Origin: ev.Origin, Type: ev.MessageType, URL: ev.URL, Error: ev.Error}
		if len(r.listeners) == 0 {
			// Once the bridge has listened or the popup is gone, no one will read it.
			if !r.listened && !r.closed && len(r.pending) < maxPending {
				r.pending = append(r.pending, msg)
			}
			r.mu.Unlock()
			return
		}
		fns := make([]func(Message), 0, len(r.listeners))
		for _, fn := range r.listeners {
			fns = append(fns, fn)
		}
		r.mu.Unlock()

		// Listeners may unlisten while being called, so they run outside the lock.
		for _, fn := range fns {
			fn(msg)
		}
		return
	}
	r.mu.Unlock()
}

// Pending returns the number of buffered messages.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Status returns the browser-facing view of the relay.
func (r *Relay) Status() RelayStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RelayStatus{
		LoginURL:       r.loginURL,
		Features:       r.features.String(),
		WatcherScript:  r.script,
		CloseRequested: r.closeRequested,
		Size:           r.features,
	}
}
