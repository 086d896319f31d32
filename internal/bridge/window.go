package bridge

import (
	"context"
	"errors"
	"fmt"
)

// ErrCrossOrigin is returned by Window.Location when the child context has
// navigated to an origin the opener cannot read. It is an expected poll outcome.
var ErrCrossOrigin = errors.New("bridge: child location is not readable")

// Window is a handle on a child browsing context.
type Window interface {
	// Location returns the child's current URL or ErrCrossOrigin.
	Location() (string, error)
	// Closed reports whether the child context no longer exists.
	Closed() bool
	// Close closes the child context. Closing an already closed window is a no-op.
	Close() error
	// Inject tries to run script inside the child context.
	Inject(script string) error
}

// BlockReporter is implemented by windows that learn explicitly that the
// popup was never allowed to open, however late that news arrives.
type BlockReporter interface {
	Blocked() bool
}

// Message is a postMessage-style event delivered to the opener.
type Message struct {
	Origin string
	Type   string
	URL    string
	Error  string
}

// Message types posted by the watcher script.
const (
	MessageSuccess = "partner-login:success"
	MessageError   = "partner-login:error"
)

// Host opens child contexts and delivers messages addressed to the opener.
type Host interface {
	// Open returns a nil Window (or an error) when the context could not be created.
	Open(ctx context.Context, url string, features Features) (Window, error)
	// Listen registers fn for opener messages and returns a function that removes it.
	Listen(fn func(Message)) (unlisten func())
}

// Features is the fixed, centered viewport of the login popup.
type Features struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Left   int `json:"left"`
	Top    int `json:"top"`
}

// Centered returns features for a width×height window centered on a screen of the given size.
func Centered(width, height, screenWidth, screenHeight int) Features {
	left := (screenWidth - width) / 2
	top := (screenHeight - height) / 2
	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}
	return Features{Width: width, Height: height, Left: left, Top: top}
}

// String renders the features in window.open() syntax.
func (f Features) String() string {
	return fmt.Sprintf("width=%d,height=%d,left=%d,top=%d,resizable=yes,scrollbars=yes", f.Width, f.Height, f.Left, f.Top)
}

// WatcherScript is injected into the child so it can report its own location.
// Under cross-origin restrictions injection fails and polling takes over.
func WatcherScript(targetOrigin, marker string) string {
	return fmt.Sprintf(`(function(){
  var marker = %q;
  function report(){
    try {
      var href = window.location.href;
      if (href.indexOf(marker) !== -1 && href.indexOf("/token:") !== -1) {
        window.opener.postMessage({type: %q, url: href}, %q);
        return true;
      }
    } catch (e) {
      window.opener.postMessage({type: %q, error: String(e)}, %q);
      return true;
    }
    return false;
  }
  if (!report()) {
    var t = setInterval(function(){ if (report()) clearInterval(t); }, 250);
  }
})();`, marker, MessageSuccess, targetOrigin, MessageError, targetOrigin)
}
