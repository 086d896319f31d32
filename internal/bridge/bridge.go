// Package bridge drives the interactive popup login against the Partner.
//
// An attempt has two completion sources armed at the same time: messages posted
// by a watcher script injected into the popup, and a ticker polling the popup's
// location. A third watchdog (closed/timeout) runs on the same ticker. Whichever
// fires first settles the attempt; every later signal is a no-op.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pilab-dev/partner-sso/domain"
	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/rs/zerolog/log"
)

// Phase is the state of a login attempt.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseOpening
	PhasePopupBlocked
	PhaseOpen
	PhasePolling
	PhaseResolved
	PhaseFailed
)

var phaseNames = [...]string{"idle", "opening", "popup_blocked", "open", "polling", "resolved", "failed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Terminal reports whether no further transition can happen.
func (p Phase) Terminal() bool {
	return p == PhaseResolved || p == PhaseFailed || p == PhasePopupBlocked
}

// Options configures a Bridge.
type Options struct {
	// Interval between polls of the popup.
	Interval time.Duration
	// MaxTicks bounds the attempt to roughly MaxTicks × Interval.
	MaxTicks int
	// PopupGrace is how long after opening a closed popup counts as blocked rather than closed by the user.
	PopupGrace time.Duration
	Features   Features
	// SuccessMarker is the path fragment identifying the Partner's success page.
	SuccessMarker string
	// TargetOrigin is the opener's origin, used by the watcher script's postMessage.
	TargetOrigin string
	// AllowedOrigins lists message origins that may settle an attempt. Empty accepts any.
	AllowedOrigins []string
}

// DefaultOptions polls every 500ms for at most 300 ticks (about 150s).
func DefaultOptions() Options {
	return Options{
		Interval:      500 * time.Millisecond,
		MaxTicks:      300,
		PopupGrace:    time.Second,
		Features:      Centered(500, 600, 1366, 768),
		SuccessMarker: DefaultSuccessMarker,
	}
}

// WithDefaults fills unset fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.MaxTicks <= 0 {
		o.MaxTicks = d.MaxTicks
	}
	if o.PopupGrace < 0 {
		o.PopupGrace = 0
	}
	if o.Features == (Features{}) {
		o.Features = d.Features
	}
	if o.SuccessMarker == "" {
		o.SuccessMarker = d.SuccessMarker
	}
	return o
}

// Result is the successful outcome of an attempt.
type Result struct {
	AttemptID  string
	Credential domain.BearerCredential
	Identity   *domain.ExternalIdentity
}

// Bridge starts login attempts through a Host.
type Bridge struct {
	host Host
	opts Options
}

// New creates a Bridge.
func New(host Host, opts Options) *Bridge {
	return &Bridge{host: host, opts: opts.WithDefaults()}
}

// Options returns the effective options.
func (b *Bridge) Options() Options {
	return b.opts
}

// Start opens the popup at loginURL and blocks until the attempt is resolved or failed.
// It returns exactly one outcome and releases the popup, ticker and listener on every path.
func (b *Bridge) Start(ctx context.Context, loginURL string) (*Result, error) {
	return b.StartAttempt(ctx, uuid.NewString(), loginURL)
}

// StartAttempt is Start with a caller-chosen attempt id.
func (b *Bridge) StartAttempt(ctx context.Context, attemptID, loginURL string) (*Result, error) {
	s := newSession(attemptID, b.opts)
	s.setPhase(PhaseOpening)

	win, err := b.host.Open(ctx, loginURL, b.opts.Features)
	if err != nil || win == nil || win.Closed() {
		if win != nil {
			_ = win.Close()
		}
		s.setPhase(PhasePopupBlocked)
		if err == nil {
			err = errors.New("child context unavailable")
		}
		return nil, serrors.New(serrors.KindPopupBlocked, "bridge.start", err)
	}

	s.window = win
	s.openedAt = time.Now()
	s.setPhase(PhaseOpen)
	s.ticker = time.NewTicker(b.opts.Interval)
	// A host may deliver buffered messages from inside Listen, settling the attempt already.
	s.setUnlisten(b.host.Listen(s.onMessage))

	if !s.settled.Load() {
		if err := win.Inject(WatcherScript(b.opts.TargetOrigin, b.opts.SuccessMarker)); err != nil {
			log.Debug().Err(err).Str("attempt", s.id).Msg("watcher injection failed, relying on polling")
		}
		s.phase.CompareAndSwap(int32(PhaseOpen), int32(PhasePolling))
	}
	return s.run(ctx)
}

type session struct {
	id   string
	opts Options

	window   Window
	ticker   *time.Ticker
	openedAt time.Time
	ticks    int // owned by run

	phase   atomic.Int32
	settled atomic.Bool
	once    sync.Once
	done    chan struct{}

	mu       sync.Mutex
	unlisten func()
	disposed bool

	// Written once by the goroutine that wins settled, read after done is closed.
	result *Result
	err    error
}

func newSession(id string, opts Options) *session {
	return &session{id: id, opts: opts, done: make(chan struct{})}
}

func (s *session) setPhase(p Phase) {
	old := Phase(s.phase.Swap(int32(p)))
	if old != p {
		log.Debug().Str("attempt", s.id).Stringer("from", old).Stringer("to", p).Msg("bridge transition")
	}
}

func (s *session) run(ctx context.Context) (*Result, error) {
	for {
		select {
		case <-s.done:
			return s.result, s.err
		case <-ctx.Done():
			s.fail(serrors.New(serrors.KindCancelled, "bridge.start", ctx.Err()))
		case <-s.ticker.C:
			s.tick()
		}
	}
}

func (s *session) tick() {
	if s.settled.Load() {
		return
	}
	s.ticks++

	if br, ok := s.window.(BlockReporter); ok && br.Blocked() {
		s.fail(serrors.Newf(serrors.KindPopupBlocked, "bridge.poll", "child context was blocked"))
		return
	}
	if s.window.Closed() {
		if time.Since(s.openedAt) < s.opts.PopupGrace {
			s.fail(serrors.Newf(serrors.KindPopupBlocked, "bridge.poll", "child closed within %s of opening", s.opts.PopupGrace))
			return
		}
		s.fail(serrors.New(serrors.KindPopupClosed, "bridge.poll", nil))
		return
	}

	if s.ticks > s.opts.MaxTicks {
		s.fail(serrors.Newf(serrors.KindTimeout, "bridge.poll", "no result after %d ticks of %s", s.opts.MaxTicks, s.opts.Interval))
		return
	}

	loc, err := s.window.Location()
	if err != nil {
		if !errors.Is(err, ErrCrossOrigin) {
			log.Debug().Err(err).Str("attempt", s.id).Msg("reading child location failed")
		}
		return
	}
	if IsSuccessURL(loc, s.opts.SuccessMarker) {
		s.settleURL(loc)
	}
}

func (s *session) onMessage(m Message) {
	if s.settled.Load() {
		return
	}
	if len(s.opts.AllowedOrigins) > 0 && !slices.Contains(s.opts.AllowedOrigins, m.Origin) {
		log.Debug().Str("attempt", s.id).Str("origin", m.Origin).Msg("ignoring message from unexpected origin")
		return
	}

	switch m.Type {
	case MessageSuccess:
		s.settleURL(m.URL)
	case MessageError:
		s.fail(serrors.Newf(serrors.KindPartnerError, "bridge.message", "%s", m.Error))
	}
}

func (s *session) settleURL(raw string) {
	cred, identity, err := ParseSuccessURL(raw)
	if err != nil {
		s.fail(err)
		return
	}
	s.settle(&Result{AttemptID: s.id, Credential: cred, Identity: identity}, nil)
}

func (s *session) fail(err error) {
	s.settle(nil, err)
}

func (s *session) setUnlisten(fn func()) {
	s.mu.Lock()
	if !s.disposed {
		s.unlisten = fn
		fn = nil
	}
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// settle records the outcome if no other signal got there first.
func (s *session) settle(res *Result, err error) {
	if !s.settled.CompareAndSwap(false, true) {
		return
	}
	s.result, s.err = res, err
	if err != nil {
		s.setPhase(PhaseFailed)
		log.Info().Str("attempt", s.id).Str("kind", string(serrors.KindOf(err))).Msg("partner login attempt failed")
	} else {
		s.setPhase(PhaseResolved)
		log.Info().Str("attempt", s.id).Object("credential", res.Credential).Msg("partner login attempt resolved")
	}
	s.dispose()
}

// dispose releases every resource of the attempt. It is safe to call from any path, any number of times.
func (s *session) dispose() {
	s.once.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		s.mu.Lock()
		s.disposed = true
		unlisten := s.unlisten
		s.mu.Unlock()
		if unlisten != nil {
			unlisten()
		}
		if s.window != nil && !s.window.Closed() {
			if err := s.window.Close(); err != nil {
				log.Debug().Err(err).Str("attempt", s.id).Msg("closing child window failed")
			}
		}
		close(s.done)
	})
}
