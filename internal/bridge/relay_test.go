package bridge

import (
	"context"
	"testing"
	"time"

	serrors "github.com/pilab-dev/partner-sso/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_WindowState(t *testing.T) {
	r := NewRelay()
	w, err := r.Open(context.Background(), "https://partner.example/login", Centered(500, 600, 1000, 800))
	require.NoError(t, err)

	_, err = w.Location()
	assert.ErrorIs(t, err, ErrCrossOrigin)

	r.Report(Event{Type: EventLocation, URL: successURL})
	loc, err := w.Location()
	require.NoError(t, err)
	assert.Equal(t, successURL, loc)

	r.Report(Event{Type: EventCrossOrigin})
	_, err = w.Location()
	assert.ErrorIs(t, err, ErrCrossOrigin)

	assert.False(t, w.Closed())
	require.NoError(t, w.Close())
	assert.True(t, w.Closed())
	assert.True(t, r.Status().CloseRequested)
	assert.Equal(t, "https://partner.example/login", r.Status().LoginURL)
}

func TestRelay_DrivesBridgeByMessage(t *testing.T) {
	r := NewRelay()
	opts := testOptions()
	ch := make(chan outcome, 1)
	go func() {
		res, err := New(r, opts).Start(context.Background(), "https://partner.example/login")
		ch <- outcome{res, err}
	}()

	select {
	case <-r.Opened():
	case <-time.After(time.Second):
		t.Fatal("relay was never opened")
	}
	require.Eventually(t, func() bool { return r.Status().WatcherScript != "" }, time.Second, time.Millisecond)

	r.Report(Event{Type: EventMessage, MessageType: MessageSuccess, URL: successURL})

	o := waitOutcome(t, ch)
	require.NoError(t, o.err)
	assert.Equal(t, "42", o.res.Identity.ExternalUserID)
	assert.True(t, r.Status().CloseRequested)
}

func TestRelay_BlockedBeforeOpen(t *testing.T) {
	r := NewRelay()
	r.Report(Event{Type: EventBlocked})

	_, err := New(r, testOptions()).Start(context.Background(), "https://partner.example/login")
	assert.ErrorIs(t, err, serrors.ErrPopupBlocked)
}

func TestRelay_LateBlockIsNotAClose(t *testing.T) {
	r := NewRelay()
	opts := testOptions()
	opts.PopupGrace = 0

	ch := make(chan outcome, 1)
	go func() {
		res, err := New(r, opts).Start(context.Background(), "https://partner.example/login")
		ch <- outcome{res, err}
	}()
	<-r.Opened()
	time.Sleep(3 * opts.Interval)
	r.Report(Event{Type: EventBlocked})

	o := waitOutcome(t, ch)
	assert.ErrorIs(t, o.err, serrors.ErrPopupBlocked)
}

func TestRelay_BuffersMessagesUntilListened(t *testing.T) {
	r := NewRelay()
	r.Report(Event{Type: EventMessage, Origin: "https://partner.example", MessageType: MessageSuccess, URL: successURL})

	var got []Message
	unlisten := r.Listen(func(m Message) { got = append(got, m) })
	defer unlisten()

	require.Len(t, got, 1)
	assert.Equal(t, successURL, got[0].URL)
	assert.Equal(t, "https://partner.example", got[0].Origin)
}

func TestRelay_DropsMessagesAfterSettle(t *testing.T) {
	r := NewRelay()

	ch := make(chan outcome, 1)
	go func() {
		res, err := New(r, testOptions()).Start(context.Background(), "https://partner.example/login")
		ch <- outcome{res, err}
	}()
	<-r.Opened()
	require.Eventually(t, func() bool { return r.Status().WatcherScript != "" }, time.Second, time.Millisecond)

	r.Report(Event{Type: EventMessage, MessageType: MessageSuccess, URL: successURL})
	o := waitOutcome(t, ch)
	require.NoError(t, o.err)

	for range 50 {
		r.Report(Event{Type: EventMessage, MessageType: MessageSuccess, URL: successURL})
	}
	assert.Zero(t, r.Pending())
}

func TestRelay_CapsPendingMessages(t *testing.T) {
	r := NewRelay()
	for range 3 * maxPending {
		r.Report(Event{Type: EventMessage, MessageType: MessageError, Error: "x"})
	}
	assert.Equal(t, maxPending, r.Pending())
}
