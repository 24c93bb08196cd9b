package eventport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcornwell/devcoord/platform"
)

type fakeHandler struct {
	ch       platform.Channel
	handled  []Signal
	handleFn func(Signal) error
}

func (f *fakeHandler) Channel() platform.Channel { return f.ch }

func (f *fakeHandler) Handle(signals Signal) error {
	f.handled = append(f.handled, signals)
	if f.handleFn != nil {
		return f.handleFn(signals)
	}
	return nil
}

func TestDispatchTimesOutWhenNothingReady(t *testing.T) {
	port := NewPort()
	a, b := platform.NewChannelPair()
	defer a.Close()
	defer b.Close()
	require.NoError(t, port.Watch(&fakeHandler{ch: a}))

	err := port.Dispatch(0)
	assert.True(t, errors.Is(err, ErrTimedOut))
}

func TestDispatchDeliversReadable(t *testing.T) {
	port := NewPort()
	a, b := platform.NewChannelPair()
	defer a.Close()
	defer b.Close()

	h := &fakeHandler{ch: a}
	require.NoError(t, port.Watch(h))
	require.NoError(t, b.Send(platform.Frame{Data: []byte("x")}))

	err := port.Dispatch(0)
	require.NoError(t, err)
	require.Len(t, h.handled, 1)
	assert.NotZero(t, h.handled[0]&Readable)
}

func TestDispatchDeliversPeerClosed(t *testing.T) {
	port := NewPort()
	a, b := platform.NewChannelPair()
	defer a.Close()

	h := &fakeHandler{ch: a}
	require.NoError(t, port.Watch(h))
	require.NoError(t, b.Close())

	err := port.Dispatch(0)
	require.NoError(t, err)
	require.Len(t, h.handled, 1)
	assert.NotZero(t, h.handled[0]&PeerClosed)
}

func TestDispatchBlocksUntilReadable(t *testing.T) {
	port := NewPort()
	a, b := platform.NewChannelPair()
	defer a.Close()
	defer b.Close()
	require.NoError(t, port.Watch(&fakeHandler{ch: a}))

	go func() {
		time.Sleep(5 * time.Millisecond)
		b.Send(platform.Frame{Data: []byte("x")})
	}()

	err := port.Dispatch(200 * time.Millisecond)
	assert.NoError(t, err)
}

func TestWatchRejectsDoubleArm(t *testing.T) {
	port := NewPort()
	a, b := platform.NewChannelPair()
	defer a.Close()
	defer b.Close()

	require.NoError(t, port.Watch(&fakeHandler{ch: a}))
	err := port.Watch(&fakeHandler{ch: a})
	assert.Error(t, err)
}

func TestDispatchAutoDisarmsOnHandlerError(t *testing.T) {
	port := NewPort()
	a, b := platform.NewChannelPair()
	defer a.Close()
	defer b.Close()

	boom := errors.New("boom")
	h := &fakeHandler{ch: a, handleFn: func(Signal) error { return boom }}
	require.NoError(t, port.Watch(h))
	require.NoError(t, b.Send(platform.Frame{Data: []byte("x")}))

	err := port.Dispatch(0)
	assert.ErrorIs(t, err, boom)

	// Disarmed: re-watching the same channel must now succeed.
	require.NoError(t, port.Watch(&fakeHandler{ch: a}))
}

func TestDispatchSkipsClosedChannel(t *testing.T) {
	port := NewPort()
	a, _ := platform.NewChannelPair()
	require.NoError(t, port.Watch(&fakeHandler{ch: a}))
	require.NoError(t, a.Close())

	err := port.Dispatch(0)
	assert.True(t, errors.Is(err, ErrTimedOut))
}
