package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/retrotk/rtk-go/pkg/crypt"
	"github.com/retrotk/rtk-go/pkg/pump"
	"github.com/retrotk/rtk-go/pkg/session"
	"github.com/retrotk/rtk-go/pkg/tick"
	"github.com/retrotk/rtk-go/pkg/transport/transporttest"
	"github.com/retrotk/rtk-go/pkg/wire"
)

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) HandlePacket(now tick.Tick, s *session.Session, pkt wire.Packet) {
	m.Called(now, s.Slot(), pkt.Opcode, string(pkt.Payload))
}

var connIdx = crypt.Indexes{0x12, 0x34}

// clientFrame seals payload the way a peer would for a session created with
// seed and connIdx.
func clientFrame(t *testing.T, seed string, opcode byte, payload string) []byte {
	t.Helper()
	ks := crypt.NewKeySchedule(seed, connIdx, crypt.ClientToServer)
	frame, err := wire.Seal(opcode, 0, []byte(payload), ks, seed)
	require.NoError(t, err)
	return frame
}

func newSession(t *testing.T, reg *session.Registry, slot int, seed string) (*session.Session, *transporttest.Conn) {
	t.Helper()
	conn := transporttest.NewConn()
	_, err := reg.Create(slot, seed, session.WithConn(conn), session.WithIndexes(connIdx))
	require.NoError(t, err)
	s, _ := reg.Lookup(slot)
	return s, conn
}

func TestFrameSplitAcrossPumpPasses(t *testing.T) {
	reg := session.NewRegistry(8, nil)
	p := pump.New(pump.Config{Registry: reg})
	d := New(Config{Registry: reg})
	h := &mockHandler{}
	d.Handle(0x10, h)

	s, conn := newSession(t, reg, 3, "abc")
	frame := clientFrame(t, "abc", 0x10, "xyz")
	require.Len(t, frame, 10)
	head, tail := frame[:6], frame[6:]

	conn.Feed(head)
	p.Run(1)
	st := d.Run(1)
	assert.Zero(t, st.Frames, "no dispatch until the whole frame arrived")
	assert.Equal(t, head, s.Input(), "partial frame stays buffered untouched")
	h.AssertNotCalled(t, "HandlePacket", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	h.On("HandlePacket", tick.Tick(2), 3, byte(0x10), "xyz").Once()
	conn.Feed(tail)
	p.Run(2)
	st = d.Run(2)
	assert.Equal(t, 1, st.Frames)
	assert.Empty(t, s.Input())

	st = d.Run(3)
	assert.Zero(t, st.Frames, "dispatched exactly once")
	h.AssertExpectations(t)
	assert.Equal(t, session.StateActive, s.State())
}

func TestFinalFrameBeforePeerCloseIsDispatched(t *testing.T) {
	reg := session.NewRegistry(2, nil)
	p := pump.New(pump.Config{Registry: reg})
	d := New(Config{Registry: reg})
	h := &mockHandler{}
	d.Handle(0x01, h)

	s, conn := newSession(t, reg, 0, "abc")
	conn.Feed(clientFrame(t, "abc", 0x01, "logout"))
	conn.CloseRemote()

	h.On("HandlePacket", tick.Tick(1), 0, byte(0x01), "logout").Once()
	p.Run(1)
	st := d.Run(1)
	assert.Equal(t, 1, st.Frames)
	h.AssertExpectations(t)

	p.Run(2)
	assert.Equal(t, session.StateClosed, s.State())
	assert.True(t, conn.Closed())
	assert.Equal(t, 0, reg.Len())

	assert.Zero(t, d.Run(3).Frames)
	h.AssertNumberOfCalls(t, "HandlePacket", 1)
}

func TestMultipleFramesInOneBuffer(t *testing.T) {
	reg := session.NewRegistry(1, nil)
	d := New(Config{Registry: reg})
	s, _ := newSession(t, reg, 0, "abc")

	var got []string
	d.HandleFunc(0x01, func(_ tick.Tick, _ *session.Session, pkt wire.Packet) {
		got = append(got, string(pkt.Payload))
	})

	var in []byte
	in = append(in, clientFrame(t, "abc", 0x01, "one")...)
	in = append(in, clientFrame(t, "abc", 0x01, "")...)
	in = append(in, clientFrame(t, "abc", 0x01, "three")...)
	partial := clientFrame(t, "abc", 0x01, "four")
	in = append(in, partial[:5]...)
	s.AppendInput(in)

	st := d.Run(0)
	assert.Equal(t, 3, st.Frames)
	assert.Equal(t, []string{"one", "", "three"}, got)
	assert.Equal(t, partial[:5], s.Input())
}

func TestOversizeFrameTearsDownOnlyThatSession(t *testing.T) {
	reg := session.NewRegistry(4, nil)
	d := New(Config{Registry: reg, MaxFrameLength: 64})
	h := &mockHandler{}
	d.Handle(0x20, h)

	bad, badConn := newSession(t, reg, 0, "abc")
	good, _ := newSession(t, reg, 1, "abc")

	bad.AppendInput([]byte{wire.Magic, 0x01, 0x00, 0x20, 0x00})
	good.AppendInput(clientFrame(t, "abc", 0x20, "still here"))
	h.On("HandlePacket", tick.Tick(7), 1, byte(0x20), "still here").Once()

	st := d.Run(7)
	assert.Equal(t, 1, st.Malformed)
	assert.Equal(t, 1, st.Frames)
	assert.Equal(t, session.StateClosed, bad.State())
	assert.True(t, badConn.Closed())
	assert.ErrorIs(t, bad.Cause(), wire.ErrFrameTooLarge)
	assert.Equal(t, session.StateActive, good.State())
	assert.Equal(t, 1, reg.Len())
	h.AssertExpectations(t)
}

func TestBadMagicTearsDown(t *testing.T) {
	reg := session.NewRegistry(1, nil)
	d := New(Config{Registry: reg})
	s, _ := newSession(t, reg, 0, "abc")
	s.AppendInput([]byte{0x00})

	st := d.Run(0)
	assert.Equal(t, 1, st.Malformed)
	assert.ErrorIs(t, s.Cause(), wire.ErrBadMagic)
	assert.Equal(t, 0, reg.Len())
}

func TestShortLengthTearsDown(t *testing.T) {
	reg := session.NewRegistry(1, nil)
	d := New(Config{Registry: reg})
	s, _ := newSession(t, reg, 0, "abc")
	s.AppendInput([]byte{wire.Magic, 0x00, 0x02})

	d.Run(0)
	assert.ErrorIs(t, s.Cause(), wire.ErrLengthTooShort)
}

func TestDefaultHandler(t *testing.T) {
	reg := session.NewRegistry(1, nil)
	d := New(Config{Registry: reg})
	s, _ := newSession(t, reg, 0, "abc")
	s.AppendInput(clientFrame(t, "abc", 0x99, "nobody listens"))

	st := d.Run(0)
	assert.Equal(t, 1, st.Frames)
	assert.Equal(t, session.StateActive, s.State(), "unknown opcodes are dropped, not fatal")

	h := &mockHandler{}
	h.On("HandlePacket", tick.Tick(1), 0, byte(0x98), "custom").Once()
	d.SetDefault(h)
	s.AppendInput(clientFrame(t, "abc", 0x98, "custom"))
	d.Run(1)
	h.AssertExpectations(t)

	d.SetDefault(nil)
	s.AppendInput(clientFrame(t, "abc", 0x98, "custom"))
	assert.Equal(t, 1, d.Run(2).Frames)
	h.AssertNumberOfCalls(t, "HandlePacket", 1)
}

func TestHandlerPanicTearsDownSession(t *testing.T) {
	reg := session.NewRegistry(2, nil)
	d := New(Config{Registry: reg})
	d.HandleFunc(0x01, func(_ tick.Tick, s *session.Session, _ wire.Packet) {
		if s.Slot() == 0 {
			panic("boom")
		}
	})
	bad, _ := newSession(t, reg, 0, "abc")
	good, _ := newSession(t, reg, 1, "abc")
	bad.AppendInput(clientFrame(t, "abc", 0x01, "a"))
	good.AppendInput(clientFrame(t, "abc", 0x01, "b"))

	var st Stats
	require.NotPanics(t, func() { st = d.Run(0) })
	assert.Equal(t, 1, st.Panics)
	assert.ErrorIs(t, bad.Cause(), ErrHandlerPanic)
	assert.Equal(t, session.StateClosed, bad.State())
	assert.Equal(t, session.StateActive, good.State())
}

func TestHandlerMayReplyAndTeardown(t *testing.T) {
	reg := session.NewRegistry(1, nil)
	d := New(Config{Registry: reg})
	s, conn := newSession(t, reg, 0, "abc")

	d.HandleFunc(0x05, func(_ tick.Tick, s *session.Session, pkt wire.Packet) {
		require.NoError(t, s.Send(0x06, pkt.Payload))
		reg.Teardown(s.Slot(), nil)
	})
	s.AppendInput(clientFrame(t, "abc", 0x05, "ping"))
	s.AppendInput(clientFrame(t, "abc", 0x05, "never"))

	st := d.Run(0)
	assert.Equal(t, 1, st.Frames, "no frames dispatched once the session is closing")
	assert.Equal(t, session.StateClosing, s.State())

	pump.New(pump.Config{Registry: reg}).Run(1)
	assert.Equal(t, session.StateClosed, s.State())

	reply := conn.Written.Bytes()
	pkt, err := wire.Open(reply, crypt.NewKeySchedule("abc", connIdx, crypt.ServerToClient), "abc")
	require.NoError(t, err)
	assert.Equal(t, byte(0x06), pkt.Opcode)
	assert.Equal(t, "ping", string(pkt.Payload))
}

func TestClosingSessionsAreNotDispatched(t *testing.T) {
	reg := session.NewRegistry(1, nil)
	d := New(Config{Registry: reg})
	s, _ := newSession(t, reg, 0, "abc")
	require.NoError(t, s.Enqueue([]byte{1}))
	s.AppendInput(clientFrame(t, "abc", 0x01, "x"))
	reg.Teardown(0, nil)

	assert.Zero(t, d.Run(0).Frames)
}
