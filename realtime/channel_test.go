package realtime_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-tenant-session/credentials"
	credmem "github.com/jrsteele09/go-tenant-session/credentials/memstore"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/realtime"
	"github.com/jrsteele09/go-tenant-session/tenants"
)

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	f.stopped = true
	return true
}

// fakeScheduler records timers; the test fires them by hand.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) realtime.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, timer)
	return timer
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	delays := make([]time.Duration, 0, len(s.timers))
	for _, timer := range s.timers {
		delays = append(delays, timer.delay)
	}
	return delays
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

type frame struct {
	data []byte
	err  error
}

type fakeConn struct {
	frames chan frame
	mu     sync.Mutex
	writes [][]byte
	closed bool
	once   sync.Once

	writing chan struct{} // Signalled when a write starts, if set
	release chan struct{} // Writes block until closed, if set
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan frame, 16)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	fr, ok := <-f.frames
	if !ok {
		return 0, nil, fmt.Errorf("use of closed connection")
	}
	return websocket.TextMessage, fr.data, fr.err
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	if f.writing != nil {
		f.writing <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("write on closed connection")
	}
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.once.Do(func() { close(f.frames) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

type staticContext tenants.ActiveContext

func (s staticContext) Get() tenants.ActiveContext {
	return tenants.ActiveContext(s)
}

type dialRecorder struct {
	mu        sync.Mutex
	endpoints []string
	next      func() (realtime.Conn, error)
}

func (d *dialRecorder) dial(_ context.Context, endpoint string) (realtime.Conn, error) {
	d.mu.Lock()
	d.endpoints = append(d.endpoints, endpoint)
	next := d.next
	d.mu.Unlock()
	return next()
}

func (d *dialRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.endpoints)
}

func newChannel(t *testing.T, dialer *dialRecorder, scheduler *fakeScheduler) *realtime.Channel {
	t.Helper()
	creds := credmem.New()
	require.NoError(t, creds.Set(context.Background(), credentials.Credential{AccessToken: "T1"}))
	ch, err := realtime.New("https://api.example.org/message/", creds,
		staticContext{EstablishmentID: "E1", Role: tenants.RoleTeacher},
		realtime.WithDialer(dialer.dial),
		realtime.WithScheduler(scheduler),
	)
	require.NoError(t, err)
	return ch
}

func failingDial() (realtime.Conn, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestChannel_BackoffSchedule(t *testing.T) {
	scheduler := &fakeScheduler{}
	dialer := &dialRecorder{next: failingDial}
	ch := newChannel(t, dialer, scheduler)

	err := ch.Connect(context.Background())
	require.ErrorIs(t, err, errors.ErrConnectionFailed)

	// Each fired timer fails to dial again and schedules the next one.
	for i := 0; i < 10; i++ {
		timer := scheduler.last()
		if timer == nil || timer.stopped {
			break
		}
		timer.stopped = true
		timer.fn()
	}

	require.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, scheduler.delays())
	require.Equal(t, 6, dialer.count())
	require.Equal(t, 5, ch.Attempts())
	require.Equal(t, realtime.StateClosed, ch.State())
}

func TestChannel_ConnectResetsAttempts(t *testing.T) {
	scheduler := &fakeScheduler{}
	conn := newFakeConn()
	fail := true
	dialer := &dialRecorder{}
	dialer.next = func() (realtime.Conn, error) {
		if fail {
			return failingDial()
		}
		return conn, nil
	}
	ch := newChannel(t, dialer, scheduler)

	require.Error(t, ch.Connect(context.Background()))
	require.Equal(t, 1, ch.Attempts())

	fail = false
	scheduler.last().fn()
	require.True(t, ch.IsConnected())
	require.Equal(t, 0, ch.Attempts())
	require.Equal(t, time.Second, ch.NextDelay())
	require.Equal(t, "wss://api.example.org/message/ws?etab_id=E1&role=teacher&token=T1", dialer.endpoints[0])
	ch.Disconnect()
}

func TestChannel_NormalClosureDoesNotReconnect(t *testing.T) {
	scheduler := &fakeScheduler{}
	conn := newFakeConn()
	dialer := &dialRecorder{next: func() (realtime.Conn, error) { return conn, nil }}
	ch := newChannel(t, dialer, scheduler)
	require.NoError(t, ch.Connect(context.Background()))

	conn.frames <- frame{err: &websocket.CloseError{Code: websocket.CloseNormalClosure}}
	require.Eventually(t, func() bool { return ch.State() == realtime.StateClosed }, time.Second, 5*time.Millisecond)
	require.Empty(t, scheduler.delays())
}

func TestChannel_AbnormalClosureReconnects(t *testing.T) {
	scheduler := &fakeScheduler{}
	conn := newFakeConn()
	dialer := &dialRecorder{next: func() (realtime.Conn, error) { return conn, nil }}
	ch := newChannel(t, dialer, scheduler)
	require.NoError(t, ch.Connect(context.Background()))

	conn.frames <- frame{err: &websocket.CloseError{Code: websocket.CloseGoingAway}}
	require.Eventually(t, func() bool { return len(scheduler.delays()) == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, time.Second, scheduler.delays()[0])
	require.Equal(t, realtime.StateClosed, ch.State())

	t.Run("disconnect cancels pending reconnect", func(t *testing.T) {
		ch.Disconnect()
		require.True(t, scheduler.last().stopped)

		// A timer that already fired must not revive the channel.
		scheduler.last().fn()
		require.Equal(t, realtime.StateClosed, ch.State())
		require.Equal(t, 1, dialer.count())
	})
}

func TestChannel_DisconnectSendsNormalClosure(t *testing.T) {
	scheduler := &fakeScheduler{}
	conn := newFakeConn()
	dialer := &dialRecorder{next: func() (realtime.Conn, error) { return conn, nil }}
	ch := newChannel(t, dialer, scheduler)
	require.NoError(t, ch.Connect(context.Background()))

	ch.Disconnect()
	require.Equal(t, realtime.StateClosed, ch.State())

	writes := conn.written()
	require.Len(t, writes, 1)
	require.Equal(t, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"), writes[0])
	require.Empty(t, scheduler.delays())
}

func TestChannel_ConnectWhileClosing(t *testing.T) {
	scheduler := &fakeScheduler{}
	first := newFakeConn()
	first.writing = make(chan struct{}, 1)
	first.release = make(chan struct{})
	second := newFakeConn()

	dialer := &dialRecorder{}
	dialer.next = func() (realtime.Conn, error) {
		if dialer.count() == 1 {
			return first, nil
		}
		return second, nil
	}
	ch := newChannel(t, dialer, scheduler)
	require.NoError(t, ch.Connect(context.Background()))

	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		ch.Disconnect()
	}()

	// The close frame is being written to the first connection.
	<-first.writing
	require.Equal(t, realtime.StateClosing, ch.State())

	require.NoError(t, ch.Connect(context.Background()))
	require.True(t, ch.IsConnected())

	close(first.release)
	<-disconnected

	require.Equal(t, realtime.StateOpen, ch.State())
	require.True(t, first.isClosed())
	require.False(t, second.isClosed())
	require.NoError(t, ch.Send("ping", nil))

	require.NoError(t, ch.Connect(context.Background()))
	require.Equal(t, 2, dialer.count())

	ch.Disconnect()
	require.Equal(t, realtime.StateClosed, ch.State())
	require.True(t, second.isClosed())
}

func TestChannel_Send(t *testing.T) {
	scheduler := &fakeScheduler{}
	conn := newFakeConn()
	dialer := &dialRecorder{next: func() (realtime.Conn, error) { return conn, nil }}
	ch := newChannel(t, dialer, scheduler)

	t.Run("while closed", func(t *testing.T) {
		require.ErrorIs(t, ch.Send("ping", nil), errors.ErrSendWhileClosed)
	})

	require.NoError(t, ch.Connect(context.Background()))
	defer ch.Disconnect()

	realtime.NowTimeFunc = func() time.Time { return time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { realtime.NowTimeFunc = time.Now })

	require.NoError(t, ch.SendTyping("C1", true))
	require.NoError(t, ch.UpdatePresence(realtime.PresenceAway))

	writes := conn.written()
	require.Len(t, writes, 2)
	require.JSONEq(t, `{"type":"typing_start","payload":{"conversationId":"C1","timestamp":"2026-01-01T09:00:00Z"}}`, string(writes[0]))
	require.JSONEq(t, `{"type":"presence_update","payload":{"status":"away","timestamp":"2026-01-01T09:00:00Z"}}`, string(writes[1]))
}

func TestChannel_Dispatch(t *testing.T) {
	scheduler := &fakeScheduler{}
	conn := newFakeConn()
	dialer := &dialRecorder{next: func() (realtime.Conn, error) { return conn, nil }}
	ch := newChannel(t, dialer, scheduler)

	received := make(chan realtime.MessageReceivedPayload, 4)
	ch.On(realtime.EventMessageReceived, func(json.RawMessage) {
		panic("listener bug")
	})
	ch.On(realtime.EventMessageReceived, func(payload json.RawMessage) {
		msg, err := realtime.Decode[realtime.MessageReceivedPayload](payload)
		if err != nil {
			t.Error(err)
		}
		received <- msg
	})
	removed := ch.On(realtime.EventTypingStart, func(json.RawMessage) {
		t.Error("removed listener called")
	})
	ch.Off(removed)

	require.NoError(t, ch.Connect(context.Background()))
	defer ch.Disconnect()

	conn.frames <- frame{data: []byte("not json")}
	conn.frames <- frame{data: []byte(`{"type":"typing_start","payload":{"conversationId":"C1"}}`)}
	conn.frames <- frame{data: []byte(`{"type":"message_received","payload":{"conversationId":"C1","message":{"id":"M1","content":"hi"}}}`)}

	select {
	case msg := <-received:
		require.Equal(t, "C1", msg.ConversationID)
		require.Equal(t, "hi", msg.Message.Content)
	case <-time.After(time.Second):
		t.Fatal("message not dispatched")
	}
	require.True(t, ch.IsConnected())

	t.Run("listeners change from inside a dispatch", func(t *testing.T) {
		conn := newFakeConn()
		dialer := &dialRecorder{next: func() (realtime.Conn, error) { return conn, nil }}
		ch := newChannel(t, dialer, &fakeScheduler{})

		var firstCalls atomic.Int32
		replaced := make(chan string, 4)
		var first realtime.Subscription
		first = ch.On(realtime.EventTypingStart, func(json.RawMessage) {
			firstCalls.Add(1)
			ch.Off(first)
			ch.On(realtime.EventTypingStart, func(payload json.RawMessage) {
				p, err := realtime.Decode[realtime.TypingPayload](payload)
				if err != nil {
					t.Error(err)
				}
				replaced <- p.ConversationID
			})
		})

		require.NoError(t, ch.Connect(context.Background()))
		defer ch.Disconnect()

		conn.frames <- frame{data: []byte(`{"type":"typing_start","payload":{"conversationId":"C1"}}`)}
		conn.frames <- frame{data: []byte(`{"type":"typing_start","payload":{"conversationId":"C2"}}`)}

		select {
		case id := <-replaced:
			require.Equal(t, "C2", id)
		case <-time.After(time.Second):
			t.Fatal("replacement listener not called")
		}
		require.Equal(t, int32(1), firstCalls.Load())
		require.Empty(t, replaced)
	})
}

func TestChannel_ConcurrentConnectDialsOnce(t *testing.T) {
	scheduler := &fakeScheduler{}
	conn := newFakeConn()
	release := make(chan struct{})
	dialer := &dialRecorder{next: func() (realtime.Conn, error) {
		<-release
		return conn, nil
	}}
	ch := newChannel(t, dialer, scheduler)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ch.Connect(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return dialer.count() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, dialer.count())
	require.True(t, ch.IsConnected())
	ch.Disconnect()
}
