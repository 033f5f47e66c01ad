package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erilali/liveactivity/internal/logger"
	"github.com/erilali/liveactivity/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu      sync.Mutex
	sendErr error
	sent    [][]byte
	closed  bool
}

func (s *fakeSocket) TrySend(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, payload)
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

func (s *fakeSocket) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, p := range s.sent {
		out[i] = string(p)
	}
	return out
}

func (s *fakeSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fixedSalts struct {
	mu   sync.Mutex
	next uint64
}

func (f *fixedSalts) Next() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return f.next
}

func testHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(&fixedSalts{}, DefaultOptions(), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return h
}

func register(t *testing.T, h *Hub, salt uint64) (*Client, *fakeSocket) {
	t.Helper()
	socket := &fakeSocket{}
	client := NewClient(socket, salt)
	require.NoError(t, h.Register(context.Background(), client))
	return client, socket
}

func expected(t *testing.T, event message.BrokerEvent, salt uint64) string {
	t.Helper()
	data, err := message.EncodeClientMessage(message.Translate(event, salt))
	require.NoError(t, err)
	return string(data)
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	h := testHub(t)
	_, a := register(t, h, 11)
	_, b := register(t, h, 22)
	_, c := register(t, h, 33)

	event := message.Received{EventID: 42, IRCUserName: "alice"}
	report, err := h.BroadcastAndReap(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, Report{Delivered: 3}, report)
	assert.Equal(t, []string{expected(t, event, 11)}, a.messages())
	assert.Equal(t, []string{expected(t, event, 22)}, b.messages())
	assert.Equal(t, []string{expected(t, event, 33)}, c.messages())
	assert.NotEqual(t, a.messages()[0], b.messages()[0], "pseudonyms should differ per connection")
}

func TestHub_ReapRemovesOnlyFailingClients(t *testing.T) {
	h := testHub(t)
	_, a := register(t, h, 1)
	_, b := register(t, h, 2)
	_, c := register(t, h, 3)
	b.setErr(ErrSocketClosed)

	report, err := h.BroadcastAndReap(context.Background(), message.ReceivedDetails{EventID: 1, Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, Report{Delivered: 2, Reaped: 1}, report)
	assert.Equal(t, 2, h.Len())
	assert.True(t, b.isClosed())
	assert.False(t, a.isClosed())
	assert.False(t, c.isClosed())

	// B is gone: even once its socket recovers it is not offered the next event.
	b.setErr(nil)
	report, err = h.BroadcastAndReap(context.Background(), message.ReceivedDetails{EventID: 2, Text: "again"})
	require.NoError(t, err)
	assert.Equal(t, Report{Delivered: 2}, report)
	assert.Empty(t, b.messages())
	assert.Len(t, a.messages(), 2)
	assert.Len(t, c.messages(), 2)
}

func TestHub_AnyOtherErrorReaps(t *testing.T) {
	h := testHub(t)
	_, a := register(t, h, 1)
	a.setErr(errors.New("write: broken pipe"))

	report, err := h.BroadcastAndReap(context.Background(), message.Received{EventID: 1, IRCUserName: "x"})
	require.NoError(t, err)

	assert.Equal(t, Report{Reaped: 1}, report)
	assert.Equal(t, 0, h.Len())
	assert.True(t, a.isClosed())
}

func TestHub_BackpressureRetainsClient(t *testing.T) {
	h := testHub(t)
	_, a := register(t, h, 1)
	_, b := register(t, h, 2)
	b.setErr(ErrSendQueueFull)

	first := message.Sent{EventID: 1, IRCUserName: "bob"}
	report, err := h.BroadcastAndReap(context.Background(), first)
	require.NoError(t, err)

	assert.Equal(t, Report{Delivered: 1, Dropped: 1}, report)
	assert.Equal(t, 2, h.Len())
	assert.False(t, b.isClosed())
	assert.Empty(t, b.messages())

	b.setErr(nil)
	second := message.Sent{EventID: 2, IRCUserName: "bob"}
	_, err = h.BroadcastAndReap(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, []string{expected(t, second, 2)}, b.messages())
	assert.Equal(t, []string{expected(t, first, 1), expected(t, second, 1)}, a.messages())
}

func TestHub_WrappedBackpressureRetainsClient(t *testing.T) {
	h := testHub(t)
	_, a := register(t, h, 1)
	a.setErr(errors.Join(errors.New("client 1"), ErrSendQueueFull))

	report, err := h.BroadcastAndReap(context.Background(), message.Received{EventID: 1, IRCUserName: "x"})
	require.NoError(t, err)
	assert.Equal(t, Report{Dropped: 1}, report)
	assert.Equal(t, 1, h.Len())
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	h := testHub(t)

	report, err := h.BroadcastAndReap(context.Background(), message.Received{EventID: 1, IRCUserName: "x"})
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestHub_EventsArriveInOrder(t *testing.T) {
	h := testHub(t)
	_, a := register(t, h, 5)

	var want []string
	for i := uint64(1); i <= 20; i++ {
		event := message.ReceivedDetails{EventID: i, Text: "m"}
		want = append(want, expected(t, event, 5))
		_, err := h.BroadcastAndReap(context.Background(), event)
		require.NoError(t, err)
	}
	assert.Equal(t, want, a.messages())
}

func TestHub_ConcurrentRegisterAndBroadcast(t *testing.T) {
	h := testHub(t)
	const clients = 50

	var wg sync.WaitGroup
	sockets := make([]*fakeSocket, clients)
	for i := 0; i < clients; i++ {
		sockets[i] = &fakeSocket{}
		wg.Add(1)
		go func(s *fakeSocket, salt uint64) {
			defer wg.Done()
			assert.NoError(t, h.Register(context.Background(), NewClient(s, salt)))
		}(sockets[i], uint64(i))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := uint64(0); i < 20; i++ {
			_, err := h.BroadcastAndReap(context.Background(), message.ReceivedDetails{EventID: i, Text: "x"})
			assert.NoError(t, err)
		}
	}()

	wg.Wait()
	<-done
	assert.Equal(t, clients, h.Len())

	// Every client saw each event at most once.
	for _, s := range sockets {
		seen := make(map[string]bool)
		for _, m := range s.messages() {
			assert.False(t, seen[m], "duplicate delivery %s", m)
			seen[m] = true
		}
	}
}

func TestHub_StopClosesClientsAndRejectsRequests(t *testing.T) {
	h := NewHub(&fixedSalts{}, DefaultOptions(), logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	_, a := register(t, h, 1)
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	assert.True(t, a.isClosed())
	assert.Equal(t, 0, h.Len())
	assert.ErrorIs(t, h.Register(context.Background(), NewClient(&fakeSocket{}, 2)), ErrHubStopped)
	_, err := h.BroadcastAndReap(context.Background(), message.Received{EventID: 1, IRCUserName: "x"})
	assert.ErrorIs(t, err, ErrHubStopped)
}

func TestHub_RegisterHonoursContext(t *testing.T) {
	// Not running: nobody takes the client.
	h := NewHub(&fixedSalts{}, DefaultOptions(), logger.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := h.Register(ctx, NewClient(&fakeSocket{}, 1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSaltSource_Distinct(t *testing.T) {
	src, err := NewSaltSource()
	require.NoError(t, err)

	seen := make(map[uint64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				salt := src.Next()
				mu.Lock()
				assert.False(t, seen[salt], "salt %d repeated", salt)
				seen[salt] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestSaltSource_IndependentSeeds(t *testing.T) {
	a, err := NewSaltSource()
	require.NoError(t, err)
	b, err := NewSaltSource()
	require.NoError(t, err)
	assert.NotEqual(t, a.Next(), b.Next())
}
