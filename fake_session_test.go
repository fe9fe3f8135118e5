package server

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"arena/server/internal/net/proto"
	"arena/server/logging"
)

// fakeSession records outbound frames in memory and replays inbound frames
// pushed by the test.
type fakeSession struct {
	id       uuid.UUID
	inbound  chan []byte
	capacity int

	mu     sync.Mutex
	sent   [][]byte
	reason CloseReason

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		id:      uuid.New(),
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

// newSlowSession accepts at most capacity frames and then reports a full
// queue.
func newSlowSession(capacity int) *fakeSession {
	s := newFakeSession()
	s.capacity = capacity
	return s
}

func (s *fakeSession) ID() uuid.UUID { return s.id }

func (s *fakeSession) RemoteAddr() string { return "fake:" + s.id.String() }

func (s *fakeSession) Send(data []byte) error {
	return s.SendBatch([][]byte{data})
}

func (s *fakeSession) SendBatch(frames [][]byte) error {
	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capacity > 0 && len(s.sent)+len(frames) > s.capacity {
		return ErrSendQueueFull
	}
	for _, frame := range frames {
		s.sent = append(s.sent, append([]byte(nil), frame...))
	}
	return nil
}

func (s *fakeSession) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-s.closed:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload, ok := <-s.inbound:
		if !ok {
			return nil, io.EOF
		}
		return payload, nil
	}
}

func (s *fakeSession) Close(reason CloseReason) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.closed)
	})
	return nil
}

func (s *fakeSession) push(frame string) {
	s.inbound <- []byte(frame)
}

func (s *fakeSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSession) closeReason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

type frame struct {
	Type  string     `json:"type"`
	Name  string     `json:"name"`
	Pos   [2]float64 `json:"pos"`
	Speed [2]float64 `json:"speed"`
	Hits  int        `json:"hits"`
}

func (s *fakeSession) frames(t *testing.T) []frame {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame, 0, len(s.sent))
	for _, data := range s.sent {
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("failed to decode outbound frame %q: %v", data, err)
		}
		out = append(out, f)
	}
	return out
}

func (s *fakeSession) framesOfType(t *testing.T, msgType string) []frame {
	t.Helper()
	var out []frame
	for _, f := range s.frames(t) {
		if f.Type == msgType {
			out = append(out, f)
		}
	}
	return out
}

func (s *fakeSession) reset() {
	s.mu.Lock()
	s.sent = nil
	s.mu.Unlock()
}

// manualClock is a settable clock for cooldown tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var _ logging.Clock = (*manualClock)(nil)

func newTestHub(t *testing.T, mutate func(*HubConfig)) (*Hub, *manualClock) {
	t.Helper()
	clock := newManualClock()
	cfg := DefaultHubConfig()
	cfg.Clock = clock
	if mutate != nil {
		mutate(&cfg)
	}
	return NewHubWithConfig(cfg), clock
}

// mustJoin runs the join sequence synchronously.
func mustJoin(t *testing.T, hub *Hub, sess *fakeSession, name string) {
	t.Helper()
	if err := hub.join(context.Background(), sess, name); err != nil {
		t.Fatalf("join %q failed: %v", name, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func moveFrame(vx, vy float64) string {
	data, _ := json.Marshal(proto.ClientMessage{Action: proto.ActionMove, Speed: []float64{vx, vy}})
	return string(data)
}
