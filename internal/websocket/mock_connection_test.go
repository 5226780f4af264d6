package websocket

import (
	"errors"
	"sync"
	"time"
)

type mockMessage struct {
	Type int
	Data []byte
}

// mockConnection records writes and replays queued reads. ReadMessage
// blocks until a read is queued or the connection is closed.
type mockConnection struct {
	mu      sync.Mutex
	written []mockMessage
	reads   chan mockMessage
	closed  chan struct{}
	once    sync.Once
}

func newMockConnection() *mockConnection {
	return &mockConnection{reads: make(chan mockMessage, 16), closed: make(chan struct{})}
}

func (m *mockConnection) WriteMessage(messageType int, data []byte) error {
	select {
	case <-m.closed:
		return errors.New("connection closed")
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, mockMessage{Type: messageType, Data: data})
	return nil
}

func (m *mockConnection) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-m.reads:
		return msg.Type, msg.Data, nil
	case <-m.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (m *mockConnection) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConnection) SetReadDeadline(time.Time) error   { return nil }
func (m *mockConnection) SetWriteDeadline(time.Time) error  { return nil }
func (m *mockConnection) SetReadLimit(int64)                {}
func (m *mockConnection) SetPongHandler(func(string) error) {}
func (m *mockConnection) RemoteAddr() string                { return "127.0.0.1:9999" }

func (m *mockConnection) messages() []mockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockMessage, len(m.written))
	copy(out, m.written)
	return out
}
