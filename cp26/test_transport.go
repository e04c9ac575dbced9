package cp26

import (
	"context"
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking transport using
// channels. The Loop's reader goroutine reads continuously, so reads must
// block until data is available, like a real serial port or BLE notify
// stream would. Written bytes are captured for assertions.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	written  []byte
	onWrite  func(p []byte)
	closed   bool
}

// NewTestTransport creates a new test transport. Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 10),
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	t.written = append(t.written, p...)
	hook := t.onWrite
	t.mu.Unlock()
	if hook != nil {
		hook(append([]byte(nil), p...))
	}
	return len(p), nil
}

// SetWriteHook installs a callback invoked with every write, outside the
// transport lock so the hook may call SendData to script a reply.
func (t *TestTransport) SetWriteHook(fn func(p []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onWrite = fn
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport, simulating bytes
// arriving from the module.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Written returns everything written to the transport so far.
func (t *TestTransport) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.written))
	copy(out, t.written)
	return out
}

// StaticDialer hands out a pre-built Transport, for wiring fakes into New.
type StaticDialer struct {
	Transport Transport
	Err       error
}

func (d StaticDialer) Dial(_ context.Context) (Transport, error) {
	return d.Transport, d.Err
}
