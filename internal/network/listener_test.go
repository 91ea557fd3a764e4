package network

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridmapper/internal/mapper"
)

type recordingHandler struct {
	mu     sync.Mutex
	scans  []mapper.Scan
	accept bool
}

func (h *recordingHandler) HandleScan(s mapper.Scan) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scans = append(h.scans, s)
	return h.accept
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.scans)
}

func encoded(t *testing.T, s mapper.Scan) []byte {
	t.Helper()
	data, err := EncodeScan(s)
	require.NoError(t, err)
	return data
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestUDPListener_DeliversScans(t *testing.T) {
	sock := NewMockUDPSocket(
		encoded(t, testScan()),
		[]byte("garbage"),
		encoded(t, testScan()),
	)
	h := &recordingHandler{accept: true}
	l := NewUDPListener(UDPListenerConfig{
		Address:       "127.0.0.1:0",
		RcvBuf:        1 << 20,
		Handler:       h,
		SocketFactory: &MockUDPSocketFactory{Socket: sock},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	waitFor(t, func() bool { return sock.Delivered() == 3 })
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}

	assert.Equal(t, 2, h.count())
	assert.True(t, sock.Closed())
	assert.Equal(t, 1<<20, sock.ReadBufferSize())
	assert.NotNil(t, l.LocalAddr())

	s := l.Stats().Snapshot()
	assert.Equal(t, int64(3), s.Packets)
	assert.Equal(t, int64(1), s.Malformed)
	assert.Equal(t, int64(2), s.Accepted)
}

func TestUDPListener_Errors(t *testing.T) {
	l := NewUDPListener(UDPListenerConfig{Address: "127.0.0.1:0"})
	assert.Error(t, l.Start(context.Background()), "missing handler")

	boom := errors.New("bind failed")
	l = NewUDPListener(UDPListenerConfig{
		Address:       "127.0.0.1:0",
		Handler:       &recordingHandler{},
		SocketFactory: &MockUDPSocketFactory{Error: boom},
	})
	assert.ErrorIs(t, l.Start(context.Background()), boom)

	l = NewUDPListener(UDPListenerConfig{Address: "not an address", Handler: &recordingHandler{}})
	assert.Error(t, l.Start(context.Background()))
}

func TestUDPListener_RealSocketWithSender(t *testing.T) {
	h := &recordingHandler{accept: true}
	l := NewUDPListener(UDPListenerConfig{Address: "127.0.0.1:0", Handler: h})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Start(ctx)
	waitFor(t, func() bool { return l.LocalAddr() != nil })

	sender, err := NewScanSender(l.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	// Loopback UDP may drop under load, so keep sending until one lands.
	waitFor(t, func() bool {
		sender.HandleScan(testScan())
		time.Sleep(5 * time.Millisecond)
		return h.count() > 0
	})
	h.mu.Lock()
	got := h.scans[0]
	h.mu.Unlock()
	assert.Equal(t, testScan().Ranges, got.Ranges)
}
