package serialmux

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localHostRequest passes tsweb's loopback-only debug access check.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestSerialMux_MonitorFansOutLines(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	id1, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	port.AddReadData("first\nsecond\n")
	for _, want := range []string{"first", "second"} {
		for _, ch := range []chan string{ch1, ch2} {
			select {
			case got := <-ch:
				assert.Equal(t, want, got)
			case <-time.After(2 * time.Second):
				t.Fatalf("timed out waiting for %q", want)
			}
		}
	}

	mux.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "unsubscribed channel should be closed")

	port.EndOfInput()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return at end of input")
	}
}

func TestSerialMux_MonitorCancel(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor ignored cancellation")
	}
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("reset"))
	require.NoError(t, mux.SendCommand("stream on\n"))
	assert.Equal(t, "reset\nstream on\n", port.Written())

	port.WriteError = io.ErrClosedPipe
	assert.ErrorIs(t, mux.SendCommand("x"), io.ErrClosedPipe)
}

func TestSerialMux_CloseClosesSubscribers(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()
	require.NoError(t, mux.Close())
	_, ok := <-ch
	assert.False(t, ok)
	assert.Error(t, mux.SendCommand("after close"))
}

func TestAttachAdminRoutes_SendCommandAPI(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	tests := []struct {
		name   string
		method string
		form   url.Values
		status int
	}{
		{"valid", http.MethodPost, url.Values{"command": {"reset"}}, http.StatusOK},
		{"blank", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest},
		{"missing", http.MethodPost, url.Values{}, http.StatusBadRequest},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := localHostRequest(tt.method, "/debug/serial-send", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, "reset\n", port.Written())
}

func TestAttachAdminRoutes_Tail(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/debug/serial-tail", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	port.AddReadData(`{"type":"cmd_vel","linear":1,"angular":0}` + "\n")

	buf := make([]byte, 512)
	var got strings.Builder
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(got.String(), "cmd_vel") && time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			break
		}
	}
	assert.Contains(t, got.String(), "event: cmd_vel\ndata: {\"type\":\"cmd_vel\"")
}

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()
	d.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	_, ch = d.Subscribe()
	require.NoError(t, d.Close())
	_, ok = <-ch
	assert.False(t, ok)
	require.NoError(t, d.Close())

	_, ch = d.Subscribe()
	_, ok = <-ch
	assert.False(t, ok, "subscribing after close yields a closed channel")

	assert.NoError(t, d.SendCommand("x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Monitor(ctx), context.Canceled)

	httpMux := http.NewServeMux()
	d.AttachAdminRoutes(httpMux)
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/serial-stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":false,"lines":0,"dropped":0,"subscribers":0}`, rec.Body.String())
}

func TestSerialMux_StatsCountDrops(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	var lines strings.Builder
	for i := 0; i < subscriberBuffer+4; i++ {
		lines.WriteString("{}\r\n\n")
	}
	port.AddReadData(lines.String())
	port.EndOfInput()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not finish")
	}

	stats := mux.Stats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, uint64(subscriberBuffer+4), stats.Lines)
	assert.Equal(t, uint64(4), stats.Dropped)
	assert.Equal(t, 1, stats.Subscribers)
	assert.Len(t, ch, subscriberBuffer)
	assert.Equal(t, "{}", <-ch)
}

func TestSerialMux_TrailingLineWithoutNewline(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()
	port.AddReadData("last")
	port.EndOfInput()
	require.NoError(t, mux.Monitor(context.Background()))
	assert.Equal(t, "last", <-ch)
}
