// Package serialmux reads newline-delimited odometry and velocity messages
// from a serial bridge and fans each line out to any number of subscribers.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/gridmapper/internal/httputil"
)

var (
	ErrWriteFailed = errors.New("short write to serial port")
	ErrClosed      = errors.New("serial mux closed")
)

// subscriberBuffer is how many lines a slow subscriber may lag by before
// it starts missing lines.
const subscriberBuffer = 16

// SerialMuxInterface is implemented by SerialMux and DisabledSerialMux.
type SerialMuxInterface interface {
	// Subscribe returns an ID for Unsubscribe and a channel receiving every
	// line read from the port.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one newline-terminated line to the port.
	SendCommand(string) error
	// Monitor reads lines until ctx is done or the port reaches EOF.
	Monitor(context.Context) error
	Close() error
	// AttachAdminRoutes mounts debug endpoints on the tsweb debug page.
	AttachAdminRoutes(*http.ServeMux)
}

// MuxStats counts lines seen by a SerialMux.
type MuxStats struct {
	Enabled     bool   `json:"enabled"`
	Lines       uint64 `json:"lines"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// SerialMux multiplexes one serial port to many line subscribers.
type SerialMux[T SerialPorter] struct {
	port    T
	writeMu sync.Mutex
	closed  atomic.Bool

	mu   sync.RWMutex
	subs map[string]chan string

	lines   atomic.Uint64
	dropped atomic.Uint64
}

// NewSerialMux wraps port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port, subs: make(map[string]chan string)}
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, subscriberBuffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		close(ch)
		return id, ch
	}
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe closes the subscriber's channel. Unknown IDs are ignored.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// SendCommand writes command to the port, appending a newline if missing.
func (s *SerialMux[T]) SendCommand(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return fmt.Errorf("write serial command: %w", err)
	}
	if n < len(command) {
		return ErrWriteFailed
	}
	return nil
}

type readResult struct {
	line string
	err  error
}

// Monitor reads lines from the port and offers each to every subscriber.
// Blank lines are skipped and a subscriber whose buffer is full misses the
// line. Reaching EOF or closing the mux returns nil.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	results := make(chan readResult)
	go func() {
		defer close(results)
		r := bufio.NewReader(s.port)
		for {
			line, err := r.ReadString('\n')
			select {
			case results <- readResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				return ctx.Err()
			}
			if s.closed.Load() {
				return nil
			}
			if line := strings.TrimRight(res.line, "\r\n"); line != "" {
				s.broadcast(line)
			}
			if errors.Is(res.err, io.EOF) {
				return nil
			}
			if res.err != nil {
				return fmt.Errorf("read serial port: %w", res.err)
			}
		}
	}
}

func (s *SerialMux[T]) broadcast(line string) {
	s.lines.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- line:
		default:
			s.dropped.Add(1)
		}
	}
}

// Stats returns the line counters.
func (s *SerialMux[T]) Stats() MuxStats {
	s.mu.RLock()
	n := len(s.subs)
	s.mu.RUnlock()
	return MuxStats{Enabled: true, Lines: s.lines.Load(), Dropped: s.dropped.Load(), Subscribers: n}
}

// Close closes every subscriber and the port. Later calls are no-ops.
func (s *SerialMux[T]) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.mu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
	return s.port.Close()
}

// AttachAdminRoutes mounts a command endpoint, a server-sent-events tail
// of incoming lines and line counters on the tsweb debug page.
func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleSilentFunc("serial-send", s.handleSend)
	debug.HandleFunc("serial-tail", "Live tail of serial lines", s.handleTail)
	debug.HandleFunc("serial-stats", "Serial line counters", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, s.Stats())
	})
}

func (s *SerialMux[T]) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		httputil.BadRequest(w, "missing command")
		return
	}
	if err := s.SendCommand(command); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"sent": command})
}

// handleTail streams lines as SSE events named by their message type.
func (s *SerialMux[T]) handleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")

	id, lines := s.Subscribe()
	defer s.Unsubscribe(id)

	io.WriteString(w, ": tail\n\n")
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ClassifyPayload(line), line); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
