package serialmux

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/gridmapper/internal/httputil"
)

// DisabledSerialMux stands in when no odometry port is configured. Its
// subscriber channels never carry a line; they close on Unsubscribe or
// Close.
type DisabledSerialMux struct {
	mu     sync.Mutex
	open   map[string]chan string
	closed bool
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{open: make(map[string]chan string)}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id, ch := uuid.NewString(), make(chan string)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
	} else {
		d.open[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.open[id]; ok {
		delete(d.open, id)
		close(ch)
	}
}

// SendCommand discards the command.
func (d *DisabledSerialMux) SendCommand(string) error { return nil }

// Monitor blocks until ctx is done.
func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, ch := range d.open {
		delete(d.open, id)
		close(ch)
	}
	return nil
}

// AttachAdminRoutes reports the mux as disabled on the debug page.
func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	tsweb.Debugger(mux).HandleFunc("serial-stats", "Serial line counters", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, MuxStats{})
	})
}
