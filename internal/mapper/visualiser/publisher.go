// Package visualiser streams map updates to remote planners and viewers
// over gRPC and accepts the remote mapping toggle.
package visualiser

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/banshee-data/gridmapper/internal/mapper"
)

// Config holds configuration for the map update gRPC server.
type Config struct {
	// ListenAddr is the TCP address to serve on, e.g. "localhost:50061".
	ListenAddr string
	// MaxClients caps concurrent update streams.
	MaxClients int
	// ClientBuffer is the number of encoded updates queued per client
	// before updates to that client are dropped.
	ClientBuffer int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   8,
		ClientBuffer: 8,
	}
}

var errTooManyClients = errors.New("too many map update clients")

// Publisher implements mapper.Publisher by fanning encoded updates out to
// every connected stream.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener
	toggle   MappingToggle

	updateCh  chan *mapper.MapUpdate
	clients   map[string]*clientStream
	clientsMu sync.RWMutex
	latest    []byte

	published     atomic.Uint64
	encodeErrors  atomic.Uint64
	droppedQueue  atomic.Uint64
	droppedClient atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id       string
	updateCh chan []byte
}

// NewPublisher creates a stopped Publisher.
func NewPublisher(cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	return &Publisher{
		config:   cfg,
		updateCh: make(chan *mapper.MapUpdate, 16),
		clients:  make(map[string]*clientStream),
		stopCh:   make(chan struct{}),
	}
}

// SetMappingToggle wires the node the SetMappingEnabled RPC controls. It
// must be called before Start.
func (p *Publisher) SetMappingToggle(t MappingToggle) {
	p.toggle = t
}

// Start listens on the configured address and serves.
func (p *Publisher) Start() error {
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if err := p.Serve(lis); err != nil {
		lis.Close()
		return err
	}
	return nil
}

// Serve starts the gRPC server on lis in the background.
func (p *Publisher) Serve(lis net.Listener) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer(
		grpc.MaxSendMsgSize(16 * 1024 * 1024),
	)
	p.server.RegisterService(&mapperServiceDesc, &server{publisher: p, toggle: p.toggle})

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		log.Printf("[Visualiser] gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			log.Printf("[Visualiser] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop closes every stream and stops the server.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	if p.server != nil {
		// Streams end when stopCh closes, so a graceful stop drains.
		p.server.GracefulStop()
	}
	p.wg.Wait()
	log.Printf("[Visualiser] gRPC server stopped")
}

// Publish queues u for broadcast. It never blocks; when the queue is full
// the update is dropped and counted.
func (p *Publisher) Publish(u *mapper.MapUpdate) {
	if u == nil || !p.running.Load() {
		return
	}
	select {
	case p.updateCh <- u:
		p.published.Add(1)
	default:
		dropped := p.droppedQueue.Add(1)
		log.Printf("[Visualiser] DROPPED update %d (total dropped: %d), queue full", u.Sequence, dropped)
	}
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case u := <-p.updateCh:
			data, err := mapper.EncodeMapUpdate(u)
			if err != nil {
				p.encodeErrors.Add(1)
				log.Printf("[Visualiser] failed to encode update %d: %v", u.Sequence, err)
				continue
			}
			p.clientsMu.Lock()
			p.latest = data
			for _, c := range p.clients {
				select {
				case c.updateCh <- data:
				default:
					p.droppedClient.Add(1)
				}
			}
			p.clientsMu.Unlock()
		}
	}
}

// addClient registers a stream. The most recent update, if any, is queued
// first so a new client starts from the current map.
func (p *Publisher) addClient() (*clientStream, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if len(p.clients) >= p.config.MaxClients {
		return nil, errTooManyClients
	}
	c := &clientStream{
		id:       uuid.NewString(),
		updateCh: make(chan []byte, p.config.ClientBuffer),
	}
	if p.latest != nil {
		c.updateCh <- p.latest
	}
	p.clients[c.id] = c
	log.Printf("[Visualiser] Client connected: %s (total: %d)", c.id, len(p.clients))
	return c, nil
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[id]; ok {
		delete(p.clients, id)
		log.Printf("[Visualiser] Client disconnected: %s (remaining: %d)", id, len(p.clients))
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	Published     uint64 `json:"published"`
	EncodeErrors  uint64 `json:"encode_errors"`
	DroppedQueue  uint64 `json:"dropped_queue"`
	DroppedClient uint64 `json:"dropped_client"`
	Clients       int    `json:"clients"`
	Running       bool   `json:"running"`
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	p.clientsMu.RLock()
	clients := len(p.clients)
	p.clientsMu.RUnlock()
	return PublisherStats{
		Published:     p.published.Load(),
		EncodeErrors:  p.encodeErrors.Load(),
		DroppedQueue:  p.droppedQueue.Load(),
		DroppedClient: p.droppedClient.Load(),
		Clients:       clients,
		Running:       p.running.Load(),
	}
}

// Addr is the serving address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}
