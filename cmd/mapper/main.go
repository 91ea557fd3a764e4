package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gridmapper/internal/bootstrap"
	"github.com/banshee-data/gridmapper/internal/config"
	"github.com/banshee-data/gridmapper/internal/httputil"
	"github.com/banshee-data/gridmapper/internal/mapdb"
	"github.com/banshee-data/gridmapper/internal/mapper"
	"github.com/banshee-data/gridmapper/internal/mapper/monitor"
	"github.com/banshee-data/gridmapper/internal/mapper/visualiser"
	"github.com/banshee-data/gridmapper/internal/network"
	"github.com/banshee-data/gridmapper/internal/occupancy"
	"github.com/banshee-data/gridmapper/internal/serialmux"
	"github.com/banshee-data/gridmapper/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to mapper JSON config (defaults built in when empty)")
	listen       = flag.String("listen", ":8080", "HTTP monitor listen address")
	grpcListen   = flag.String("grpc-listen", visualiser.DefaultConfig().ListenAddr, "gRPC map update listen address (empty disables)")
	udpAddr      = flag.String("udp", ":9870", "UDP address scans arrive on")
	udpRcvBuf    = flag.Int("udp-rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	pcapFile     = flag.String("pcap", "", "Replay scans from this pcap file instead of listening on UDP")
	pcapPort     = flag.Int("pcap-port", 9870, "UDP destination port to select in the pcap (0 = any)")
	pcapRealtime = flag.Bool("pcap-realtime", false, "Pace pcap replay to capture timing")
	serialPort   = flag.String("serial", "", "Serial port carrying odom and cmd_vel lines (empty disables)")
	baudRate     = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	framing      = flag.String("serial-framing", "8N1", "Serial data bits, parity and stop bits")
	dbPath       = flag.String("db", "gridmap.db", "SQLite snapshot database (empty disables persistence)")
	restore      = flag.Bool("restore", true, "Restore the latest snapshot with matching geometry at startup")
	mapURL       = flag.String("map-url", "", "Map service URL returning map geometry as JSON")
	mapYAML      = flag.String("map-yaml", "", "map_server YAML file describing the map")
	exportDir    = flag.String("export-dir", "", "Write the final grid as map_server PNG+YAML into this directory on shutdown")
	debugLog     = flag.Bool("debug", false, "Enable mapper diagnostic logging")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	log.Printf("starting %s", version.String())

	var diag io.Writer
	if *debugLog {
		diag = os.Stderr
	}
	mapper.SetLogWriters(os.Stdout, diag, nil)

	cfg := config.DefaultMapperConfig()
	if *configPath != "" {
		loaded, err := config.LoadMapperConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := loadMapInfo(ctx, *mapURL, *mapYAML, httputil.NewClient(0))
	if err != nil {
		log.Fatalf("failed to bootstrap map geometry: %v", err)
	}
	grid, err := occupancy.NewGrid(info.GridConfig(cfg.GetPlanScale()))
	if err != nil {
		log.Fatalf("failed to create grid: %v", err)
	}
	log.Printf("grid %dx%d cells of %.3fm (native %dx%d at %.3fm, scale %d)",
		grid.Width(), grid.Height(), grid.CellSize(), info.Width, info.Height, info.Resolution, grid.Scale())

	sessionID := uuid.NewString()

	var db *mapdb.DB
	if *dbPath != "" {
		db, err = mapdb.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		if err := db.InsertSession(mapdb.Session{
			SessionID:        sessionID,
			StartedUnixNanos: time.Now().UnixNano(),
			Width:            grid.Width(),
			Height:           grid.Height(),
			Scale:            grid.Scale(),
			Resolution:       grid.Resolution(),
			Version:          version.Version,
		}); err != nil {
			log.Printf("failed to record session: %v", err)
		}
	}

	var publisher *visualiser.Publisher
	var pub mapper.Publisher
	if *grpcListen != "" {
		vcfg := visualiser.DefaultConfig()
		vcfg.ListenAddr = *grpcListen
		publisher = visualiser.NewPublisher(vcfg)
		pub = publisher
	}

	node := mapper.NewNode(grid, mapper.NodeConfig{
		Predictor:               cfg.PredictorConfig(),
		MinimumRange:            cfg.GetMinimumRange(),
		StartWithMappingEnabled: cfg.GetStartWithMappingEnabled(),
		SessionID:               sessionID,
	}, pub)

	if db != nil && *restore {
		restoreLatest(db, node, grid)
	}

	var wg sync.WaitGroup

	if publisher != nil {
		publisher.SetMappingToggle(node)
		if err := publisher.Start(); err != nil {
			log.Fatalf("failed to start gRPC publisher: %v", err)
		}
		defer publisher.Stop()
	}

	// Scan source
	scanStats := network.NewPacketStats()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runScanSource(ctx, node, scanStats); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scan source stopped: %v", err)
		}
	}()

	// Pose and twist source
	var serialMux serialmux.SerialMuxInterface
	serialStats := func() any { return serialmux.MuxStats{} }
	if *serialPort != "" {
		opts, err := serialmux.PortOptions{BaudRate: *baudRate}.ParseFraming(*framing)
		if err != nil {
			log.Fatalf("invalid serial options: %v", err)
		}
		realMux, err := serialmux.NewRealSerialMux(*serialPort, opts)
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", *serialPort, err)
		}
		serialMux = realMux
		serialStats = func() any { return realMux.Stats() }
	} else {
		log.Printf("no serial port configured, odometry disabled")
		serialMux = serialmux.NewDisabledSerialMux()
	}
	defer serialMux.Close()

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := serialMux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("serial monitor stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		serialmux.Pump(ctx, serialMux, node)
	}()

	// Persistence
	var flusher *mapper.Flusher
	if db != nil && cfg.GetFlushEnabled() {
		flusher = mapper.NewFlusher(mapper.FlusherConfig{
			Persister: node,
			Store:     db,
			Interval:  cfg.GetFlushInterval(),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := flusher.Run(ctx); err != nil {
				log.Printf("flusher stopped: %v", err)
			}
		}()
	}

	// Visualisation
	drawer, err := monitor.NewPlotDrawer(cfg.GetPlotOutputDir(), cfg.GetMaximumWindowHeightInPixels())
	if err != nil {
		log.Fatalf("failed to create plot drawer: %v", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := node.RunVisualisation(ctx, drawer, cfg.GetVisualisationInterval()); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("visualisation stopped: %v", err)
		}
	}()

	// HTTP monitor
	wsCfg := monitor.WebServerConfig{
		Address: *listen,
		Node:    node,
		Components: map[string]func() any{
			"scans":  func() any { return scanStats.Snapshot() },
			"serial": serialStats,
		},
	}
	if db != nil {
		wsCfg.Store = db
	}
	if publisher != nil {
		wsCfg.Components["publisher"] = func() any { return publisher.Stats() }
	}
	ws := monitor.NewWebServer(wsCfg)
	if db != nil {
		if err := db.AttachAdminRoutes(ws.Mux()); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}
	}
	serialMux.AttachAdminRoutes(ws.Mux())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("HTTP server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	wg.Wait()

	if db != nil && flusher == nil {
		if err := node.Persist(db, mapper.ReasonFinal); err != nil {
			log.Printf("final snapshot failed: %v", err)
		}
	}
	if *exportDir != "" {
		path, err := bootstrap.ExportYAML(*exportDir, "map-"+sessionID[:8], node.GridSnapshot())
		if err != nil {
			log.Printf("failed to export map: %v", err)
		} else {
			log.Printf("exported map to %s", path)
		}
	}
	log.Printf("mapper stopped")
}

func runScanSource(ctx context.Context, h network.ScanHandler, stats *network.PacketStats) error {
	if *pcapFile == "" {
		l := network.NewUDPListener(network.UDPListenerConfig{
			Address: *udpAddr,
			RcvBuf:  *udpRcvBuf,
			Handler: h,
			Stats:   stats,
		})
		return l.Start(ctx)
	}

	f, err := os.Open(*pcapFile)
	if err != nil {
		return fmt.Errorf("open pcap: %w", err)
	}
	defer f.Close()
	snap, err := network.ReplayPCAP(ctx, f, h, network.ReplayOptions{
		Port:     *pcapPort,
		Realtime: *pcapRealtime,
		Stats:    stats,
	})
	log.Printf("pcap replay: %d packets, %d scans accepted, %d malformed", snap.Packets, snap.Accepted, snap.Malformed)
	return err
}
