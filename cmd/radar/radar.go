package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/ld2415h/internal/api"
	"github.com/banshee-data/ld2415h/internal/config"
	"github.com/banshee-data/ld2415h/internal/db"
	"github.com/banshee-data/ld2415h/internal/ld2415h"
	"github.com/banshee-data/ld2415h/internal/monitoring"
	"github.com/banshee-data/ld2415h/internal/serialmux"
	"github.com/banshee-data/ld2415h/internal/version"
)

// options holds the command-line flags. Flags that are set explicitly
// override the config file.
type options struct {
	devMode      bool
	configPath   string
	listen       string
	port         string
	dbPath       string
	units        string
	pollInterval time.Duration
	disableRadar bool
	showVersion  bool
}

func registerFlags(fs *flag.FlagSet) *options {
	o := &options{}
	fs.BoolVar(&o.devMode, "dev", false, "Run in dev mode against a simulated radar")
	fs.StringVar(&o.configPath, "config", "", "Path to a .json, .yaml or .toml service config")
	fs.StringVar(&o.listen, "listen", config.DefaultListen, "Listen address")
	fs.StringVar(&o.port, "port", config.DefaultPort, "Serial port to use (ignored in dev mode)")
	fs.StringVar(&o.dbPath, "db", config.DefaultDBPath, "Path to the sqlite database")
	fs.StringVar(&o.units, "units", config.DefaultDisplayUnits, "Display units for the HTTP API")
	fs.DurationVar(&o.pollInterval, "config-poll-interval", config.DefaultConfigPollInterval, "How often to re-request the radar configuration (0 disables)")
	fs.BoolVar(&o.disableRadar, "disable-radar", false, "Run without radar hardware")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	return o
}

// serviceConfig loads the config file, if any, and applies the flags that
// were set on the command line.
func (o *options) serviceConfig(fs *flag.FlagSet) (*config.ServiceConfig, error) {
	cfg := &config.ServiceConfig{}
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = &o.listen
		case "port":
			cfg.Port = &o.port
		case "db":
			cfg.DBPath = &o.dbPath
		case "units":
			cfg.DisplayUnits = &o.units
		case "config-poll-interval":
			poll := o.pollInterval.String()
			cfg.ConfigPollInterval = &poll
		case "disable-radar":
			cfg.DisableRadar = &o.disableRadar
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// devReadings are replayed by the simulated radar in dev mode.
var devReadings = []string{
	"V+012.4", "V+013.1", "V+012.9", "V-008.2", "V-007.5", "V+021.7", "V+000.0",
}

func newRadarSerial(cfg *config.ServiceConfig, devMode bool) (serialmux.SerialMuxInterface, error) {
	deviceOpts := []ld2415h.Option{ld2415h.WithFrameCapacity(cfg.GetFrameCapacity())}
	switch {
	case cfg.GetDisableRadar():
		log.Printf("radar disabled; serving stored data only")
		return serialmux.NewDisabledSerialMux(), nil
	case devMode:
		return serialmux.NewMockSerialMux(devReadings, 500*time.Millisecond, deviceOpts...), nil
	default:
		m, err := serialmux.NewRealSerialMux(cfg.GetPort(), cfg.GetSerial(), deviceOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create radar port: %w", err)
		}
		return m, nil
	}
}

// recordEvents persists every event from the radar until ctx is done or the
// subscription is closed.
func recordEvents(ctx context.Context, radarSerial serialmux.SerialMuxInterface, d *db.DB, sessionID string) {
	id, c := radarSerial.Subscribe()
	defer radarSerial.Unsubscribe(id)
	for {
		select {
		case e, ok := <-c:
			if !ok {
				log.Printf("subscribe routine terminated: channel closed")
				return
			}
			if err := serialmux.HandleEvent(d, sessionID, e); err != nil {
				log.Printf("error handling event: %v", err)
			}
		case <-ctx.Done():
			log.Printf("subscribe routine terminated")
			return
		}
	}
}

func newHandler(radarSerial serialmux.SerialMuxInterface, d *db.DB, units string) http.Handler {
	mux := api.NewServer(radarSerial, d, units).ServeMux()
	radarSerial.AttachAdminRoutes(mux)
	d.AttachAdminRoutes(mux)
	mux.Handle("/metrics", monitoring.Handler())
	return api.LoggingMiddleware(mux)
}

// Main
func main() {
	opts := registerFlags(flag.CommandLine)
	flag.Parse()

	if opts.showVersion {
		fmt.Printf("radar %s (%s) built %s\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := opts.serviceConfig(flag.CommandLine)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	radarSerial, err := newRadarSerial(cfg, opts.devMode)
	if err != nil {
		log.Fatal(err)
	}
	defer radarSerial.Close()

	d, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer d.Close()

	sessionID, err := d.StartSession(cfg.GetPort(), time.Now())
	if err != nil {
		log.Fatalf("failed to start monitor session: %v", err)
	}
	log.Printf("radar %s: session %s on %s", version.Version, sessionID, cfg.GetPort())

	// Create a wait group for the HTTP server, serial monitor, poller and event handler routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// subscribe before the monitor starts so the first frames are recorded
	wg.Add(1)
	go func() {
		defer wg.Done()
		recordEvents(ctx, radarSerial, d, sessionID)
	}()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := radarSerial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	if cfg.GetRequestConfigOnStart() {
		if err := radarSerial.RequestConfig(); err != nil {
			log.Printf("%v", err)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := radarSerial.Poll(ctx, cfg.GetConfigPollInterval()); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("config poller stopped: %v", err)
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: newHandler(radarSerial, d, cfg.GetDisplayUnits()),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
