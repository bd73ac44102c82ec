package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/newtondotcom/roomplanv2/internal/api"
	"github.com/newtondotcom/roomplanv2/internal/capture"
	"github.com/newtondotcom/roomplanv2/internal/config"
	"github.com/newtondotcom/roomplanv2/internal/fsutil"
	"github.com/newtondotcom/roomplanv2/internal/importer"
	"github.com/newtondotcom/roomplanv2/internal/journal"
	"github.com/newtondotcom/roomplanv2/internal/merge"
	"github.com/newtondotcom/roomplanv2/internal/plan"
	"github.com/newtondotcom/roomplanv2/internal/version"
)

var (
	devMode     = flag.Bool("dev", false, "Run in dev mode with a simulated capture engine")
	listen      = flag.String("listen", ":8080", "Listen address")
	dataDir     = flag.String("data-dir", "planspace_data", "Root directory for project files")
	configPath  = flag.String("config", "", "Optional JSON config file")
	fixturePath = flag.String("fixture", "fixtures/room.json", "Room geometry fixture for dev mode")
)

const journalFile = "journal.db"

func main() {
	flag.Parse()
	log.Printf("planspace %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	// .env is optional; flags and config file take precedence anyway
	if err := godotenv.Load(); err == nil {
		log.Print("loaded environment from .env")
	}

	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	addr := *listen
	dir := *dataDir
	if cfg != nil {
		addr = config.StringOr(cfg.Listen, addr)
		dir = config.StringOr(cfg.DataDir, dir)
	}
	if addr == "" {
		log.Fatal("Listen address is required")
	}

	fs := fsutil.OSFileSystem{}
	store, err := plan.NewStore(fs, dir)
	if err != nil {
		log.Fatalf("failed to open project store: %v", err)
	}

	var engine capture.Engine
	var builder capture.RoomBuilder
	if *devMode {
		data, err := os.ReadFile(*fixturePath)
		if err != nil {
			log.Fatalf("failed to open fixture file: %v", err)
		}
		mock := capture.NewMockEngine()
		mock.FixtureData = data
		engine = mock
		builder = &capture.SimBuilder{}
	} else {
		engine = &capture.UnavailableEngine{}
		builder = &capture.SimBuilder{}
	}
	defer engine.Close()

	session := capture.NewController(engine, builder)
	if cfg != nil {
		session.SetResultWait(cfg.ResultWait(capture.DefaultResultWait))
	}

	merger := merge.NewCoordinator(store, fs, &merge.SimMerger{}, &merge.SimExporter{})
	imp := importer.NewCoordinator(store, fs, importer.OSScopedAccess{})

	var jnl *journal.Journal
	jnlPath := dir + "/" + journalFile
	if cfg != nil && cfg.JournalPath != nil {
		jnlPath = *cfg.JournalPath
	}
	if jnlPath != "" {
		jnl, err = journal.Open(jnlPath)
		if err != nil {
			log.Fatalf("failed to open journal: %v", err)
		}
		defer jnl.Close()
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(store, session, merger, imp, jnl).ServeMux()

		server := &http.Server{
			Addr:    addr,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s (data dir %s)", addr, dir)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
	}()

	wg.Wait()

	// leave no live capture behind on exit
	session.End()
	log.Printf("Graceful shutdown complete")
}
