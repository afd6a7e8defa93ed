package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"parkclash/internal/api"
	routes "parkclash/internal/api/handlers"
	"parkclash/internal/config"
	"parkclash/internal/postgres"
	"parkclash/internal/realtime"
	rdb "parkclash/internal/redis"
	"parkclash/internal/seed"
	"parkclash/internal/service/anticheat"
	"parkclash/internal/service/match"
	"parkclash/internal/service/session"
	"parkclash/internal/service/telemetry"
	"parkclash/internal/service/zone"
	"parkclash/internal/worker"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	zonesFile := flag.String("zones", "", "GeoJSON file with zones to load at startup")
	parkID := flag.String("park", "", "Park id for the zones in -zones")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	setupLogging(cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := initializeServices(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer closeConnections()

	if *zonesFile != "" {
		if err := loadZones(ctx, app.zones, *zonesFile, *parkID); err != nil {
			log.Fatalf("Failed to load zones: %v", err)
		}
	}

	if resumed, err := app.service.Resume(ctx); err != nil {
		log.Printf("Failed to resume active matches: %v", err)
	} else if resumed > 0 {
		log.Printf("Resumed %d active matches", resumed)
	}

	reportMemoryStats(ctx)

	if err := app.run(ctx); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
	log.Println("Server stopped")
}

func setupLogging(path string) {
	// Set up logging to file and terminal
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	// the file stays open for the lifetime of the process

	// Use MultiWriter to output logs to both terminal and file
	multiWriter := io.MultiWriter(os.Stdout, logFile)
	log.SetOutput(multiWriter)
}

type application struct {
	cfg      config.Config
	service  *match.Service
	hub      *realtime.Hub
	relay    *realtime.RedisRelay
	tokens   *realtime.TokenValidator
	audit    anticheat.AuditLog
	zones    zone.Store
	sweepers []worker.Sweeper
	health   []routes.HealthCheck
}

func initializeServices(cfg config.Config) (*application, error) {
	app := &application{
		cfg:    cfg,
		hub:    realtime.NewHub(),
		tokens: realtime.NewTokenValidator(cfg.JWTSecret),
	}

	var (
		records match.Repository
		events  match.EventRecorder
		sink    telemetry.Sink
	)
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		db, err := postgres.Init(cfg.DBUrl)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			return nil, err
		}
		app.zones = zone.NewPGStore(db)
		records = match.NewPGRepository(db)
		events = match.NewPGEventRecorder(db)
		sink = telemetry.NewPGSink(db)
		app.audit = anticheat.NewPGAuditLog(db)
		app.health = append(app.health, routes.HealthCheck{Name: "postgres", Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	default:
		log.Println("Using in-memory durable stores; data is lost on restart")
		app.zones = zone.NewMemoryStore()
		records = match.NewMemoryRepository()
		events = match.NewMemoryEventRecorder()
		sink = telemetry.NewMemorySink()
		app.audit = anticheat.NewMemoryAuditLog()
	}

	var (
		matches   session.MatchStore
		locations session.LocationStore
		buffer    telemetry.Buffer
	)
	var notifier match.Notifier = app.hub
	switch cfg.EphemeralBackend {
	case config.BackendRedis:
		client, err := rdb.Init(cfg.RedisUrl)
		if err != nil {
			return nil, err
		}
		matches = session.NewRedisMatchStore(client)
		locations = session.NewRedisLocationStore(client, cfg.Game.MatchStateTTL)
		buffer = telemetry.NewRedisBuffer(client)
		app.health = append(app.health, routes.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx, client)
		}})

		if cfg.RealtimeRelay == config.RelayRedis {
			app.relay = realtime.NewRedisRelay(client, app.hub)
			notifier = app.relay
		}
	default:
		memMatches := session.NewMemoryMatchStore(time.Now)
		matches = memMatches
		locations = session.NewMemoryLocationStore()
		buffer = telemetry.NewMemoryBuffer()
		app.sweepers = append(app.sweepers, memMatches)
	}

	app.service = match.NewService(cfg.Game, match.Deps{
		Matches:   matches,
		Locations: locations,
		Zones:     app.zones,
		Validator: anticheat.NewValidator(anticheat.ConfigFromGame(cfg.Game), locations, app.audit),
		Telemetry: telemetry.NewLog(buffer, sink),
		Records:   records,
		Events:    events,
		Notifier:  notifier,
	})

	log.Printf("Services initialized: storage=%s ephemeral=%s relay=%s",
		cfg.StorageBackend, cfg.EphemeralBackend, cfg.RealtimeRelay)
	return app, nil
}

func loadZones(ctx context.Context, store zone.Store, path, parkID string) error {
	if parkID == "" {
		return errors.New("-park is required with -zones")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	res, err := seed.FromGeoJSON(data, parkID)
	if err != nil {
		return err
	}
	if err := store.Upsert(ctx, res.Zones); err != nil {
		return err
	}
	log.Printf("Loaded %d zones for park %s from %s", len(res.Zones), parkID, path)
	return nil
}

func (a *application) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Start background workers managed by worker package
	worker.StartAllWorkers(ctx, a.sweepers...)

	if a.relay != nil {
		g.Go(func() error { return a.relay.Run(ctx) })
	}

	// Initialize Gin router
	r := gin.Default()
	api.SetupRouter(r, api.RouterDeps{
		Matches: a.service,
		Audit:   a.audit,
		Tokens:  a.tokens,
		WS:      realtime.NewHandler(a.hub, a.service, a.tokens).ServeWS,
		Health:  a.health,
		Info: map[string]string{
			"service":   "parkclash",
			"storage":   a.cfg.StorageBackend,
			"ephemeral": a.cfg.EphemeralBackend,
			"relay":     a.cfg.RealtimeRelay,
		},
	})

	srv := &http.Server{Addr: a.cfg.Port, Handler: r}
	g.Go(func() error {
		log.Printf("Listening on %s", a.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Println("Shutdown signal received, stopping match timers and server...")
		a.service.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func reportMemoryStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var m runtime.MemStats
				runtime.ReadMemStats(&m)
				log.Printf("Alloc = %v MiB, TotalAlloc = %v MiB, Sys = %v MiB, NumGC = %v",
					m.Alloc/1024/1024, m.TotalAlloc/1024/1024, m.Sys/1024/1024, m.NumGC)
			}
		}
	}()
}

func closeConnections() {
	if err := postgres.Close(); err != nil {
		log.Printf("Error closing PostgreSQL connection: %v", err)
	}

	if err := rdb.Close(); err != nil {
		log.Printf("Error closing Redis connection: %v", err)
	}

	log.Println("Connections closed")
}
