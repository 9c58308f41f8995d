package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/avvvet/bingo-rounds/configs"
	"github.com/avvvet/bingo-rounds/internal/auth"
	"github.com/avvvet/bingo-rounds/internal/comm"
	mongodb "github.com/avvvet/bingo-rounds/internal/db"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/broker"
	gamecfg "github.com/avvvet/bingo-rounds/internal/gamesvc/config"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/db"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/engine"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/handlers"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/notify"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/snapshot"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/store"
	"github.com/avvvet/bingo-rounds/internal/nats"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "game"

func main() {
	config.LoadEnv(SERVICE_NAME)

	cfg, err := gamecfg.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	engineCfg, err := cfg.Engine()
	if err != nil {
		log.Fatalf("Invalid round settings: %v", err)
	}

	instanceId := config.CreateUniqueInstance(SERVICE_NAME)
	if cfg.LogToFile {
		config.Logging(SERVICE_NAME + "_service_" + instanceId[:8])
	}
	config.SetLevel(cfg.LogLevel)

	ctx := context.Background()

	if cfg.MigrateOnStart {
		if err := db.MigrateUp(cfg.PostgresURL); err != nil {
			log.Fatalf("Failed to migrate DB: %v", err)
		}
	}

	// pg connection
	dbpool, err := db.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer dbpool.Close()
	log.Printf("pg connection established successfully")

	repo := store.NewRepository(dbpool)

	// Connect to NATS
	n, err := nats.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+"-"+instanceId)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	defer n.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	b := broker.NewBroker(n.Conn)

	// round snapshots live in mongo; without it clients still get events
	var kv snapshot.KV
	mdb, err := mongodb.ConnectToDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Warnf("snapshots disabled: %v", err)
	} else {
		if err := mongodb.CreateTTLIndexForCollection(ctx, mdb, cfg.SnapshotCollection); err != nil {
			log.Warnf("unable to create snapshot ttl index: %v", err)
		}
		kv = snapshot.NewStore(mdb, cfg.SnapshotCollection)
		defer mdb.Client().Disconnect(context.Background())
	}

	var notifier engine.Notifier
	if cfg.TelegramToken == "" {
		log.Warn("TELEGRAM_BOT_TOKEN not set, notifications disabled")
	} else if tn, err := notify.NewTelegramNotifier(cfg.TelegramToken, repo); err != nil {
		log.Errorf("telegram notifications disabled: %v", err)
	} else {
		notifier = tn
	}

	manager := engine.NewManager(engineCfg, repo, snapshot.NewChannel(kv, b), notifier)
	b.Rounds = manager

	if err := manager.Start(ctx); err != nil {
		log.Errorf("round engine started with restore errors: %v", err)
	}

	// one game service instance answers each socket request
	sub, err := b.QueueSubscribe(comm.TopicSocketService, SERVICE_NAME)
	if err != nil {
		log.Fatalf("Error: unable to subscribe to queue %v", err)
	}

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(cfg.CORSOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(manager, repo, auth.New(cfg.JWTSecret), cfg.Port)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := sub.Unsubscribe(); err != nil {
		log.Warnf("unsubscribe %s: %v", comm.TopicSocketService, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}

	// drains queued storage writes, broadcasts and notifications
	manager.Stop()

	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
