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
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/bingo-rounds/configs"
	"github.com/avvvet/bingo-rounds/internal/auth"
	"github.com/avvvet/bingo-rounds/internal/comm"
	"github.com/avvvet/bingo-rounds/internal/nats"
	"github.com/avvvet/bingo-rounds/internal/socketsvc/broker"
	socketcfg "github.com/avvvet/bingo-rounds/internal/socketsvc/config"
	"github.com/avvvet/bingo-rounds/internal/socketsvc/handlers"
	"github.com/avvvet/bingo-rounds/internal/socketsvc/routes"
	"github.com/avvvet/bingo-rounds/internal/socketsvc/ws"
)

const SERVICE_NAME = "socket"

func main() {
	config.LoadEnv(SERVICE_NAME)

	cfg, err := socketcfg.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	instanceId := config.CreateUniqueInstance(SERVICE_NAME)
	if cfg.LogToFile {
		config.Logging(SERVICE_NAME + "_service_" + instanceId[:8])
	}
	config.SetLevel(cfg.LogLevel)

	// Connect to NATS
	n, err := nats.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+"-"+instanceId)
	if err != nil {
		log.Fatalf("Error: unable to connect to NATS server %v", err)
	}
	defer n.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(cfg.CORSOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Initialize websocket handler
	s := ws.NewWs()

	b := broker.NewBroker(n.Conn, s)
	s.Broker = b // set broker reference for websocket handler logic

	h := handlers.NewHandler(s, cfg.Port, func(r *http.Request) bool {
		return cfg.AllowOrigin(r.Header.Get("Origin"))
	})
	routes.SetRoutes(r, h, auth.New(cfg.JWTSecret))

	// subscribe to game server
	sub, err := b.Subscribe(comm.TopicGameService)
	if err != nil {
		log.Fatalf("Error: unable to subscribe to %s %v", comm.TopicGameService, err)
	}

	// Create server with timeout settings
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
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
		log.Warnf("unsubscribe %s: %v", comm.TopicGameService, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
