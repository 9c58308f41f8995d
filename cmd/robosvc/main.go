package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/avvvet/bingo-rounds/configs"
	"github.com/avvvet/bingo-rounds/internal/comm"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/db"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/store"
	natscli "github.com/avvvet/bingo-rounds/internal/nats"
	"github.com/avvvet/bingo-rounds/internal/robosvc"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "robot"

func main() {
	config.LoadEnv(SERVICE_NAME)

	cfg, err := robosvc.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	instanceId := config.CreateUniqueInstance(SERVICE_NAME)
	if cfg.LogToFile {
		config.Logging(SERVICE_NAME + "_service_" + instanceId[:8])
	}
	config.SetLevel(cfg.LogLevel)

	ctx := context.Background()

	// pg connection
	dbpool, err := db.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer dbpool.Close()
	log.Printf("pg connection established successfully")

	// Connect to NATS
	nc, err := natscli.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+"-"+instanceId)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Close()
	log.Infof("NATS connected at %s", nc.Url)

	robots := robosvc.NewService(nc.Conn, cfg.Count, cfg.BuysPerRound, uint64(time.Now().UnixNano()))

	if err := robots.EnsureAccounts(ctx, store.NewParticipantStore(dbpool), cfg.StartBalance); err != nil {
		log.Fatalf("Failed to ensure robot accounts: %v", err)
	}
	log.Printf("%d robot accounts verified/created successfully", len(robots.Robots()))

	sub, err := nc.Conn.Subscribe(comm.TopicGameService, func(m *nats.Msg) {
		var ws comm.WSMessage
		if err := json.Unmarshal(m.Data, &ws); err != nil {
			log.Errorf("Failed to unmarshal WSMessage: %v", err)
			return
		}
		robots.HandleMessage(&ws)
	})
	if err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", comm.TopicGameService, err)
	}

	log.Printf("Robot Service fully operational!")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if err := sub.Unsubscribe(); err != nil {
		log.Warnf("unsubscribe %s: %v", comm.TopicGameService, err)
	}
	log.Infof("%s service stopped", SERVICE_NAME)
}
