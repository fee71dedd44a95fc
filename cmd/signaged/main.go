package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"signage-control-backend/config"
	"signage-control-backend/internal/api"
	"signage-control-backend/internal/command"
	"signage-control-backend/internal/db"
	"signage-control-backend/internal/gateway"
	"signage-control-backend/internal/ingest"
	"signage-control-backend/internal/mqtt"
	"signage-control-backend/internal/notification"
	"signage-control-backend/internal/presence"
	"signage-control-backend/internal/realtime"
	"signage-control-backend/internal/schedule"
	"signage-control-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "signaged ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	hub := realtime.NewHub()

	var webpushOptions *webpush.Options
	var notifier notification.Notifier
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		notifier = pool
	} else {
		logger.Println("VAPID keys are not configured; push notifications are disabled")
	}

	var mqttClient *mqtt.Client
	var mqttAPI mqtt.ClientAPI
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.New(cfg.MQTT, cfg.Gateway.Timeout)
		if err != nil {
			logger.Fatalf("failed to connect to mqtt broker: %v", err)
		}
		defer mqttClient.Close()
		mqttAPI = mqttClient
	}

	gw, err := gateway.New(cfg, mqttAPI)
	if err != nil {
		logger.Fatalf("failed to configure device gateway: %v", err)
	}
	dispatcher := command.NewDispatcher(appStore, gw, hub, cfg.Gateway.Timeout)
	ingestSvc := ingest.NewService(appStore, hub, notifier)

	go presence.NewSweeper(cfg.Presence, appStore, hub, notifier).Run(ctx)

	if cfg.Schedule.Enabled {
		runner, err := schedule.NewRunner(appStore, dispatcher, cfg.Schedule.Timezone)
		if err != nil {
			logger.Fatalf("failed to start power schedule runner: %v", err)
		}
		go func() {
			if err := runner.Run(ctx); err != nil {
				logger.Printf("power schedule runner stopped: %v", err)
			}
		}()
	}

	router := api.NewRouter(api.Deps{
		Store:      appStore,
		Dispatcher: dispatcher,
		Ingest:     ingestSvc,
		Hub:        hub,
		Webpush:    webpushOptions,
		Config:     cfg,
	})
	// Subscribe after the router has hooked its cache into ingestSvc.
	if mqttAPI != nil {
		if err := ingestSvc.Subscribe(ctx, mqttAPI, cfg.MQTT.TopicPrefix); err != nil {
			logger.Fatalf("failed to subscribe to device topics: %v", err)
		}
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
