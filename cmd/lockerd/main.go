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
	"github.com/spf13/pflag"

	"parcel-locker-backend/config"
	"parcel-locker-backend/internal/api"
	"parcel-locker-backend/internal/broker"
	"parcel-locker-backend/internal/db"
	"parcel-locker-backend/internal/hardware"
	"parcel-locker-backend/internal/notification"
	"parcel-locker-backend/internal/reservation"
	"parcel-locker-backend/internal/station"
	"parcel-locker-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "lockerd ", log.LstdFlags)

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file (default $CONFIG_PATH or ./config/config.yaml)")
	pflag.Parse()
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys not configured; web push disabled")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	stations := station.NewCache()

	mqttClient := broker.NewClient(cfg.MQTT)
	adapter := hardware.NewAdapter(cfg.MQTT, mqttClient, stations)
	if err := adapter.Subscribe(); err != nil {
		logger.Fatalf("failed to subscribe to hardware reports: %v", err)
	}
	// The client keeps retrying in the background; requests that need the
	// hardware fail with a transport error until it is up.
	if err := mqttClient.Connect(ctx); err != nil {
		logger.Printf("MQTT broker %s not reachable yet: %v", cfg.MQTT.BrokerURL, err)
	}
	go adapter.Run(ctx)

	var mail notification.MailSender
	if sender := notification.NewSMTPSender(cfg.Mail); sender != nil {
		mail = sender
	} else {
		logger.Println("SMTP host not configured; email notifications disabled")
	}
	notifier := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, mail, webpushOptions)
	notifier.Start(ctx)

	svc := reservation.NewService(appStore, stations, adapter, notifier, cfg.Reservation.Hold)

	router := api.NewRouter(api.NewHandler(svc, appStore, webpushOptions), cfg.Server)
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}
	cancel()
	mqttClient.Disconnect()
	if dropped := adapter.Dropped(); dropped > 0 {
		logger.Printf("%d hardware reports were dropped under load", dropped)
	}

	logger.Println("Server gracefully stopped")
}
