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
	"github.com/joho/godotenv"

	"mattermore-backend/config"
	"mattermore-backend/internal/alert"
	"mattermore-backend/internal/api"
	"mattermore-backend/internal/db"
	"mattermore-backend/internal/door"
	"mattermore-backend/internal/fingerprint"
	"mattermore-backend/internal/kv"
	"mattermore-backend/internal/notification"
	"mattermore-backend/internal/protocol"
	"mattermore-backend/internal/relay"
	"mattermore-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "mattermore ", log.LstdFlags)

	// A missing .env is fine; secrets may come from the real environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("failed to read .env: %v", err)
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Secrets.DownKey == "" || cfg.Secrets.UpKey == "" {
		logger.Fatalf("secrets.down_key and secrets.up_key must be configured")
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys are not configured; web push is disabled")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	kvStore := kv.NewGormStore(gormDB)

	// Notifications are delivered in the background
	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, map[notification.Channel]string{
		notification.ChannelDoorkeeper: cfg.Mattermost.DoorkeeperWebhook,
		notification.ChannelDebug:      cfg.Mattermost.DebugWebhook,
	}, notification.NewWebhookPoster(5*time.Second), webpushOptions)
	pool.Start(ctx)

	lockbot := protocol.NewChannel(protocol.Peripheral{
		Name:    "lockbot",
		URL:     cfg.Lockbot.URL,
		Secret:  cfg.Secrets.DownKey,
		Timeout: cfg.Lockbot.Timeout,
	})
	sensor := protocol.NewChannel(protocol.Peripheral{
		Name:       "fingerprint",
		URL:        cfg.Fingerprint.URL,
		Secret:     cfg.Secrets.FingerprintKey,
		Timeout:    cfg.Fingerprint.Timeout,
		Terminated: true,
	})

	tracker := door.NewTracker(lockbot, kvStore)
	throttler := alert.NewThrottler(kvStore, pool, cfg.Alert.Interval)
	fingerprints := fingerprint.NewService(sensor, appStore, tracker, pool)

	var forwarder relay.Forwarder
	if cfg.KelderAPI.DoorkeeperURL != "" {
		forwarder = relay.NewKelderForwarder(cfg.KelderAPI.DoorkeeperURL, cfg.KelderAPI.Key, cfg.KelderAPI.Timeout)
	}
	doorkeeper := relay.New(forwarder, tracker, throttler, pool)

	handler := api.NewHandler(api.Deps{
		Store:        appStore,
		Door:         tracker,
		Fingerprints: fingerprints,
		Relay:        doorkeeper,
		Notifier:     pool,
		UpKey:        cfg.Secrets.UpKey,
		PublicURL:    cfg.Server.PublicURL,
		Webpush:      webpushOptions,
	})

	// Initialize router
	router := api.NewRouter(handler, cfg)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Handlers may be waiting on a peripheral for up to 5 seconds.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
