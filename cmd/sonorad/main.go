package main

import (
	"crypto/rand"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sonora-labs/sonora-go/internal/api"
	"github.com/sonora-labs/sonora-go/internal/api/middleware"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("sonorad starting...")

	port := os.Getenv("PORT")
	if port == "" {
		port = "3200"
	}
	eventPort := os.Getenv("EVENT_PORT")
	if eventPort == "" {
		eventPort = "3201"
	}

	registry := prometheus.NewRegistry()
	metrics := api.NewPrometheusMetrics(registry)

	secret, err := adminSecret()
	if err != nil {
		sugar.Fatalf("failed to generate admin secret: %v", err)
	}
	token, err := middleware.IssueToken(secret, "sonorad", 24*time.Hour)
	if err != nil {
		sugar.Fatalf("failed to issue admin token: %v", err)
	}

	server := api.NewServer(api.ServerConfig{
		Port:      port,
		Logger:    sugar,
		Metrics:   metrics,
		Registry:  registry,
		JWTSecret: secret,
	})

	go func() {
		if err := server.Start(); err != nil {
			sugar.Fatalf("server failed: %v", err)
		}
	}()

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws/events", server.EventTailHandler())
		if err := http.ListenAndServe(":"+eventPort, mux); err != nil {
			sugar.Errorf("event tail server failed: %v", err)
		}
	}()

	dashboardURL := "http://localhost:" + port + "/dashboard"
	qr, err := api.NewQRGenerator().GenerateTerminal(dashboardURL)
	if err != nil {
		sugar.Warnf("failed to render dashboard QR code: %v", err)
	} else {
		sugar.Infof("dashboard: %s\n%s", dashboardURL, qr)
	}
	sugar.Infof("admin token: %s", token)
	sugar.Infof("sonorad running at http://0.0.0.0:%s", port)
	sugar.Infof("event feed at ws://0.0.0.0:%s/ws/events", eventPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("shutting down gracefully...")
	server.LinkManager().DisconnectAll()
	server.Stop()
}

// adminSecret generates a random HMAC signing key for the admin API's
// bearer tokens. The daemon is single-operator and stateless across
// restarts, so a fresh secret each boot is sufficient — any token
// issued by a previous run is simply invalidated.
func adminSecret() ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}
