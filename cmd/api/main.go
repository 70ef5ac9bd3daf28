package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cart-autofill/config"
	"cart-autofill/internal/app"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	logger := app.NewLogger(false)

	cfg, err := config.Load(os.Getenv("CARTAUTOFILL_CONFIG"))
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Infof("Starting cart-autofill API")
	logger.Infof("Environment: %s", cfg.Environment)
	logger.Infof("Port: %s", cfg.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt := app.Start(cfg, logger)
	defer rt.Close()

	if err := rt.Serve(ctx, cfg, logger); err != nil {
		logger.Errorf("Server stopped: %v", err)
	}
}
