// Package app holds the bootstrap shared by the command-line entry points
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"cart-autofill/engine"
	"cart-autofill/internal/types"
	"cart-autofill/server"
	"cart-autofill/utils"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a logrus logger with millisecond timestamps.
// LOG_LEVEL wins over verbose.
func NewLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		if level, err := logrus.ParseLevel(levelStr); err == nil {
			logger.SetLevel(level)
		}
	} else if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}

// Runtime is a started browser with the engine attached to its tabs
type Runtime struct {
	Engine  *engine.Engine
	Browser *utils.BrowserClient
}

// Start launches the browser host and wires the engine onto it
func Start(config *types.Config, logger *logrus.Logger) *Runtime {
	browser := utils.NewBrowserClient(config, logger)
	eng := engine.New(config, logger, browser)
	browser.OnLoad(eng.OnLoad)
	return &Runtime{Engine: eng, Browser: browser}
}

// Close stops the engine and the browser
func (r *Runtime) Close() {
	r.Engine.Close()
	r.Browser.Close()
}

// Serve runs the HTTP bridge until ctx is done
func (r *Runtime) Serve(ctx context.Context, config *types.Config, logger *logrus.Logger) error {
	handler := server.NewHandler(r.Engine.Bridge(), r.Engine.Progress(), logger)
	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           server.SetupRouter(config, handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Infof("Server listening on %s", srv.Addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// LoadShoppingList reads a JSON array of shopping items from a file or an http(s) URL
func LoadShoppingList(ctx context.Context, source string, config *types.Config, logger types.Logger) ([]types.ShoppingItem, error) {
	var list []types.ShoppingItem

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := utils.NewHTTPClient(config, logger)
		defer client.Close()
		if err := client.GetJSON(ctx, source, &list); err != nil {
			return nil, fmt.Errorf("failed to fetch shopping list: %w", err)
		}
		return list, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read shopping list: %w", err)
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse shopping list %s: %w", source, err)
	}
	return list, nil
}
