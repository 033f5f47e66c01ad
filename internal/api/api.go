// internal/api/api.go
// Wires the registry, the broker ingestion loop and the HTTP endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/erilali/liveactivity/internal/broker"
	"github.com/erilali/liveactivity/internal/config"
	"github.com/erilali/liveactivity/internal/hub"
	"github.com/erilali/liveactivity/internal/logger"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	version           = "1.0.0"
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Acceptor is the WebSocket side of the hub.
type Acceptor interface {
	ServeWs(http.ResponseWriter, *http.Request)
	Len() int
}

// BrokerStatus reports whether events are currently flowing in.
type BrokerStatus interface {
	Connected() bool
}

// StartServer runs the bridge until ctx is cancelled. It returns an error only
// when the process cannot start (salt seeding, binding the listen address).
func StartServer(ctx context.Context, cfg *config.Config, serverLogger *logger.Logger) error {
	salts, err := hub.NewSaltSource()
	if err != nil {
		return err
	}

	h := hub.NewHub(salts, hub.Options{
		MaxFrameSize:  cfg.MaxFrameSize,
		SendQueueSize: cfg.SendQueueSize,
	}, logger.NewLogger("hub"))

	source := NewSource(cfg)
	ingestor := broker.NewIngestor(source, h, cfg.BrokerReconnectDelay, logger.NewLogger("broker"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		ingestor.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           NewHandler(h, ingestor, serverLogger),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serverLogger.WithFields(map[string]interface{}{
			"addr":   cfg.ListenAddr,
			"broker": source.String(),
		}).Info("Server started")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		cancel()
		wg.Wait()
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	case <-ctx.Done():
	}

	serverLogger.Info("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		serverLogger.WithError(err).Warn("HTTP shutdown did not finish cleanly")
	}
	wg.Wait()
	return nil
}

// NewSource picks the broker transport from the configuration.
func NewSource(cfg *config.Config) broker.Source {
	if cfg.Broker == config.BrokerNATS {
		return broker.NewNATSSource(cfg.NatsURL)
	}
	return broker.NewAMQPSource(cfg.AMQPURL())
}

// NewHandler serves WebSocket upgrades on /ws (and on any other path that
// asks for one), plus /health and /metrics.
func NewHandler(acceptor Acceptor, status BrokerStatus, serverLogger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", acceptor.ServeWs)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			acceptor.ServeWs(w, r)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		brokerStatus := "disconnected"
		if status.Connected() {
			brokerStatus = "connected"
		}
		health := map[string]interface{}{
			"status":      "ok",
			"broker":      brokerStatus,
			"connections": acceptor.Len(),
			"version":     version,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(health); err != nil {
			serverLogger.WithError(err).Debug("Writing health response failed")
		}
	})

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
