package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KozyOps/ble-tui/cp26"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the BLE module")
	flag.Int("baud-rate", 9600, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("mqtt-broker", "", "MQTT broker URL (empty disables the bridge)")
	flag.String("mqtt-client-id", "ble-bridge-1", "MQTT client id")
	flag.String("mqtt-topic-prefix", "ble", "MQTT topic prefix")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	moduleConfig, err := cp26.NewConfigBuilder().
		WithCommandTimeout(2 * time.Second).
		WithProbeTimeout(500 * time.Millisecond).
		WithResetSettle(time.Second).
		WithLogger(logger.With("component", "cp26")).
		WithDialer(cp26.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create module config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := cp26.New(ctx, moduleConfig)
	if err != nil {
		logger.Error("Failed to create module", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := m.Loop(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Event loop exited", "error", err)
		}
	}()

	// The interpreter flag persists on the device across sessions, so the
	// channel mode is unknown until probed.
	probeCtx, probeCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := m.Probe(probeCtx); err != nil {
		logger.Warn("Initial mode probe failed", "error", err)
	}
	probeCancel()
	logger.Info("Starting BLE bridge", "port", config.SerialPort, "mode", m.Mode().String())

	var bridge *MqttBridge
	if config.MqttBroker != "" {
		bridge, err = NewMqttBridge(logger.With("component", "mqtt"), m, config)
		if err != nil {
			logger.Error("Failed to start MQTT bridge", "error", err)
			os.Exit(1)
		}
		go bridge.Run(ctx)
		logger.Info("MQTT bridge connected", "broker", config.MqttBroker)
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger: logger.With("component", "server"),
			Module: m,
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	if bridge != nil {
		bridge.Close()
	}

	logger.Info("Closing module connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close module", "error", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}
