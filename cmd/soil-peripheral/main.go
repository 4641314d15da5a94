package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/soil-peripheral/internal/ble"
	"github.com/chaz8081/soil-peripheral/internal/config"
	"github.com/chaz8081/soil-peripheral/internal/moisture"
	"github.com/chaz8081/soil-peripheral/internal/peripheral"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/soil-peripheral/config.yaml)")
	writeConfig := flag.Bool("write-config", false, "write the default config file and exit")
	flag.Parse()

	if *writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s, not overwriting", config.DefaultConfigPath())
			return
		}
		log.Printf("Wrote default config to %s", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	printBanner(cfg)

	adapter, err := ble.NewAdapter(cfg.BLE.Backend, slog.Default())
	if err != nil {
		log.Fatalf("ble: %v", err)
	}

	source, err := moisture.NewSource(cfg.Sensor.Mode)
	if err != nil {
		log.Fatalf("sensor: %v", err)
	}

	p := peripheral.New(adapter, source, peripheral.Options{
		DeviceName:         cfg.BLE.DeviceName,
		ServiceUUID:        cfg.BLE.ServiceUUID,
		CharacteristicUUID: cfg.BLE.CharacteristicUUID,
		Writable:           cfg.BLE.Writable,
		Interval:           cfg.Sensor.Interval,
		RestartAdvertising: cfg.BLE.RestartAdvertising,
	})

	if err := p.Initialize(); err != nil {
		var initErr *peripheral.InitError
		if errors.As(err, &initErr) && errors.Is(err, ble.ErrUnsupported) {
			log.Fatalf("Failed to start BLE peripheral: %v\n\nThe %q backend cannot act as a peripheral on this platform. Try a Linux host with BlueZ.", err, cfg.BLE.Backend)
		}
		log.Fatalf("Failed to start BLE peripheral: %v", err)
	}
	log.Printf("Advertising as %q (restart on disconnect: %t)", cfg.BLE.DeviceName, cfg.BLE.RestartAdvertising)

	// Signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Ready! Sending a reading every %s. Ctrl+C to quit.", cfg.Sensor.Interval)

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("ERROR: run loop stopped: %v", err)
	}

	log.Println("Shutting down...")
	if err := adapter.StopAdvertising(); err != nil {
		slog.Debug("[BLE] stop advertising", "error", err)
	}
	log.Println("Goodbye!")
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== soil-peripheral ===")
	fmt.Printf("  Name:     %s\n", cfg.BLE.DeviceName)
	fmt.Printf("  Service:  %s\n", cfg.BLE.ServiceUUID)
	fmt.Printf("  Char:     %s (writable: %t)\n", cfg.BLE.CharacteristicUUID, cfg.BLE.Writable)
	fmt.Printf("  Backend:  %s\n", cfg.BLE.Backend)
	fmt.Printf("  Sensor:   %s every %s\n", cfg.Sensor.Mode, cfg.Sensor.Interval)
	fmt.Printf("  Log:      %s\n", cfg.LogLevel)
	fmt.Println("=======================")
}
