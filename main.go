package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"linfit/db"
	linhttp "linfit/http"
	"linfit/logging"
	"linfit/monitor"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port           int      `yaml:"port"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log logging.Config `yaml:"log"`
}

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	// 1. Load config (the zap logger is not up yet)
	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.Init(config.Log)
	defer logger.Sync()

	// 2. Initialize database
	if err := db.InitDB(config.Database.Path); err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Infof("database initialized at %s", config.Database.Path)

	// 3. Start monitor hub and HTTP server
	hub := monitor.NewHub()
	go hub.Start()

	serverConfig := linhttp.DefaultServerConfig()
	if config.Http.Port > 0 {
		serverConfig.Port = config.Http.Port
	}
	if config.Http.TimeoutSeconds > 0 {
		serverConfig.Timeout = time.Duration(config.Http.TimeoutSeconds) * time.Second
	}
	if len(config.Http.AllowedOrigins) > 0 {
		serverConfig.AllowedOrigins = config.Http.AllowedOrigins
	}

	server := linhttp.NewServer(serverConfig, hub)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 4. Heartbeat for websocket subscribers
	heartbeat := monitor.NewTrainingMonitor(hub)
	stopHeartbeat := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				heartbeat.SendHeartbeat()
			case <-stopHeartbeat:
				return
			}
		}
	}()

	// 5. Watch config for log-level changes
	watcher, err := watchConfig(configPath)
	if err != nil {
		logger.Warnf("config watch disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	// 6. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	close(stopHeartbeat)
	if err := server.Stop(); err != nil {
		logger.Warnf("server forced to shutdown: %v", err)
	}
	hub.Stop()
	if err := db.Close(); err != nil {
		logger.Warnf("failed to close database: %v", err)
	}

	logger.Info("exiting")
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// watchConfig re-reads the config on file writes and applies the log level.
// Other settings need a restart.
func watchConfig(path string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				config, err := loadConfig(path)
				if err != nil {
					zap.S().Warnf("config reload failed: %v", err)
					continue
				}
				logging.SetLevel(config.Log.Level)
				zap.S().Infof("config reloaded, log level now %q", config.Log.Level)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zap.S().Warnf("config watcher error: %v", err)
			}
		}
	}()
	return watcher, nil
}
