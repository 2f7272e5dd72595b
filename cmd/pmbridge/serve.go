package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/pmbridge"
)

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}

	cfg, err := pmbridge.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logger, err := cfg.Log.New()
	if err != nil {
		return fmt.Errorf("error building logger: %w", err)
	}

	gc := pmbridge.GroupConfig{
		Name:        cfg.Group.Name,
		Interpreter: cfg.Group.Interpreter,
		WorkDir:     cfg.Group.WorkDir,
		Logger:      logger,
	}

	if cfg.History != nil && cfg.History.DSN != "" {
		sink, err := pmbridge.NewHistorySink(cfg.History.DSN)
		if err != nil {
			return fmt.Errorf("error building history sink: %w", err)
		}
		gc.Sinks = append(gc.Sinks, sink)
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := pmbridge.RegisterMetricsDefault(); err != nil {
			logger.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := pmbridge.ServeMetrics(cfg.Metrics.Listen); err != nil {
					logger.Error("metrics server error", "error", err)
				}
			}()
		}
	}

	exec := pmbridge.NewExecutor(cfg.PM2.Bin, cfg.PM2.Timeout, logger)
	grp, err := pmbridge.NewGroup(gc, exec)
	if err != nil {
		return fmt.Errorf("error building group: %w", err)
	}

	if cfg.Server == nil {
		return fmt.Errorf("server must be configured to run serve command")
	}
	server, err := pmbridge.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, grp)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	logger.Info("serving group API", "group", grp.Name(), "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	return server.Close()
}
