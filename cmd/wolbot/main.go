/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"

	"github.com/dpiccone/wolbot/internal/bot"
	"github.com/dpiccone/wolbot/internal/config"
	"github.com/dpiccone/wolbot/internal/probe"
	"github.com/dpiccone/wolbot/internal/registry"
	"github.com/dpiccone/wolbot/internal/wol"
)

func main() {
	var configPath string
	var healthAddr string
	var development bool

	flag.StringVar(&configPath, "config", config.DefaultPath, "Path to the configuration file")
	flag.StringVar(&healthAddr, "health-addr", "",
		"Health and metrics listen address (overrides the config file)")
	flag.BoolVar(&development, "debug", false, "Enable development logging")
	flag.Parse()

	zapLog, err := buildZap(development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zapLog.Sync() }()

	logger := zapr.NewLogger(zapLog)
	setupLog := logger.WithName("setup")

	setupLog.Info("Starting WOL Bot", "config", configPath, "version", "v0.1.0")

	// The token never lives in the config file; it comes from the
	// environment like any other credential.
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		setupLog.Error(nil, "TELEGRAM_BOT_TOKEN environment variable is required")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		setupLog.Error(err, "Failed to load config", "path", configPath)
		os.Exit(1)
	}
	if healthAddr != "" {
		cfg.HealthAddr = healthAddr
	}

	// Context con signal handling per graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := registry.Build(cfg.Devices, logger.WithName("registry"))
	if reg.Len() == 0 {
		setupLog.Info("No devices registered, /wake and /status have nothing to work with")
	}

	tg, err := bot.NewTelegram(token, logger.WithName("telegram"))
	if err != nil {
		setupLog.Error(err, "Failed to connect to Telegram")
		os.Exit(1)
	}

	engine := bot.NewEngine(
		reg,
		wol.NewTransmitter(cfg.Interface, logger.WithName("transmitter")),
		probe.NewPinger(logger.WithName("probe")),
		tg,
		cfg.AllowedUsers,
		logger.WithName("bot"),
	)

	if cfg.HealthAddr != "" {
		health := bot.NewHealthServer(cfg.HealthAddr, tg.Running, logger.WithName("health"))
		go func() {
			if err := health.Run(ctx); err != nil {
				setupLog.Error(err, "Health server failed")
			}
		}()
	}

	if err := tg.Run(ctx, engine.HandleMessage); err != nil {
		setupLog.Error(err, "Update loop failed")
		os.Exit(1)
	}

	setupLog.Info("WOL Bot stopped gracefully")
}

func buildZap(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
