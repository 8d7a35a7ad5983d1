/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/carverauto/tagbind/pkg/app"
	"github.com/carverauto/tagbind/pkg/config"
	"github.com/carverauto/tagbind/pkg/lifecycle"
	"github.com/carverauto/tagbind/pkg/logger"
	"github.com/carverauto/tagbind/pkg/metrics"
)

const telemetryShutdownTimeout = 5 * time.Second

var errFailedToLoadConfig = errors.New("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/tagbind/tagbind.json", "Path to tagbind config file")
	flag.Parse()

	ctx := context.Background()

	var cfg app.Config

	if err := config.NewConfig(nil).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	mainLogger, err := lifecycle.CreateComponentLogger("tagbind", logConfig)
	if err != nil {
		return err
	}

	if _, err := metrics.InitializeMetrics(ctx, cfg.Metrics); err != nil && !errors.Is(err, metrics.ErrOTelMetricsDisabled) {
		mainLogger.Warn().Err(err).Msg("Metrics export unavailable")
	}

	tp, err := metrics.InitializeTracing(ctx, cfg.Metrics)
	if err != nil {
		mainLogger.Warn().Err(err).Msg("Tracing unavailable")
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()

		if tp != nil {
			if err := tp.Shutdown(shutdownCtx); err != nil {
				mainLogger.Warn().Err(err).Msg("Failed to shut down tracing")
			}
		}

		if err := metrics.ShutdownMetrics(shutdownCtx); err != nil {
			mainLogger.Warn().Err(err).Msg("Failed to flush metrics")
		}

		if err := logger.ShutdownOTel(shutdownCtx); err != nil {
			mainLogger.Warn().Err(err).Msg("Failed to flush logs")
		}
	}()

	daemon, err := app.New(ctx, &cfg, mainLogger)
	if err != nil {
		return err
	}

	return daemon.Run(ctx)
}
