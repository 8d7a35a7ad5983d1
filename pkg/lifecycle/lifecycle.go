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

// Package lifecycle wires loggers and runs long-lived services until a
// shutdown signal arrives.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/tagbind/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Service is a component with a blocking Start and a Stop that unblocks it.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// CreateComponentLogger creates a logger for a specific component.
func CreateComponentLogger(component string, config *logger.Config) (logger.Logger, error) {
	base, err := logger.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.Wrap(base.WithComponent(component)), nil
}

// RunOptions controls Run.
type RunOptions struct {
	ShutdownTimeout time.Duration
	Signals         []os.Signal
}

// Run starts every service and blocks until ctx is cancelled, a signal
// arrives, or a service returns. Services are stopped in reverse order.
func Run(ctx context.Context, log logger.Logger, opts *RunOptions, services ...Service) error {
	if opts == nil {
		opts = &RunOptions{}
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	ctx, stop := signal.NotifyContext(ctx, signals...)
	defer stop()

	errCh := make(chan error, len(services))

	for _, svc := range services {
		go func(svc Service) {
			errCh <- svc.Start(ctx)
		}(svc)
	}

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
			log.Error().Err(err).Msg("Service exited with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping service")
			runErr = errors.Join(runErr, err)
		}
	}

	return runErr
}
