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

package directory

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName              = "tagbind.directory"
	metricCandidateTotal   = "tagbind_directory_candidate_total"
	metricCandidateLatency = "tagbind_directory_candidate_latency_seconds"
	metricCacheTotal       = "tagbind_directory_cache_total"
)

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	candidateCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	candidateHistogram metric.Float64Histogram
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	cacheCounter metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	counter, err := meter.Int64Counter(
		metricCandidateTotal,
		metric.WithDescription("Directory candidate fetches by outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}
	candidateCounter = counter

	hist, err := meter.Float64Histogram(
		metricCandidateLatency,
		metric.WithDescription("Latency of directory candidate fetches"),
		metric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}
	candidateHistogram = hist

	cache, err := meter.Int64Counter(
		metricCacheTotal,
		metric.WithDescription("Per-tick directory cache lookups by result"),
	)
	if err != nil {
		otel.Handle(err)
	}
	cacheCounter = cache
}

func recordCandidate(ctx context.Context, class, strategy, outcome string, elapsed time.Duration) {
	meterOnce.Do(initMeter)

	attrs := metric.WithAttributes(
		attribute.String("device_class", class),
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	)

	if candidateCounter != nil {
		candidateCounter.Add(ctx, 1, attrs)
	}

	if candidateHistogram != nil {
		candidateHistogram.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func recordCache(ctx context.Context, class string, hit bool) {
	meterOnce.Do(initMeter)
	if cacheCounter == nil {
		return
	}

	cacheCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("device_class", class),
		attribute.Bool("hit", hit),
	))
}
