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

package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitializeMetricsDisabled(t *testing.T) {
	tests := []struct {
		name   string
		config *OTelConfig
	}{
		{"nil", nil},
		{"not enabled", &OTelConfig{Endpoint: "localhost:4317"}},
		{"no endpoint", &OTelConfig{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := InitializeMetrics(context.Background(), tt.config)
			require.ErrorIs(t, err, ErrOTelMetricsDisabled)
			assert.Nil(t, provider)
		})
	}

	require.NoError(t, ShutdownMetrics(context.Background()))
}

func TestInitializeMetricsBadTLS(t *testing.T) {
	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile, []byte("not a certificate"), 0o600))

	_, err := InitializeMetrics(context.Background(), &OTelConfig{
		Enabled:  true,
		Endpoint: "collector:4317",
		TLS:      &TLSConfig{CAFile: caFile},
	})
	require.ErrorIs(t, err, errFailedToParseCACert)
}

func TestSetupTLSConfigMissingFiles(t *testing.T) {
	_, err := setupTLSConfig(&TLSConfig{CAFile: filepath.Join(t.TempDir(), "missing.pem")})
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = setupTLSConfig(&TLSConfig{CertFile: "missing.crt", KeyFile: "missing.key"})
	require.Error(t, err)

	cfg, err := setupTLSConfig(&TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg.RootCAs)
}

func TestInitializeTracingWithoutExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	tp, err := InitializeTracing(context.Background(), &OTelConfig{ServiceName: "tagbind-test"})
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestConfigDefaults(t *testing.T) {
	var c *OTelConfig

	assert.False(t, c.exporting())
	assert.Equal(t, defaultServiceName, c.serviceName())
	assert.Equal(t, defaultServiceVersion, c.serviceVersion())

	c = &OTelConfig{Enabled: true, Endpoint: "x:4317", ServiceName: "svc", ServiceVersion: "2.0.0"}
	assert.True(t, c.exporting())
	assert.Equal(t, "svc", c.serviceName())
	assert.Equal(t, "2.0.0", c.serviceVersion())
}
