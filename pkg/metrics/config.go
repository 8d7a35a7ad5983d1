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

// Package metrics wires the OpenTelemetry metric and trace pipelines to an
// OTLP collector.
package metrics

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/carverauto/tagbind/pkg/models"
)

var (
	// ErrOTelMetricsDisabled is returned when no exporter is configured.
	ErrOTelMetricsDisabled = errors.New("OTel metrics exporter disabled")

	errFailedToParseCACert = errors.New("failed to parse CA certificate")
)

const (
	defaultServiceName    = "tagbind"
	defaultServiceVersion = "1.0.0"
)

// TLSConfig points at the files used for a TLS connection to the collector.
type TLSConfig struct {
	CAFile   string `json:"ca_file,omitempty"`
	CertFile string `json:"cert_file,omitempty"`
	KeyFile  string `json:"key_file,omitempty"`
}

// OTelConfig describes the OTLP export pipeline.
type OTelConfig struct {
	Enabled        bool              `json:"enabled"`
	Endpoint       string            `json:"endpoint"`
	Insecure       bool              `json:"insecure"`
	Headers        map[string]string `json:"headers,omitempty"`
	TLS            *TLSConfig        `json:"tls,omitempty"`
	ExportInterval models.Duration   `json:"export_interval,omitempty"`
	ServiceName    string            `json:"service_name,omitempty"`
	ServiceVersion string            `json:"service_version,omitempty"`
}

func (c *OTelConfig) exporting() bool {
	return c != nil && c.Enabled && c.Endpoint != ""
}

func (c *OTelConfig) serviceName() string {
	if c == nil || c.ServiceName == "" {
		return defaultServiceName
	}

	return c.ServiceName
}

func (c *OTelConfig) serviceVersion() string {
	if c == nil || c.ServiceVersion == "" {
		return defaultServiceVersion
	}

	return c.ServiceVersion
}

func setupTLSConfig(tlsConfig *TLSConfig) (*tls.Config, error) {
	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}

		config.Certificates = []tls.Certificate{cert}
	}

	if tlsConfig.CAFile != "" {
		caCert, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, errFailedToParseCACert
		}

		config.RootCAs = caCertPool
	}

	return config, nil
}
