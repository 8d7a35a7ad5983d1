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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/tagbind/pkg/logger"
	"github.com/carverauto/tagbind/pkg/models"
)

var errMissingName = errors.New("name is required")

type apiSection struct {
	BaseURL string          `json:"base_url"`
	Timeout models.Duration `json:"timeout"`
}

type testConfig struct {
	Name     string            `json:"name"`
	Interval models.Duration   `json:"interval"`
	Enabled  bool              `json:"enabled"`
	Retries  int               `json:"retries"`
	Ratio    float64           `json:"ratio"`
	Tags     []string          `json:"tags"`
	Headers  map[string]string `json:"headers"`
	API      apiSection        `json:"api"`
	Extra    *apiSection       `json:"extra,omitempty"`
	Items    []apiSection      `json:"items"`
	ignored  string
}

func (c *testConfig) Validate() error {
	if c.Name == "" {
		return errMissingName
	}

	if c.Retries == 0 {
		c.Retries = 3
	}

	return nil
}

func writeFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadAndValidate_File(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	path := writeFile(t, `{"name":"binder","interval":"2s","api":{"base_url":"http://x","timeout":"5s"}}`)

	var cfg testConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	require.NoError(t, err)

	assert.Equal(t, "binder", cfg.Name)
	assert.Equal(t, 2*time.Second, time.Duration(cfg.Interval))
	assert.Equal(t, 5*time.Second, time.Duration(cfg.API.Timeout))
	assert.Equal(t, 3, cfg.Retries, "Validate should apply defaults")
}

func TestLoadAndValidate_ValidationError(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "file")

	path := writeFile(t, `{"interval":"2s"}`)

	var cfg testConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg)
	assert.ErrorIs(t, err, errMissingName)
}

func TestLoadAndValidate_BadFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	var cfg testConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), filepath.Join(t.TempDir(), "missing.json"), &cfg)
	assert.Error(t, err)

	err = NewConfig(nil).LoadAndValidate(context.Background(), writeFile(t, `{"name":`), &cfg)
	assert.Error(t, err)
}

func TestFileConfigLoader_Errors(t *testing.T) {
	var cfg testConfig

	loader := &FileConfigLoader{}

	err := loader.Load(context.Background(), writeFile(t, "  \n"), &cfg)
	require.ErrorIs(t, err, errEmptyConfigFile)

	err = loader.Load(context.Background(), writeFile(t, `{"name":"a"} {"name":"b"}`), &cfg)
	require.ErrorIs(t, err, errTrailingConfigData)

	err = loader.Load(context.Background(), writeFile(t, "{\n  \"name\": \"a\",\n  \"interval\": x\n}"), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3 column 15")
}

func TestPosition(t *testing.T) {
	data := []byte("ab\ncd\nef")

	line, col := position(data, 0)
	assert.Equal(t, [2]int{1, 0}, [2]int{line, col})

	line, col = position(data, 5)
	assert.Equal(t, [2]int{2, 2}, [2]int{line, col})

	line, col = position(data, 100)
	assert.Equal(t, [2]int{3, 2}, [2]int{line, col})
}

func TestLoadAndValidate_InvalidSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "kv")

	var cfg testConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg)
	assert.ErrorIs(t, err, errInvalidConfigSource)
}

func TestEnvConfigLoader(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "TB_")
	t.Setenv("TB_NAME", "from-env")
	t.Setenv("TB_INTERVAL", "1500ms")
	t.Setenv("TB_ENABLED", "true")
	t.Setenv("TB_RETRIES", "7")
	t.Setenv("TB_RATIO", "0.25")
	t.Setenv("TB_TAGS", "a, b ,c")
	t.Setenv("TB_HEADERS", `{"x-tenant":"t1"}`)
	t.Setenv("TB_API_BASE_URL", "http://backend")
	t.Setenv("TB_API_TIMEOUT", "3000000000")
	t.Setenv("TB_EXTRA_BASE_URL", "http://extra")
	t.Setenv("TB_ITEMS", `[{"base_url":"http://i1","timeout":"1s"}]`)

	var cfg testConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 1500*time.Millisecond, time.Duration(cfg.Interval))
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 7, cfg.Retries)
	assert.InDelta(t, 0.25, cfg.Ratio, 1e-9)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Tags)
	assert.Equal(t, map[string]string{"x-tenant": "t1"}, cfg.Headers)
	assert.Equal(t, "http://backend", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, time.Duration(cfg.API.Timeout))
	require.NotNil(t, cfg.Extra)
	assert.Equal(t, "http://extra", cfg.Extra.BaseURL)
	require.Len(t, cfg.Items, 1)
	assert.Equal(t, time.Second, time.Duration(cfg.Items[0].Timeout))
	assert.Empty(t, cfg.ignored)
}

func TestEnvConfigLoader_InvalidValueIsSkipped(t *testing.T) {
	t.Setenv("X_NAME", "ok")
	t.Setenv("X_RETRIES", "many")

	var cfg testConfig

	err := NewEnvConfigLoader(logger.NewTestLogger(), "X_").Load(context.Background(), "", &cfg)
	require.NoError(t, err)
	assert.Equal(t, "ok", cfg.Name)
	assert.Zero(t, cfg.Retries)
}

func TestEnvConfigLoader_ConfigJSON(t *testing.T) {
	t.Setenv("Y_CONFIG_JSON", `{"name":"json","retries":2}`)

	var cfg testConfig

	err := NewEnvConfigLoader(logger.NewTestLogger(), "Y_").Load(context.Background(), "", &cfg)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Name)
	assert.Equal(t, 2, cfg.Retries)
}

func TestEnvConfigLoader_RejectsNonPointer(t *testing.T) {
	loader := NewEnvConfigLoader(logger.NewTestLogger(), "Z_")

	assert.ErrorIs(t, loader.Load(context.Background(), "", testConfig{}), ErrDstMustBeNonNilPointer)

	s := "x"
	assert.ErrorIs(t, loader.Load(context.Background(), "", &s), ErrDstMustBePointerToStruct)
}
