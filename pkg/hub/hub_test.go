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

package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/tagbind/pkg/binding"
	"github.com/carverauto/tagbind/pkg/logger"
	"github.com/carverauto/tagbind/pkg/models"
)

const (
	waitFor = 2 * time.Second
	tickFor = 10 * time.Millisecond
)

type listerFunc func(ctx context.Context, class string) []models.DeviceRecord

func (f listerFunc) ListDevices(ctx context.Context, class string) []models.DeviceRecord {
	return f(ctx, class)
}

func testSessions() (*binding.Session, *binding.Session) {
	lister := listerFunc(func(context.Context, string) []models.DeviceRecord {
		return []models.DeviceRecord{{ID: "D1", Status: "online", Fields: map[string]interface{}{"ai2": 42.5}}}
	})

	a := binding.NewSession("a", lister, logger.NewTestLogger())
	b := binding.NewSession("b", lister, logger.NewTestLogger())

	a.Bind(models.Binding{
		FieldBinding: models.FieldBinding{DeviceClass: "modelX", DeviceID: "D1", Field: "ai2"},
		Expression:   `CONCAT("Level=", VALUE, "%")`,
	})

	return a, b
}

func newTestServer(t *testing.T, opts Options) (*Hub, *httptest.Server, *binding.Session) {
	t.Helper()

	a, b := testSessions()

	h := New(logger.NewTestLogger(), opts)
	h.Attach(a, b)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})

	return h, srv, a
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestListBindings(t *testing.T) {
	_, srv, a := newTestServer(t, Options{})

	a.Tick(context.Background())

	resp, err := http.Get(srv.URL + "/api/bindings")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var views []map[string]interface{}
	decode(t, resp, &views)

	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0]["id"])
	assert.Equal(t, "live", views[0]["state"])
	assert.Equal(t, "Level=42.5%", views[0]["display"])
	assert.Equal(t, true, views[0]["online"])
	assert.Equal(t, "b", views[1]["id"])
	assert.Equal(t, "unbound", views[1]["state"])
	assert.Equal(t, "-", views[1]["display"])
}

func TestPutAndDeleteBinding(t *testing.T) {
	_, srv, _ := newTestServer(t, Options{})

	body := `{"device_class":"modelX","device_id":"D1","field":"ai2","expression":"VALUE*2"}`

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/bindings/b", strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var view map[string]interface{}
	decode(t, resp, &view)
	assert.Equal(t, "pending", view["state"])

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/api/bindings/b", http.NoBody)
	require.NoError(t, err)

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/bindings/b")
	require.NoError(t, err)
	decode(t, resp, &view)
	assert.Equal(t, "unbound", view["state"])
}

func TestBindingErrors(t *testing.T) {
	_, srv, _ := newTestServer(t, Options{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown get", http.MethodGet, "/api/bindings/zzz", "", http.StatusNotFound},
		{"unknown put", http.MethodPut, "/api/bindings/zzz", `{}`, http.StatusNotFound},
		{"unknown delete", http.MethodDelete, "/api/bindings/zzz", "", http.StatusNotFound},
		{"bad json", http.MethodPut, "/api/bindings/a", `{`, http.StatusBadRequest},
		{"incomplete", http.MethodPut, "/api/bindings/a", `{"device_class":"modelX"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)

			var out map[string]string
			decode(t, resp, &out)

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestHealthz(t *testing.T) {
	_, srv, _ := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)

	var out map[string]interface{}
	decode(t, resp, &out)

	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, float64(2), out["sessions"])
	assert.Equal(t, false, out["visible"])
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)

	_ = resp.Body.Close()

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))

	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func TestStreamSendsSnapshots(t *testing.T) {
	h, srv, a := newTestServer(t, Options{})

	conn := dial(t, srv)

	first := readMessage(t, conn)
	second := readMessage(t, conn)

	assert.Equal(t, msgSnapshot, first["type"])
	assert.Equal(t, "a", first["view"].(map[string]interface{})["id"])
	assert.Equal(t, "b", second["view"].(map[string]interface{})["id"])

	require.Eventually(t, func() bool { return h.Clients() == 1 }, waitFor, tickFor)

	a.Tick(context.Background())

	update := readMessage(t, conn)
	view := update["view"].(map[string]interface{})

	assert.Equal(t, "a", view["id"])
	assert.Equal(t, "live", view["state"])
	assert.Equal(t, "Level=42.5%", view["display"])
}

func TestStreamVisibility(t *testing.T) {
	h, srv, _ := newTestServer(t, Options{})

	assert.False(t, h.Visible())

	conn := dial(t, srv)

	require.Eventually(t, h.Visible, waitFor, tickFor)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "visibility", "visible": false}))
	require.Eventually(t, func() bool { return !h.Visible() }, waitFor, tickFor)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "visibility", "visible": true}))
	require.Eventually(t, h.Visible, waitFor, tickFor)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !h.Visible() && h.Clients() == 0 }, waitFor, tickFor)
}

func TestStreamPingAndErrors(t *testing.T) {
	_, srv, _ := newTestServer(t, Options{})

	conn := dial(t, srv)

	// initial snapshots
	readMessage(t, conn)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, msgPong, readMessage(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))
	assert.Equal(t, msgError, readMessage(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	assert.Equal(t, msgError, readMessage(t, conn)["type"])
}

func TestStreamRejectsOrigin(t *testing.T) {
	_, srv, _ := newTestServer(t, Options{AllowedOrigins: []string{"https://ok.example"}})

	header := http.Header{"Origin": []string{"https://evil.example"}}

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCloseDisconnectsClients(t *testing.T) {
	h, srv, a := newTestServer(t, Options{})

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, waitFor, tickFor)

	h.Close()
	assert.Zero(t, h.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// detached sessions no longer reach the hub
	a.Tick(context.Background())
	assert.Zero(t, h.Clients())
}
