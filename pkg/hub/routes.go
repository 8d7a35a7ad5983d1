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
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/carverauto/tagbind/pkg/models"
)

const maxBindingBody = 64 << 10

// Router returns the HTTP handler serving the stream and the bindings API.
func (h *Hub) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.healthz)
	r.Get("/ws", h.serveWS)

	r.Route("/api/bindings", func(r chi.Router) {
		r.Get("/", h.listBindings)
		r.Get("/{id}", h.getBinding)
		r.Put("/{id}", h.putBinding)
		r.Delete("/{id}", h.deleteBinding)
	})

	return r
}

func (h *Hub) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func (h *Hub) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": len(h.Views()),
		"clients":  h.Clients(),
		"visible":  h.Visible(),
	})
}

func (h *Hub) listBindings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Views())
}

func (h *Hub) getBinding(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Session(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "binding not found")
		return
	}

	writeJSON(w, http.StatusOK, newView(s.Snapshot()))
}

func (h *Hub) putBinding(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Session(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "binding not found")
		return
	}

	var b models.Binding
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBindingBody)).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid binding: "+err.Error())
		return
	}

	if b.IsZero() {
		writeError(w, http.StatusBadRequest, "device_class, device_id and field are required")
		return
	}

	s.Bind(b)

	h.logger.Info().
		Str("session", s.ID()).
		Str("device_class", b.DeviceClass).
		Str("device_id", b.DeviceID).
		Str("field", b.Field).
		Msg("Binding updated")

	writeJSON(w, http.StatusOK, newView(s.Snapshot()))
}

func (h *Hub) deleteBinding(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Session(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "binding not found")
		return
	}

	s.Unbind()

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
