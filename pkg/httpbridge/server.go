// Package httpbridge exposes the orchestrator operations over HTTP.
//
// Every operation answers with the JSON encoded orchestrator.Result, except
// a successful preview still which is served as image/jpeg.
package httpbridge

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/user/screencap/pkg/orchestrator"
	"github.com/user/screencap/pkg/ports"
)

// Bridge is the subset of the orchestrator served over HTTP.
type Bridge interface {
	Start(ctx context.Context) orchestrator.Result
	Stop() orchestrator.Result
	Status() orchestrator.Result
	StartRecording(path string) orchestrator.Result
	StopRecording() orchestrator.Result
	AbortRecording() orchestrator.Result
	CaptureStill(path string) orchestrator.Result
	LastPreviewStill() orchestrator.Result
}

// Handler routes bridge requests. The preview viewer, if set, is mounted
// at /ws.
type Handler struct {
	bridge Bridge
	logger ports.Logger
	mux    *http.ServeMux
}

// New creates the handler.
func New(bridge Bridge, viewer http.Handler, logger ports.Logger) *Handler {
	h := &Handler{
		bridge: bridge,
		logger: logger.WithComponent("http"),
		mux:    http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /api/start", func(w http.ResponseWriter, r *http.Request) {
		h.reply(w, bridge.Start(r.Context()))
	})
	h.mux.HandleFunc("POST /api/stop", func(w http.ResponseWriter, r *http.Request) {
		h.reply(w, bridge.Stop())
	})
	h.mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		h.reply(w, bridge.Status())
	})
	h.mux.HandleFunc("POST /api/recording/start", func(w http.ResponseWriter, r *http.Request) {
		h.reply(w, bridge.StartRecording(r.FormValue("path")))
	})
	h.mux.HandleFunc("POST /api/recording/stop", func(w http.ResponseWriter, r *http.Request) {
		h.reply(w, bridge.StopRecording())
	})
	h.mux.HandleFunc("POST /api/recording/abort", func(w http.ResponseWriter, r *http.Request) {
		h.reply(w, bridge.AbortRecording())
	})
	h.mux.HandleFunc("POST /api/capture", func(w http.ResponseWriter, r *http.Request) {
		h.reply(w, bridge.CaptureStill(r.FormValue("path")))
	})
	h.mux.HandleFunc("GET /api/preview.jpg", h.previewStill)
	if viewer != nil {
		h.mux.Handle("GET /ws", viewer)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) previewStill(w http.ResponseWriter, r *http.Request) {
	res := h.bridge.LastPreviewStill()
	data, ok := res.Data.([]byte)
	if !res.OK() || !ok {
		h.reply(w, res)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// reply writes res as JSON. Failures use 409 so clients can branch on the
// status line without parsing the body.
func (h *Handler) reply(w http.ResponseWriter, res orchestrator.Result) {
	w.Header().Set("Content-Type", "application/json")
	if !res.OK() {
		w.WriteHeader(http.StatusConflict)
	}
	if err := json.NewEncoder(w).Encode(res); err != nil {
		h.logger.Warn("Failed to write response: %v", err)
	}
}
