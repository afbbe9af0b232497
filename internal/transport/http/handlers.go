package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rcalder/wallcue/internal/dispatch"
	"github.com/rcalder/wallcue/internal/store"
	wsync "github.com/rcalder/wallcue/internal/sync"
	"github.com/rcalder/wallcue/internal/types"
)

// maxTextBytes caps the accepted message text. The wall renders a single
// marquee line; anything longer than this is an input mistake.
const maxTextBytes = 256

// WallConn is the slice of the OSC sender the settings handler needs.
type WallConn interface {
	Connected() bool
	Target() (host string, port int)
	Reconfigure(host string, port int) error
}

// Handler groups all HTTP request handlers around the message store.
type Handler struct {
	store    *store.Store
	disp     *dispatch.Dispatcher
	wall     WallConn
	rec      *wsync.Reconciler // may be nil when peer sync is disabled
	deviceID string
}

// ─── DTOs ─────────────────────────────────────────────────────────────────────

type addReq struct {
	Text        string `json:"text"`
	Identifier  string `json:"identifier"`
	LabelType   string `json:"label_type"`
	CustomLabel string `json:"custom_label"`
}

type editReq struct {
	Text        *string `json:"text"`
	Identifier  *string `json:"identifier"`
	LabelType   *string `json:"label_type"`
	CustomLabel *string `json:"custom_label"`
}

type listResp struct {
	Messages []*types.Message `json:"messages"`
}

type autoCycleReq struct {
	Interval string `json:"interval"`
}

type healthResp struct {
	Status        string   `json:"status"`
	DeviceID      string   `json:"device_id"`
	Queued        int      `json:"queued"`
	WallConnected bool     `json:"wall_connected"`
	Peers         []string `json:"peers"`
	Uptime        string   `json:"uptime"`
	UptimeMs      int64    `json:"uptime_ms"`
	Version       string   `json:"version"`
}

// ─── Health ───────────────────────────────────────────────────────────────────

var startTime = time.Now()

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	elapsed := time.Since(startTime)
	peers := []string{}
	if h.rec != nil {
		peers = h.rec.Peers(time.Minute)
	}
	writeJSON(w, http.StatusOK, healthResp{
		Status:        "ok",
		DeviceID:      h.deviceID,
		Queued:        h.store.Len(),
		WallConnected: h.wall.Connected(),
		Peers:         peers,
		Uptime:        elapsed.Round(time.Second).String(),
		UptimeMs:      elapsed.Milliseconds(),
		Version:       "1.0.0",
	})
}

// ─── Messages ─────────────────────────────────────────────────────────────────

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs := h.store.Snapshot()
	if msgs == nil {
		msgs = []*types.Message{}
	}
	writeJSON(w, http.StatusOK, listResp{Messages: msgs})
}

func (h *Handler) addMessage(w http.ResponseWriter, r *http.Request) {
	var req addReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Text) > maxTextBytes {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text too long"})
		return
	}
	labelType := types.LabelNone
	if req.LabelType != "" {
		labelType = types.LabelType(req.LabelType)
		if !labelType.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid label_type"})
			return
		}
	}

	msg, err := h.store.Add(req.Text, req.Identifier, labelType, req.CustomLabel)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, store.ErrEmptyText) {
			code = http.StatusBadRequest
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) getMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.store.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) editMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req editReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text != nil && len(*req.Text) > maxTextBytes {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text too long"})
		return
	}

	fields := store.EditFields{
		Text:        req.Text,
		Identifier:  req.Identifier,
		CustomLabel: req.CustomLabel,
	}
	if req.LabelType != nil {
		lt := types.LabelType(*req.LabelType)
		if !lt.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid label_type"})
			return
		}
		fields.LabelType = &lt
	}

	if err := h.store.Edit(id, fields); err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, store.ErrNotFound):
			code = http.StatusNotFound
		case errors.Is(err, store.ErrEmptyText):
			code = http.StatusBadRequest
		}
		writeError(w, code, err)
		return
	}

	msg, err := h.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) cancelMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Cancel(r.PathValue("id")); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) dispatchMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Dispatch(id); err != nil {
		code := http.StatusBadGateway
		switch {
		case errors.Is(err, store.ErrNotFound):
			code = http.StatusNotFound
		case errors.Is(err, dispatch.ErrNotConnected):
			code = http.StatusServiceUnavailable
		}
		writeError(w, code, err)
		return
	}

	msg, err := h.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) clearAll(w http.ResponseWriter, r *http.Request) {
	h.store.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

// ─── Auto-cycle ───────────────────────────────────────────────────────────────

func (h *Handler) startAutoCycle(w http.ResponseWriter, r *http.Request) {
	interval := 45 * time.Second
	if r.ContentLength != 0 {
		var req autoCycleReq
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Interval != "" {
			d, err := time.ParseDuration(req.Interval)
			if err != nil || d < time.Second {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "interval must be a duration of at least 1s"})
				return
			}
			interval = d
		}
	}
	h.store.StartAutoCycle(interval)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cycling",
		"interval": interval.String(),
	})
}

func (h *Handler) stopAutoCycle(w http.ResponseWriter, r *http.Request) {
	h.store.StopAutoCycle()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// ─── Peer sync ────────────────────────────────────────────────────────────────

func (h *Handler) forceSync(w http.ResponseWriter, r *http.Request) {
	if h.rec == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "peer sync is disabled"})
		return
	}
	h.rec.ForceSync()
	writeJSON(w, http.StatusOK, map[string]string{"status": "sync broadcast"})
}

// ─── OSC settings ─────────────────────────────────────────────────────────────

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.currentSettings())
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var req types.OSCSettings
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Host == "" || req.Port < 1 || req.Port > 65535 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "host and port are required"})
		return
	}
	if req.Layer < 1 || req.StartingClip < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "layer and starting_clip must be at least 1"})
		return
	}

	if err := h.wall.Reconfigure(req.Host, req.Port); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	// The submitted clear_clip is discarded; Reconfigure derives it.
	h.disp.Reconfigure(req.Layer, req.StartingClip)

	if h.rec != nil {
		h.rec.BroadcastSettings()
	}
	writeJSON(w, http.StatusOK, h.currentSettings())
}

func (h *Handler) currentSettings() types.OSCSettings {
	host, port := h.wall.Target()
	rot := h.disp.Rotation()
	return types.OSCSettings{
		Host:         host,
		Port:         port,
		Layer:        rot.Layer(),
		StartingClip: rot.StartingClip(),
		ClearClip:    rot.ClearClip(),
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
		return false
	}
	return true
}
