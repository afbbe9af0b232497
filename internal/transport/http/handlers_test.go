package http_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rcalder/wallcue/internal/config"
	"github.com/rcalder/wallcue/internal/dispatch"
	"github.com/rcalder/wallcue/internal/metrics"
	"github.com/rcalder/wallcue/internal/store"
	transporthttp "github.com/rcalder/wallcue/internal/transport/http"
	"github.com/rcalder/wallcue/internal/types"
)

// fakeConn satisfies dispatch.Sender and transporthttp.WallConn without a
// real UDP socket.
type fakeConn struct {
	mu   sync.Mutex
	host string
	port int
	sent int
}

func (c *fakeConn) Send([]byte) error { c.mu.Lock(); defer c.mu.Unlock(); c.sent++; return nil }
func (c *fakeConn) Connected() bool   { return true }

func (c *fakeConn) Target() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host, c.port
}

func (c *fakeConn) Reconfigure(host string, port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host, c.port = host, port
	return nil
}

type testServer struct {
	url  string
	conn *fakeConn
	st   *store.Store
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	conn := &fakeConn{host: cfg.OSC.Host, port: cfg.OSC.Port}
	disp := dispatch.New(conn, dispatch.NewRotation(cfg.OSC.Layer, cfg.OSC.StartingClip))
	st := store.New(store.Config{Countdown: time.Hour, Cooldown: time.Hour}, disp, nil)
	t.Cleanup(st.Close)

	srv := transporthttp.New(st, disp, conn, nil, nil, cfg, "dev-test", &metrics.Registry{})
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &testServer{url: hs.URL, conn: conn, st: st}
}

// do issues a request and decodes the JSON response body into out (when
// out is non-nil and the response has a body).
func (ts *testServer) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.url+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func (ts *testServer) addMessage(t *testing.T, text string) types.Message {
	t.Helper()
	var msg types.Message
	resp := ts.do(t, "POST", "/messages", map[string]string{
		"text": text, "identifier": "7", "label_type": "table_number",
	}, &msg)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add %q: status %d", text, resp.StatusCode)
	}
	return msg
}

// ─── messages ────────────────────────────────────────────────────────────────

func TestAddMessage(t *testing.T) {
	ts := newTestServer(t, nil)

	msg := ts.addMessage(t, "order ready")
	if msg.ID == "" {
		t.Error("created message has no id")
	}
	if msg.Text != "ORDER READY" {
		t.Errorf("text = %q, want upper-cased", msg.Text)
	}
	if msg.Status != types.StatusQueued {
		t.Errorf("status = %q, want queued", msg.Status)
	}
}

func TestAddMessageRejectsEmptyText(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.do(t, "POST", "/messages", map[string]string{"text": "   "}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAddMessageRejectsBadLabelType(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.do(t, "POST", "/messages", map[string]string{
		"text": "hi", "label_type": "zodiac_sign",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAddMessageRejectsOversizedText(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.do(t, "POST", "/messages", map[string]string{
		"text": strings.Repeat("A", 1000),
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.addMessage(t, "one")
	ts.addMessage(t, "two")

	var list struct {
		Messages []*types.Message `json:"messages"`
	}
	resp := ts.do(t, "GET", "/messages", nil, &list)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(list.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(list.Messages))
	}
	if list.Messages[0].Text != "ONE" || list.Messages[1].Text != "TWO" {
		t.Errorf("order not preserved: %v, %v", list.Messages[0].Text, list.Messages[1].Text)
	}
}

func TestGetMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	msg := ts.addMessage(t, "find me")

	var got types.Message
	resp := ts.do(t, "GET", "/messages/"+msg.ID, nil, &got)
	if resp.StatusCode != http.StatusOK || got.ID != msg.ID {
		t.Errorf("status %d, id %q", resp.StatusCode, got.ID)
	}

	resp = ts.do(t, "GET", "/messages/01JUNKNOWN000000000000000X", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", resp.StatusCode)
	}
}

func TestEditMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	msg := ts.addMessage(t, "draft")

	var got types.Message
	resp := ts.do(t, "PATCH", "/messages/"+msg.ID, map[string]string{"text": "final"}, &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got.Text != "FINAL" {
		t.Errorf("text = %q, want FINAL", got.Text)
	}

	resp = ts.do(t, "PATCH", "/messages/01JUNKNOWN000000000000000X",
		map[string]string{"text": "x"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", resp.StatusCode)
	}
}

func TestCancelMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	msg := ts.addMessage(t, "oops")

	resp := ts.do(t, "DELETE", "/messages/"+msg.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	resp = ts.do(t, "GET", "/messages/"+msg.ID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancelled queued message should be gone, status = %d", resp.StatusCode)
	}
}

func TestDispatchMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	msg := ts.addMessage(t, "show this")

	var got types.Message
	resp := ts.do(t, "POST", "/messages/"+msg.ID+"/dispatch", nil, &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got.Status != types.StatusSent {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if got.SentAt == nil {
		t.Error("sent message has no sent_at")
	}

	resp = ts.do(t, "POST", "/messages/01JUNKNOWN000000000000000X/dispatch", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", resp.StatusCode)
	}
}

func TestClearAll(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.addMessage(t, "a")
	ts.addMessage(t, "b")

	resp := ts.do(t, "POST", "/clear", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if ts.st.Len() != 0 {
		t.Errorf("store still holds %d messages", ts.st.Len())
	}
}

// ─── auto-cycle ──────────────────────────────────────────────────────────────

func TestAutoCycleStartStop(t *testing.T) {
	ts := newTestServer(t, nil)

	var out map[string]string
	resp := ts.do(t, "POST", "/autocycle/start", map[string]string{"interval": "2s"}, &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	if out["interval"] != "2s" {
		t.Errorf("interval = %q, want 2s", out["interval"])
	}

	resp = ts.do(t, "POST", "/autocycle/stop", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("stop status = %d", resp.StatusCode)
	}
}

func TestAutoCycleRejectsSubSecondInterval(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.do(t, "POST", "/autocycle/start", map[string]string{"interval": "10ms"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// ─── settings ────────────────────────────────────────────────────────────────

func TestGetSettingsDerivesClearClip(t *testing.T) {
	cfg := config.Default()
	cfg.OSC.Layer = 2
	cfg.OSC.StartingClip = 5
	ts := newTestServer(t, cfg)

	var s types.OSCSettings
	resp := ts.do(t, "GET", "/settings", nil, &s)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if s.Layer != 2 || s.StartingClip != 5 || s.ClearClip != 8 {
		t.Errorf("settings = %+v, want layer 2, start 5, clear 8", s)
	}
}

func TestPutSettingsIgnoresSubmittedClearClip(t *testing.T) {
	ts := newTestServer(t, nil)

	var s types.OSCSettings
	resp := ts.do(t, "PUT", "/settings", types.OSCSettings{
		Host: "10.0.0.9", Port: 2269, Layer: 3, StartingClip: 10, ClearClip: 77,
	}, &s)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if s.ClearClip != 13 {
		t.Errorf("clear_clip = %d, want re-derived 13", s.ClearClip)
	}
	if host, port := ts.conn.Target(); host != "10.0.0.9" || port != 2269 {
		t.Errorf("sender target = %s:%d", host, port)
	}
}

func TestPutSettingsValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, body := range []types.OSCSettings{
		{Host: "", Port: 2269, Layer: 1, StartingClip: 1},
		{Host: "x", Port: 0, Layer: 1, StartingClip: 1},
		{Host: "x", Port: 2269, Layer: 0, StartingClip: 1},
		{Host: "x", Port: 2269, Layer: 1, StartingClip: 0},
	} {
		resp := ts.do(t, "PUT", "/settings", body, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%+v: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

// ─── sync / misc ─────────────────────────────────────────────────────────────

func TestForceSyncWithoutPeersIsConflict(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.do(t, "POST", "/sync", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.addMessage(t, "pending")

	var h struct {
		Status        string `json:"status"`
		DeviceID      string `json:"device_id"`
		Queued        int    `json:"queued"`
		WallConnected bool   `json:"wall_connected"`
	}
	resp := ts.do(t, "GET", "/health", nil, &h)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if h.Status != "ok" || h.DeviceID != "dev-test" || h.Queued != 1 || !h.WallConnected {
		t.Errorf("health = %+v", h)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.addMessage(t, "counted")

	resp := ts.do(t, "GET", "/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("wallcue_")) {
		t.Errorf("metrics output missing wallcue_ families:\n%s", body)
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "hunter2"
	ts := newTestServer(t, cfg)

	resp := ts.do(t, "GET", "/messages", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("without key: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest("GET", ts.url+"/messages", nil)
	req.Header.Set("X-Api-Key", "hunter2")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Errorf("with key: status = %d, want 200", authed.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	req, _ := http.NewRequest(http.MethodOptions, ts.url+"/messages", nil)
	req.Header.Set("Origin", "http://tablet.local")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://tablet.local" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	ts := newTestServer(t, nil)
	resp := ts.do(t, "POST", "/messages", map[string]any{
		"text": "hi", "priority_boost": true,
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
