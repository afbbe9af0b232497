package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rcalder/wallcue/internal/types"
	"github.com/rcalder/wallcue/pkg/client"
)

// stubServer records the last request and replies with a canned response.
type stubServer struct {
	t          *testing.T
	srv        *httptest.Server
	lastMethod string
	lastPath   string
	lastKey    string
	lastBody   map[string]any

	status int
	reply  any
}

func newStub(t *testing.T) *stubServer {
	t.Helper()
	s := &stubServer{t: t, status: http.StatusOK}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lastMethod = r.Method
		s.lastPath = r.URL.Path
		s.lastKey = r.Header.Get("X-Api-Key")
		s.lastBody = nil
		if r.ContentLength > 0 {
			_ = json.NewDecoder(r.Body).Decode(&s.lastBody)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.status)
		if s.reply != nil {
			_ = json.NewEncoder(w).Encode(s.reply)
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func sampleMessage(id string) *types.Message {
	return &types.Message{
		ID:     id,
		Text:   "ORDER 42 READY",
		Status: types.StatusQueued,
	}
}

func TestAddSendsLabelOptions(t *testing.T) {
	s := newStub(t)
	s.status = http.StatusCreated
	s.reply = sampleMessage("01JCLIENT0000000000000000A")

	c := client.New(s.srv.URL)
	msg, err := c.Add(context.Background(), "order 42 ready", client.WithTableNumber("42"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.lastMethod != "POST" || s.lastPath != "/messages" {
		t.Errorf("request = %s %s", s.lastMethod, s.lastPath)
	}
	if s.lastBody["text"] != "order 42 ready" {
		t.Errorf("text = %v", s.lastBody["text"])
	}
	if s.lastBody["label_type"] != "table_number" || s.lastBody["identifier"] != "42" {
		t.Errorf("label fields = %v", s.lastBody)
	}
	if msg.ID != "01JCLIENT0000000000000000A" {
		t.Errorf("id = %q", msg.ID)
	}
}

func TestListDecodesMessages(t *testing.T) {
	s := newStub(t)
	s.reply = map[string]any{
		"messages": []*types.Message{sampleMessage("a"), sampleMessage("b")},
	}

	msgs, err := client.New(s.srv.URL).List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "a" || msgs[1].ID != "b" {
		t.Errorf("messages = %v", msgs)
	}
	if s.lastMethod != "GET" || s.lastPath != "/messages" {
		t.Errorf("request = %s %s", s.lastMethod, s.lastPath)
	}
}

func TestDispatchUsesIDPath(t *testing.T) {
	s := newStub(t)
	m := sampleMessage("01JCLIENT0000000000000000B")
	m.Status = types.StatusSent
	s.reply = m

	msg, err := client.New(s.srv.URL).Dispatch(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if s.lastPath != "/messages/"+m.ID+"/dispatch" || s.lastMethod != "POST" {
		t.Errorf("request = %s %s", s.lastMethod, s.lastPath)
	}
	if msg.Status != types.StatusSent {
		t.Errorf("status = %q", msg.Status)
	}
}

func TestEditSendsOnlySetFields(t *testing.T) {
	s := newStub(t)
	s.reply = sampleMessage("x")

	text := "updated"
	_, err := client.New(s.srv.URL).Edit(context.Background(), "x", client.EditRequest{Text: &text})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if s.lastMethod != "PATCH" || s.lastPath != "/messages/x" {
		t.Errorf("request = %s %s", s.lastMethod, s.lastPath)
	}
	if s.lastBody["text"] != "updated" {
		t.Errorf("text = %v", s.lastBody["text"])
	}
	if _, present := s.lastBody["identifier"]; present {
		t.Error("unset fields must be omitted from the payload")
	}
}

func TestCancelAcceptsNoContent(t *testing.T) {
	s := newStub(t)
	s.status = http.StatusNoContent

	if err := client.New(s.srv.URL).Cancel(context.Background(), "x"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if s.lastMethod != "DELETE" || s.lastPath != "/messages/x" {
		t.Errorf("request = %s %s", s.lastMethod, s.lastPath)
	}
}

func TestAutoCycleInterval(t *testing.T) {
	s := newStub(t)

	c := client.New(s.srv.URL)
	if err := c.StartAutoCycle(context.Background(), 90*time.Second); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.lastPath != "/autocycle/start" || s.lastBody["interval"] != "1m30s" {
		t.Errorf("request = %s body %v", s.lastPath, s.lastBody)
	}

	if err := c.StopAutoCycle(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.lastPath != "/autocycle/stop" {
		t.Errorf("path = %s", s.lastPath)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newStub(t)
	s.reply = &types.OSCSettings{Host: "10.0.0.9", Port: 2269, Layer: 2, StartingClip: 5, ClearClip: 8}

	got, err := client.New(s.srv.URL).UpdateSettings(context.Background(), client.Settings{
		Host: "10.0.0.9", Port: 2269, Layer: 2, StartingClip: 5,
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if s.lastMethod != "PUT" || s.lastPath != "/settings" {
		t.Errorf("request = %s %s", s.lastMethod, s.lastPath)
	}
	if got.ClearClip != 8 {
		t.Errorf("clear_clip = %d, want 8", got.ClearClip)
	}
}

func TestAPIErrorSurfacesServerMessage(t *testing.T) {
	s := newStub(t)
	s.status = http.StatusNotFound
	s.reply = map[string]string{"error": "message not found"}

	_, err := client.New(s.srv.URL).Get(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error")
	}
	var ae *client.APIError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if ae.StatusCode != http.StatusNotFound || ae.Message != "message not found" {
		t.Errorf("APIError = %+v", ae)
	}
	if !client.IsNotFound(err) {
		t.Error("IsNotFound should match")
	}
}

func TestIsUnavailable(t *testing.T) {
	s := newStub(t)
	s.status = http.StatusServiceUnavailable
	s.reply = map[string]string{"error": "osc endpoint not connected"}

	_, err := client.New(s.srv.URL).Dispatch(context.Background(), "x")
	if !client.IsUnavailable(err) {
		t.Errorf("IsUnavailable(%v) = false", err)
	}
}

func TestAPIKeyHeader(t *testing.T) {
	s := newStub(t)
	s.reply = map[string]any{"messages": []*types.Message{}}

	c := client.New(s.srv.URL, client.WithAPIKey("hunter2"))
	if _, err := c.List(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
	if s.lastKey != "hunter2" {
		t.Errorf("X-Api-Key = %q", s.lastKey)
	}
}

func TestContextCancellation(t *testing.T) {
	s := newStub(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.New(s.srv.URL).List(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestHealth(t *testing.T) {
	s := newStub(t)
	s.reply = client.HealthInfo{Status: "ok", DeviceID: "dev-1", Queued: 3, WallConnected: true}

	h, err := client.New(s.srv.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.Status != "ok" || h.DeviceID != "dev-1" || h.Queued != 3 || !h.WallConnected {
		t.Errorf("health = %+v", h)
	}
}
