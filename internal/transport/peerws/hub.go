// Package peerws maintains WebSocket links between peer devices.
//
// Every device is both a server and a client: it accepts upgrades on its own
// /sync endpoint and dials the peer URLs from its configuration. Dialed links
// reconnect automatically with capped exponential backoff, so two devices
// that list each other converge on (at least) one working link either way.
//
// Frames are opaque to the hub. The reconciler owns the envelope format; the
// hub only moves bytes and reports connection lifecycle.
package peerws

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	gorillaws "github.com/gorilla/websocket"
)

// ErrClosed is returned by Broadcast after Close.
var ErrClosed = errors.New("peerws: hub closed")

// Reconnect backoff bounds for dialed peer links.
const (
	backoffMin = time.Second
	backoffMax = 30 * time.Second
)

var upgrader = gorillaws.Upgrader{
	// CheckOrigin rejects cross-origin upgrade requests. Peer devices and
	// native clients send no Origin header and are always allowed.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		return u.Host == r.Host
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Hub fans payloads out to every live peer connection, both accepted and
// dialed. Set the callbacks before mounting or dialing; they are invoked
// from connection goroutines and must be safe for concurrent use.
type Hub struct {
	// OnPayload receives every inbound frame.
	OnPayload func(data []byte)
	// OnConnect fires when a link comes up, with the remote address.
	OnConnect func(remote string)
	// OnDisconnect fires when a link drops, with the remote address.
	OnDisconnect func(remote string)

	log *slog.Logger

	mu     sync.Mutex
	conns  map[*gorillaws.Conn]struct{}
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewHub builds an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:   log.With("component", "peerws"),
		conns: make(map[*gorillaws.Conn]struct{}),
		done:  make(chan struct{}),
	}
}

// ServeHTTP upgrades an inbound peer connection and pumps its frames until
// it drops. It is mounted on the API server's /sync route.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	h.runConn(conn)
}

// Dial connects out to a peer's sync endpoint and keeps the link alive,
// redialing with backoff whenever it drops. It returns immediately; the link
// runs until Close.
func (h *Hub) Dial(rawURL string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		backoff := backoffMin
		for {
			select {
			case <-h.done:
				return
			default:
			}

			conn, _, err := gorillaws.DefaultDialer.Dial(rawURL, nil)
			if err != nil {
				h.log.Debug("peer dial failed", "url", rawURL, "retry_in", backoff, "error", err)
				select {
				case <-h.done:
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, backoffMax)
				continue
			}

			backoff = backoffMin
			h.runConn(conn)
		}
	}()
}

// runConn registers the connection and blocks reading frames until it drops.
func (h *Hub) runConn(conn *gorillaws.Conn) {
	remote := conn.RemoteAddr().String()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	h.log.Info("peer link up", "remote", remote)
	if h.OnConnect != nil {
		h.OnConnect(remote)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if h.OnPayload != nil {
			h.OnPayload(data)
		}
	}

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()

	h.log.Info("peer link down", "remote", remote)
	if h.OnDisconnect != nil {
		h.OnDisconnect(remote)
	}
}

// Broadcast writes one text frame to every live connection. A connection
// that fails to accept the write is dropped; its read loop will notice and
// fire OnDisconnect. Broadcast succeeds even with zero peers connected.
func (h *Hub) Broadcast(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	for conn := range h.conns {
		if err := conn.WriteMessage(gorillaws.TextMessage, data); err != nil {
			h.log.Warn("peer write failed", "remote", conn.RemoteAddr(), "error", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
	return nil
}

// ConnCount reports the number of live peer links.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close drops every link and stops all dial loops.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	for conn := range h.conns {
		conn.Close()
	}
	h.conns = make(map[*gorillaws.Conn]struct{})
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

// PeerURL builds the sync endpoint URL for a peer's host:port address.
func PeerURL(addr string) string {
	return fmt.Sprintf("ws://%s/sync", addr)
}
