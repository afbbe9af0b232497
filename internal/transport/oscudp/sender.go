// Package oscudp sends encoded OSC datagrams to the video engine over UDP.
//
// UDP gives no delivery guarantee and the video engine sends no replies, so
// Connected() only means a socket is dialed — the wall itself may still be
// offline. Send failures are surfaced to callers and counted.
package oscudp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rcalder/wallcue/internal/metrics"
)

// ErrNotConnected is returned by Send before a successful Connect.
var ErrNotConnected = errors.New("oscudp: not connected")

// ErrSendFailed wraps socket-level write errors.
var ErrSendFailed = errors.New("oscudp: send failed")

// connectAttempts bounds how many times Connect retries the dial before
// giving up. UDP dials only fail on bad addresses or resolver trouble, so a
// short bounded retry is enough.
const (
	connectAttempts = 3
	connectBackoff  = 500 * time.Millisecond
)

// Sender is a dialed UDP endpoint for one video engine. It satisfies
// dispatch.Sender: one Send call is one datagram.
type Sender struct {
	log *slog.Logger
	reg *metrics.Registry

	mu   sync.Mutex
	host string
	port int
	conn *net.UDPConn
}

// New builds an unconnected sender. reg may be nil.
func New(host string, port int, log *slog.Logger, reg *metrics.Registry) *Sender {
	return &Sender{
		log:  log.With("component", "oscudp"),
		reg:  reg,
		host: host,
		port: port,
	}
}

// Connect resolves and dials the engine address, retrying a bounded number
// of times. Calling it on an already connected sender re-dials.
func (s *Sender) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dialLocked()
}

func (s *Sender) dialLocked() error {
	target := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		addr, err := net.ResolveUDPAddr("udp", target)
		if err == nil {
			var conn *net.UDPConn
			conn, err = net.DialUDP("udp", nil, addr)
			if err == nil {
				if s.conn != nil {
					_ = s.conn.Close()
				}
				s.conn = conn
				s.log.Info("osc endpoint dialed", "target", target, "attempt", attempt)
				return nil
			}
		}
		lastErr = err
		s.log.Warn("osc dial failed", "target", target, "attempt", attempt, "error", err)
		if attempt < connectAttempts {
			time.Sleep(connectBackoff)
		}
	}
	return fmt.Errorf("oscudp: dial %s: %w", target, lastErr)
}

// Connected reports whether a socket is currently dialed.
func (s *Sender) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Send writes one datagram to the engine.
func (s *Sender) Send(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write(data); err != nil {
		if s.reg != nil {
			s.reg.OSCSendErrors.Inc()
		}
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if s.reg != nil {
		s.reg.OSCDatagramsSent.Inc()
	}
	return nil
}

// Reconfigure points the sender at a new engine address and re-dials if a
// connection was already up.
func (s *Sender) Reconfigure(host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.host = host
	s.port = port
	if s.conn == nil {
		return nil
	}
	return s.dialLocked()
}

// Target returns the configured engine address.
func (s *Sender) Target() (host string, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host, s.port
}

// Close releases the socket. Send returns ErrNotConnected afterwards.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
