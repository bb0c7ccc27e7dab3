// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	applog "rtio/internal/log"
)

var udpLog = applog.Named("udp")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("UDP sender is closed")

// Sender handles sending data packets over UDP.
type Sender struct {
	conn   *net.UDPConn
	mu     sync.Mutex
	closed bool
}

// NewSender creates a Sender targeting targetAddress ("host:port").
func NewSender(targetAddress string) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	// No local address; the kernel picks an ephemeral port.
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	udpLog.Infof("Connection established to %s", conn.RemoteAddr())
	return &Sender{conn: conn}, nil
}

// Send transmits data as a single UDP packet.
func (s *Sender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the underlying UDP connection.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	udpLog.Infof("Closing connection to %s", s.conn.RemoteAddr())
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}
