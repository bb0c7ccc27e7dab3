// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"rtio/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Value Count       | uint16         | 2            | Number of floats (N)    |
| Values            | []float32      | N * 4        | Peaks then RMS, per bus |
+-----------------------------------------------------------------------------+
*/

// HeaderSize is the size of the fixed packet header in bytes.
const HeaderSize = 4 + 8 + 2

// Publisher packs transport.Values into binary packets and sends them with
// a Sender. It implements transport.Transport.
type Publisher struct {
	sender *Sender
	now    func() time.Time

	mu          sync.Mutex
	sequenceNum uint32
	values      []float32
	packet      bytes.Buffer
}

// NewPublisher wraps sender.
func NewPublisher(sender *Sender) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDP sender cannot be nil")
	}
	return &Publisher{sender: sender, now: time.Now}, nil
}

// Send packs data, which must implement transport.Values, and sends it.
func (p *Publisher) Send(data any) error {
	v, ok := data.(transport.Values)
	if !ok {
		return fmt.Errorf("udp: cannot pack %T", data)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.values = v.AppendValues(p.values[:0])
	if err := p.pack(); err != nil {
		return err
	}
	if err := p.sender.Send(p.packet.Bytes()); err != nil {
		return err
	}
	udpLog.Debugf("Sent packet %d (%d bytes)", p.sequenceNum, p.packet.Len())
	return nil
}

func (p *Publisher) pack() error {
	if len(p.values) > 0xFFFF {
		return fmt.Errorf("udp: %d values do not fit in one packet", len(p.values))
	}
	p.sequenceNum++
	p.packet.Reset()

	err := binary.Write(&p.packet, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(&p.packet, binary.BigEndian, p.now().UnixNano())
	}
	if err == nil {
		err = binary.Write(&p.packet, binary.BigEndian, uint16(len(p.values)))
	}
	if err == nil {
		err = binary.Write(&p.packet, binary.BigEndian, p.values)
	}
	if err != nil {
		return fmt.Errorf("udp: packing data: %w", err)
	}
	return nil
}

// Close closes the underlying sender.
func (p *Publisher) Close() error {
	return p.sender.Close()
}

var _ transport.Transport = (*Publisher)(nil)
